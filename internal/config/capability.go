package config

import (
	"fmt"
	"sort"

	"lmsbridge/internal/adapter"
	"lmsbridge/internal/domain"
)

// AdapterToggle enables an adapter and sets its place in the cascade
type AdapterToggle struct {
	Enabled  bool `yaml:"enabled"`
	Priority int  `yaml:"priority"`
}

// AdaptersConfig holds one toggle per API kind
type AdaptersConfig struct {
	Scorm12   AdapterToggle `yaml:"scorm12"`
	Scorm2004 AdapterToggle `yaml:"scorm2004"`
	AICC      AdapterToggle `yaml:"aicc"`
	XAPI      AdapterToggle `yaml:"xapi"`
	Custom    AdapterToggle `yaml:"custom"`
}

// DefaultAdapters enables every adapter at its default priority
func DefaultAdapters() AdaptersConfig {
	p := adapter.DefaultPriorities
	return AdaptersConfig{
		Scorm12:   AdapterToggle{Enabled: true, Priority: p[domain.APIScorm12]},
		Scorm2004: AdapterToggle{Enabled: true, Priority: p[domain.APIScorm2004]},
		AICC:      AdapterToggle{Enabled: true, Priority: p[domain.APIAICC]},
		XAPI:      AdapterToggle{Enabled: true, Priority: p[domain.APIXAPI]},
		Custom:    AdapterToggle{Enabled: true, Priority: p[domain.APICustom]},
	}
}

// ByKind returns the toggles keyed by API kind
func (c AdaptersConfig) ByKind() map[domain.ApiKind]AdapterToggle {
	return map[domain.ApiKind]AdapterToggle{
		domain.APIScorm12:   c.Scorm12,
		domain.APIScorm2004: c.Scorm2004,
		domain.APIAICC:      c.AICC,
		domain.APIXAPI:      c.XAPI,
		domain.APICustom:    c.Custom,
	}
}

// Apply configures every adapter in registry
func (c AdaptersConfig) Apply(registry *adapter.Registry) error {
	toggles := c.ByKind()
	kinds := make([]domain.ApiKind, 0, len(toggles))
	for kind := range toggles {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		t := toggles[kind]
		if err := registry.Configure(kind, adapter.AdapterConfig{Enabled: t.Enabled, Priority: t.Priority}); err != nil {
			return fmt.Errorf("configure %s adapter: %w", kind, err)
		}
	}
	return nil
}

// Enabled lists the enabled kinds, highest priority first
func (c AdaptersConfig) Enabled() []domain.ApiKind {
	toggles := c.ByKind()
	var out []domain.ApiKind
	for kind, t := range toggles {
		if t.Enabled {
			out = append(out, kind)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := toggles[out[i]].Priority, toggles[out[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return out[i] < out[j]
	})
	return out
}
