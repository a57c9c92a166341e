package adapter

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"lmsbridge/internal/domain"
)

// DefaultPriorities orders the cascade SCORM 1.2, SCORM 2004, AICC, xAPI,
// custom.
var DefaultPriorities = map[domain.ApiKind]int{
	domain.APIScorm12:   50,
	domain.APIScorm2004: 40,
	domain.APIAICC:      30,
	domain.APIXAPI:      20,
	domain.APICustom:    10,
}

// Registry manages all registered adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ApiKind]Adapter
	configs  map[domain.ApiKind]AdapterConfig
	logger   *zap.Logger
}

// NewRegistry creates a new adapter registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters: make(map[domain.ApiKind]Adapter),
		configs:  make(map[domain.ApiKind]AdapterConfig),
		logger:   logger,
	}
}

// NewDefaultRegistry registers every built-in adapter, enabled, at its
// default priority.
func NewDefaultRegistry(opts Options, xcfg XAPIConfig) *Registry {
	r := NewRegistry(opts.Logger)
	for _, a := range []Adapter{
		NewScorm12(opts),
		NewScorm2004(opts),
		NewAICC(opts),
		NewXAPI(opts, xcfg),
		NewCustom(opts),
	} {
		// Kinds are distinct, so Register cannot fail here.
		_ = r.Register(a, AdapterConfig{Enabled: true, Priority: DefaultPriorities[a.Kind()]})
	}
	return r
}

// Register adds an adapter to the registry
func (r *Registry) Register(a Adapter, config AdapterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := a.Kind()
	if !kind.Valid() {
		return fmt.Errorf("adapter %s has unknown kind %q", a.Name(), kind)
	}
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("adapter for %s already registered", kind)
	}

	r.adapters[kind] = a
	r.configs[kind] = config
	r.logger.Debug("registered adapter",
		zap.String("name", a.Name()),
		zap.String("kind", string(kind)),
		zap.Int("priority", config.Priority),
		zap.Bool("enabled", config.Enabled))

	return nil
}

// Configure replaces the configuration of an already registered kind.
func (r *Registry) Configure(kind domain.ApiKind, config AdapterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[kind]; !exists {
		return fmt.Errorf("adapter for %s not found", kind)
	}
	r.configs[kind] = config
	return nil
}

// Get returns the enabled adapter for kind.
func (r *Registry) Get(kind domain.ApiKind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.adapters[kind]
	if !exists || !r.configs[kind].Enabled {
		return nil, false
	}
	return a, true
}

// Ordered returns the enabled adapters, highest priority first. Ties keep
// the standard protocol order.
func (r *Registry) Ordered() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Adapter
	for _, kind := range domain.KindPriority {
		if a, ok := r.adapters[kind]; ok && r.configs[kind].Enabled {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.configs[out[i].Kind()].Priority > r.configs[out[j].Kind()].Priority
	})
	return out
}

// AdapterInfo provides read-only information about an adapter
type AdapterInfo struct {
	Name     string         `json:"name"`
	Kind     domain.ApiKind `json:"kind"`
	Priority int            `json:"priority"`
	Enabled  bool           `json:"enabled"`
}

// ListAdapters returns information about registered adapters in protocol
// order.
func (r *Registry) ListAdapters() []AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []AdapterInfo
	for _, kind := range domain.KindPriority {
		a, ok := r.adapters[kind]
		if !ok {
			continue
		}
		config := r.configs[kind]
		infos = append(infos, AdapterInfo{
			Name:     a.Name(),
			Kind:     kind,
			Priority: config.Priority,
			Enabled:  config.Enabled,
		})
	}
	return infos
}
