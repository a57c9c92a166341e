// Package loader reads simulated LMS launches from YAML. A fixture
// describes windows, how they frame and open each other, and the tracking
// APIs each one exposes; Build turns it into an in-memory window graph.
package loader

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"lmsbridge/internal/host/memory"
)

// FixtureYAML represents the YAML file structure
type FixtureYAML struct {
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description,omitempty"`
	Root        string                 `yaml:"root"`
	Windows     map[string]*WindowYAML `yaml:"windows"`
}

// WindowYAML represents one window or frame
type WindowYAML struct {
	URL    string              `yaml:"url"`
	Frames []string            `yaml:"frames,omitempty"`
	Opener string              `yaml:"opener,omitempty"`
	Denied bool                `yaml:"denied,omitempty"`
	APIs   map[string]*APIYAML `yaml:"apis,omitempty"`
}

// APIYAML represents a global the course can find
type APIYAML struct {
	// Type is scorm12, scorm2004, xapi or custom
	Type string `yaml:"type"`

	// SCORM runtimes
	Broken bool     `yaml:"broken,omitempty"`
	Reject []string `yaml:"reject,omitempty"`

	// xAPI libraries
	Mode     string `yaml:"mode,omitempty"`
	Options  bool   `yaml:"options_callback,omitempty"`
	Status   int    `yaml:"status,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Actor    string `yaml:"actor,omitempty"`

	// Custom functions
	Returns string `yaml:"returns,omitempty"`
	Throws  string `yaml:"throws,omitempty"`
}

// Launch is a built fixture.
type Launch struct {
	Root    *memory.Window
	Windows map[string]*memory.Window
	// Runtimes and Libraries are keyed "window.global".
	Runtimes  map[string]*memory.CMIRuntime
	Libraries map[string]*memory.XAPILibrary
}

// Runtime returns the SCORM runtime exposed as global in window.
func (l *Launch) Runtime(window, global string) *memory.CMIRuntime {
	return l.Runtimes[window+"."+global]
}

// LoadFixture reads and builds a fixture file
func LoadFixture(path string) (*Launch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture builds a fixture from YAML
func ParseFixture(data []byte) (*Launch, error) {
	var f FixtureYAML
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return f.Build()
}

// Build validates the fixture and creates its window graph
func (f *FixtureYAML) Build() (*Launch, error) {
	if len(f.Windows) == 0 {
		return nil, errors.New("fixture has no windows")
	}
	if _, ok := f.Windows[f.Root]; !ok {
		return nil, fmt.Errorf("root window %q is not defined", f.Root)
	}

	l := &Launch{
		Windows:   make(map[string]*memory.Window, len(f.Windows)),
		Runtimes:  map[string]*memory.CMIRuntime{},
		Libraries: map[string]*memory.XAPILibrary{},
	}

	// Sorted so errors and IDs are deterministic.
	names := make([]string, 0, len(f.Windows))
	for name := range f.Windows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		wy := f.Windows[name]
		if wy == nil {
			wy = &WindowYAML{}
			f.Windows[name] = wy
		}
		w := memory.NewWindow(name, wy.URL)
		for _, global := range sortedKeys(wy.APIs) {
			v, err := l.buildAPI(name, global, wy.APIs[global])
			if err != nil {
				return nil, err
			}
			w.Set(global, v)
		}
		if wy.Denied {
			w.Deny()
		}
		l.Windows[name] = w
	}

	framedBy := map[string]string{}
	for _, name := range names {
		wy := f.Windows[name]
		w := l.Windows[name]
		for _, child := range wy.Frames {
			cw, ok := l.Windows[child]
			if !ok {
				return nil, fmt.Errorf("window %q frames undefined window %q", name, child)
			}
			if owner, dup := framedBy[child]; dup {
				return nil, fmt.Errorf("window %q is framed by both %q and %q", child, owner, name)
			}
			framedBy[child] = name
			w.AddFrame(cw)
		}
		if wy.Opener != "" {
			ow, ok := l.Windows[wy.Opener]
			if !ok {
				return nil, fmt.Errorf("window %q has undefined opener %q", name, wy.Opener)
			}
			w.SetOpener(ow)
		}
	}

	l.Root = l.Windows[f.Root]
	return l, nil
}

func (l *Launch) buildAPI(window, global string, a *APIYAML) (any, error) {
	if a == nil {
		return nil, fmt.Errorf("%s.%s: empty api", window, global)
	}
	key := window + "." + global

	switch strings.ToLower(a.Type) {
	case "scorm12", "scorm2004":
		version := memory.Scorm12
		if strings.ToLower(a.Type) == "scorm2004" {
			version = memory.Scorm2004
		}
		rt := memory.NewRuntime(version)
		if a.Broken {
			rt.Break()
		}
		for _, element := range a.Reject {
			rt.Reject(element)
		}
		l.Runtimes[key] = rt
		return rt.Object(), nil

	case "xapi":
		mode := memory.SendMode(a.Mode)
		switch mode {
		case "":
			mode = memory.SendCallback
		case memory.SendCallback, memory.SendSync, memory.SendBoth, memory.SendSilent, memory.SendThrow:
		default:
			return nil, fmt.Errorf("%s: unknown xapi mode %q", key, a.Mode)
		}
		lib := memory.NewXAPILibrary(mode)
		if a.Options {
			lib.WithOptionsConvention()
		}
		if a.Status != 0 {
			lib.WithStatus(a.Status)
		}
		l.Libraries[key] = lib
		return lib.Object(a.Endpoint, a.Actor), nil

	case "custom":
		returns, throws := a.Returns, a.Throws
		return memory.Func(func(args ...any) (any, error) {
			if throws != "" {
				return nil, errors.New(throws)
			}
			if returns == "" {
				return nil, nil
			}
			return returns, nil
		}), nil
	}
	return nil, fmt.Errorf("%s: unknown api type %q", key, a.Type)
}

func sortedKeys(m map[string]*APIYAML) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
