// Package host models the runtime a course is launched in as a graph of
// environments (windows, frames, popups) that can be probed and invoked.
//
// Implementations live in subpackages: memory (simulated LMS for tests and
// selftest), browser (live Chrome over CDP) and static (HTTP-fetched launch
// pages, frame graph only).
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrAccessDenied is returned when an environment or one of its properties
// cannot be read, typically because it is cross-origin.
var ErrAccessDenied = errors.New("host: access denied")

// ErrUnsupported is returned by environments that cannot run host code.
var ErrUnsupported = errors.New("host: operation not supported")

// ValueType classifies the result of a property probe.
type ValueType string

const (
	TypeUndefined ValueType = "undefined"
	TypeObject    ValueType = "object"
	TypeFunction  ValueType = "function"
	TypeString    ValueType = "string"
	TypeNumber    ValueType = "number"
	TypeBoolean   ValueType = "boolean"
)

// Ref is the read-only description of a probed property.
type Ref struct {
	Type ValueType `json:"type"`
	// Methods lists the function-typed members of an object, sorted.
	Methods []string `json:"methods,omitempty"`
	// Value holds the primitive value for string, number and boolean refs.
	Value any `json:"value,omitempty"`
}

// Defined reports whether the probe found anything.
func (r Ref) Defined() bool {
	return r.Type != "" && r.Type != TypeUndefined
}

// HasMethods reports whether every name in methods is a function member.
func (r Ref) HasMethods(methods ...string) bool {
	if r.Type != TypeObject {
		return false
	}
	for _, m := range methods {
		i := sort.SearchStrings(r.Methods, m)
		if i >= len(r.Methods) || r.Methods[i] != m {
			return false
		}
	}
	return true
}

// String returns the primitive value as a string, or "".
func (r Ref) String() string {
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Callback is passed as an Invoke argument (directly or as a value of a
// map[string]any options object) and is converted into a host function.
type Callback func(args ...any)

// ThrownError wraps an exception raised by host code during Invoke.
type ThrownError struct {
	Message string
}

func (e *ThrownError) Error() string {
	return "host threw: " + e.Message
}

// Environment is one node of the window graph.
//
// Probe must never run host code; only Invoke does.
type Environment interface {
	// ID returns an identity that is stable for the lifetime of the graph.
	ID() string
	// Location returns the environment's URL.
	Location(ctx context.Context) (string, error)
	// Parent returns the parent environment, or nil at the top.
	Parent(ctx context.Context) (Environment, error)
	// Opener returns the environment that opened this one, or nil.
	Opener(ctx context.Context) (Environment, error)
	// Frames returns the child frames in document order.
	Frames(ctx context.Context) ([]Environment, error)
	// Probe describes the value at path without invoking it.
	Probe(ctx context.Context, path ...string) (Ref, error)
	// Invoke calls method on the object at path, or the function at path
	// itself when method is empty.
	Invoke(ctx context.Context, path []string, method string, args ...any) (any, error)
}

// Stringify renders a host return value the way a SCORM runtime would see it.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
