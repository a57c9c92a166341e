// Package memory implements host.Environment as an in-memory window graph
// with simulated LMS runtimes. It backs the test suites and `lmsbridge selftest`.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lmsbridge/internal/host"
)

// Func is a host function. Returning an error simulates a thrown exception.
type Func func(args ...any) (any, error)

// Object is a host object with function members and plain properties.
// Property values may be *Object, Func, string, float64, int or bool.
type Object struct {
	Methods map[string]Func
	Props   map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{Methods: map[string]Func{}, Props: map[string]any{}}
}

// Method adds a function member and returns o for chaining.
func (o *Object) Method(name string, fn Func) *Object {
	o.Methods[name] = fn
	return o
}

// Prop adds a property and returns o for chaining.
func (o *Object) Prop(name string, v any) *Object {
	o.Props[name] = normalize(v)
	return o
}

// Throw is a property whose getter raises the given message.
type Throw string

// Call is one recorded Invoke.
type Call struct {
	Path   []string
	Method string
	Args   []any
}

// Window is an environment node. The zero value is not usable; use NewWindow.
type Window struct {
	mu      sync.Mutex
	id      string
	url     string
	parent  *Window
	opener  *Window
	frames  []*Window
	globals map[string]any
	denied  bool
	calls   []Call
}

var _ host.Environment = (*Window)(nil)

// NewWindow creates a window with the given identity and URL.
func NewWindow(id, url string) *Window {
	return &Window{id: id, url: url, globals: map[string]any{}}
}

// AddFrame appends child as a frame and makes w its parent.
func (w *Window) AddFrame(child *Window) *Window {
	w.mu.Lock()
	w.frames = append(w.frames, child)
	w.mu.Unlock()
	child.SetParent(w)
	return child
}

// SetParent overrides the parent link, which allows cyclic graphs.
func (w *Window) SetParent(p *Window) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.parent = p
}

// SetOpener sets the popup opener link.
func (w *Window) SetOpener(o *Window) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opener = o
}

// Deny makes every property read on w fail as cross-origin.
func (w *Window) Deny() *Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.denied = true
	return w
}

// Set defines a global.
func (w *Window) Set(name string, v any) *Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.globals[name] = normalize(v)
	return w
}

// Calls returns every Invoke made against w.
func (w *Window) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Call(nil), w.calls...)
}

func (w *Window) ID() string {
	return w.id
}

func (w *Window) Location(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.denied {
		return "", host.ErrAccessDenied
	}
	return w.url, nil
}

func (w *Window) Parent(ctx context.Context) (host.Environment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.parent == nil {
		return nil, nil
	}
	return w.parent, nil
}

func (w *Window) Opener(ctx context.Context) (host.Environment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opener == nil {
		return nil, nil
	}
	return w.opener, nil
}

func (w *Window) Frames(ctx context.Context) ([]host.Environment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.Environment, 0, len(w.frames))
	for _, f := range w.frames {
		out = append(out, f)
	}
	return out, nil
}

func (w *Window) Probe(ctx context.Context, path ...string) (host.Ref, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.denied {
		return host.Ref{}, host.ErrAccessDenied
	}
	v, ok := w.resolve(path)
	if !ok {
		return host.Ref{Type: host.TypeUndefined}, nil
	}
	if t, isThrow := v.(Throw); isThrow {
		return host.Ref{}, &host.ThrownError{Message: string(t)}
	}
	return describe(v), nil
}

func (w *Window) Invoke(ctx context.Context, path []string, method string, args ...any) (any, error) {
	w.mu.Lock()
	if w.denied {
		w.mu.Unlock()
		return nil, host.ErrAccessDenied
	}
	w.calls = append(w.calls, Call{Path: append([]string(nil), path...), Method: method, Args: args})
	v, ok := w.resolve(path)
	w.mu.Unlock()

	if !ok {
		return nil, &host.ThrownError{Message: fmt.Sprintf("%v is undefined", path)}
	}

	var fn Func
	switch t := v.(type) {
	case Throw:
		return nil, &host.ThrownError{Message: string(t)}
	case Func:
		if method != "" {
			return nil, &host.ThrownError{Message: method + " is not a function"}
		}
		fn = t
	case *Object:
		fn = t.Methods[method]
		if fn == nil {
			return nil, &host.ThrownError{Message: method + " is not a function"}
		}
	default:
		return nil, &host.ThrownError{Message: "not callable"}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret, err := fn(args...)
	if err != nil {
		return nil, &host.ThrownError{Message: err.Error()}
	}
	return ret, nil
}

// resolve walks path from the globals. Callers hold w.mu.
func (w *Window) resolve(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur, ok := w.globals[path[0]]
	if !ok {
		return nil, false
	}
	for _, name := range path[1:] {
		if _, isThrow := cur.(Throw); isThrow {
			return cur, true
		}
		obj, isObj := cur.(*Object)
		if !isObj {
			return nil, false
		}
		if fn, found := obj.Methods[name]; found {
			cur = fn
			continue
		}
		if cur, ok = obj.Props[name]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func describe(v any) host.Ref {
	switch t := v.(type) {
	case *Object:
		methods := make([]string, 0, len(t.Methods))
		for name := range t.Methods {
			methods = append(methods, name)
		}
		sort.Strings(methods)
		return host.Ref{Type: host.TypeObject, Methods: methods}
	case Func:
		return host.Ref{Type: host.TypeFunction}
	case string:
		return host.Ref{Type: host.TypeString, Value: t}
	case float64:
		return host.Ref{Type: host.TypeNumber, Value: t}
	case int:
		return host.Ref{Type: host.TypeNumber, Value: float64(t)}
	case bool:
		return host.Ref{Type: host.TypeBoolean, Value: t}
	case nil:
		return host.Ref{Type: host.TypeUndefined}
	}
	return host.Ref{Type: host.TypeObject}
}

func normalize(v any) any {
	if fn, ok := v.(func(...any) (any, error)); ok {
		return Func(fn)
	}
	return v
}
