package memory

import (
	"errors"
	"sync"

	"lmsbridge/internal/host"
)

// SendMode selects how a simulated xAPI library signals completion.
type SendMode string

const (
	// SendCallback fires the callback and returns nothing.
	SendCallback SendMode = "callback"
	// SendSync returns a response and never fires the callback.
	SendSync SendMode = "sync"
	// SendBoth returns a response and also fires the callback.
	SendBoth SendMode = "both"
	// SendSilent neither returns nor calls back.
	SendSilent SendMode = "silent"
	// SendThrow raises an exception.
	SendThrow SendMode = "throw"
)

// XAPILibrary simulates ADL.XAPIWrapper (sendStatement(stmt, cb)) or a
// TinCan LRS object (saveStatement(stmt, {callback})).
type XAPILibrary struct {
	mu         sync.Mutex
	mode       SendMode
	options    bool
	status     float64
	statements []any
	callbacks  int
}

// NewXAPILibrary returns a library answering with HTTP status 200.
func NewXAPILibrary(mode SendMode) *XAPILibrary {
	return &XAPILibrary{mode: mode, status: 200}
}

// WithOptionsConvention switches to saveStatement(stmt, {callback}).
func (l *XAPILibrary) WithOptionsConvention() *XAPILibrary {
	l.options = true
	return l
}

// WithStatus sets the HTTP status reported to the caller.
func (l *XAPILibrary) WithStatus(code int) *XAPILibrary {
	l.status = float64(code)
	return l
}

// Statements returns every statement received.
func (l *XAPILibrary) Statements() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.statements...)
}

// CallbacksFired returns how many times the library called back.
func (l *XAPILibrary) CallbacksFired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callbacks
}

// Object exposes the library. lrs carries the configured endpoint and actor.
func (l *XAPILibrary) Object(endpoint, actorJSON string) *Object {
	lrs := NewObject().Prop("endpoint", endpoint)
	if actorJSON != "" {
		lrs.Prop("actor", actorJSON)
	}
	obj := NewObject().Prop("lrs", lrs)
	if l.options {
		return obj.Method("saveStatement", l.send)
	}
	return obj.Method("sendStatement", l.send)
}

func (l *XAPILibrary) send(args ...any) (any, error) {
	if l.mode == SendThrow {
		return nil, errors.New("LRS unreachable")
	}

	var cb host.Callback
	if len(args) > 0 {
		l.mu.Lock()
		l.statements = append(l.statements, args[0])
		l.mu.Unlock()
	}
	if len(args) > 1 {
		switch t := args[1].(type) {
		case host.Callback:
			cb = t
		case map[string]any:
			cb, _ = t["callback"].(host.Callback)
		}
	}

	resp := map[string]any{"status": l.status}
	switch l.mode {
	case SendCallback:
		l.fire(cb, resp)
		return nil, nil
	case SendSync:
		return resp, nil
	case SendBoth:
		l.fire(cb, resp)
		return resp, nil
	}
	return nil, nil
}

func (l *XAPILibrary) fire(cb host.Callback, resp map[string]any) {
	if cb == nil {
		return
	}
	l.mu.Lock()
	l.callbacks++
	l.mu.Unlock()
	cb(resp)
}
