package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable error class.
type ErrorKind string

const (
	KindAccessDenied         ErrorKind = "access_denied"
	KindTimeout              ErrorKind = "timeout"
	KindProtocolError        ErrorKind = "protocol_error"
	KindNoActor              ErrorKind = "no_actor"
	KindNotFound             ErrorKind = "not_found"
	KindVerificationMismatch ErrorKind = "verification_mismatch"
)

// Sentinels for errors.Is.
var (
	ErrAccessDenied         = &Error{Kind: KindAccessDenied}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrProtocol             = &Error{Kind: KindProtocolError}
	ErrNoActor              = &Error{Kind: KindNoActor}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrVerificationMismatch = &Error{Kind: KindVerificationMismatch}
)

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// E builds an Error.
func E(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error with a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
