package doctree

import (
	"errors"
	"fmt"
)

// Kind classifies failures of store operations.
type Kind string

const (
	KindValidation Kind = "VALIDATION_FAILED"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindAuth       Kind = "UNAUTHORIZED"
	KindTransport  Kind = "TRANSPORT"
	KindInternal   Kind = "INTERNAL_ERROR"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrTransport  = &Error{Kind: KindTransport}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input.
func Validation(op, format string, args ...any) *Error {
	return newError(KindValidation, op, format, args...)
}

// NotFound reports a stale or unknown reference.
func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

// Conflict reports a duplicate sibling title.
func Conflict(op, format string, args ...any) *Error {
	return newError(KindConflict, op, format, args...)
}

// Auth reports a rejected credential.
func Auth(op, format string, args ...any) *Error {
	return newError(KindAuth, op, format, args...)
}

// Transport wraps a network or timeout failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Msg: "request failed", Err: err}
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
