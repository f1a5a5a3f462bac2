package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable error class carried to the API edge.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidState      Kind = "invalid_state"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthenticated   Kind = "unauthenticated"
	KindConflict          Kind = "conflict"
	KindTransient         Kind = "transient"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, logged server-side only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, defaulting to transient for
// unclassified failures (storage/network errors land here).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// Retryable reports whether the caller may re-attempt the operation.
// Validation and not-found outcomes are definitive and never retried.
func Retryable(err error) bool { return KindOf(err) == KindTransient }
