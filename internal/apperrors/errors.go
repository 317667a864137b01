// Package apperrors classifies settlement-pipeline failures so callers and
// handlers can decide between rejecting, retrying, and surfacing.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindInvalidArgument: bad input (non-positive amount, unknown jamaah).
	// Rejected synchronously, never retried.
	KindInvalidArgument Kind = iota
	// KindConfiguration: tenant setup is incomplete (no active commission
	// rule). The triggering operation stands; the follow-up work is deferred
	// and flagged for operator action.
	KindConfiguration
	// KindConflict: duplicate write caught by a uniqueness constraint.
	// Treated as a no-op on retry, never a lost update.
	KindConflict
	// KindNotFound: the addressed record does not exist in the tenant scope.
	KindNotFound
	// KindTransient: DB/network hiccup; safe to retry with backoff.
	KindTransient
	// KindTerminal: retries are exhausted; surfaced, not auto-resolved.
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConfiguration:
		return "configuration_error"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindTerminal:
		return "terminal"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
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

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// IsKind reports whether err or anything it wraps carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the classification of an error, defaulting to transient so
// unclassified infrastructure failures stay retryable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// ErrNothingToPayout is returned by a batching run that found no approved,
// unpaid commissions. It is a normal outcome, not a failure.
var ErrNothingToPayout = errors.New("nothing to payout")
