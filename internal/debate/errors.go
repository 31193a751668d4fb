package debate

import (
	"errors"
	"fmt"
)

// Kind is the stable tag reported for every failure.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindSessionNotFound  Kind = "session_not_found"
	KindPhaseViolation   Kind = "phase_violation"
	KindSessionBusy      Kind = "session_busy"
	KindUpstreamProvider Kind = "upstream_provider_error"
	KindParse            Kind = "parse_error"
	KindInternal         Kind = "internal_error"
)

// Retryable reports whether a caller may repeat the same request later.
func (k Kind) Retryable() bool {
	return k == KindSessionBusy || k == KindUpstreamProvider
}

// Error is a failure tagged with its Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrSessionBusy) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrSessionNotFound  = &Error{Kind: KindSessionNotFound}
	ErrPhaseViolation   = &Error{Kind: KindPhaseViolation}
	ErrSessionBusy      = &Error{Kind: KindSessionBusy}
	ErrUpstreamProvider = &Error{Kind: KindUpstreamProvider}
	ErrParse            = &Error{Kind: KindParse}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the tag of err. Untagged errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the human-readable message of err without the kind prefix.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil && e.Message != "" {
			return e.Message + ": " + e.Err.Error()
		}
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
