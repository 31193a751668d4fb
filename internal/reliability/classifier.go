package reliability

import (
	"context"
	"errors"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

type transient interface {
	Transient() bool
}

// IsTransient reports whether err came from a failure that may clear on retry.
// Cancellation and deadline errors never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
