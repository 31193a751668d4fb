package reliability

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often and how fast an operation is repeated.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a Permanent error, exhausts MaxRetries
// or ctx is done. onRetry is called before each repeat.
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error), onRetry func(error, time.Duration)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
	return backoff.RetryNotifyWithData(op, b, onRetry)
}
