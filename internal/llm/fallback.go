package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FallbackCompleter tries primary first and falls back on any non-cancellation error.
type FallbackCompleter struct {
	primary  Completer
	fallback Completer
}

func NewFallbackCompleter(primary, fallback Completer) *FallbackCompleter {
	return &FallbackCompleter{primary: primary, fallback: fallback}
}

func (c *FallbackCompleter) Complete(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	if c.primary == nil {
		if c.fallback == nil {
			return "", errors.New("fallback completer misconfigured")
		}
		return c.fallback.Complete(ctx, req, timeout)
	}
	out, err := c.primary.Complete(ctx, req, timeout)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil || c.fallback == nil {
		return "", err
	}
	fallbackOut, fallbackErr := c.fallback.Complete(ctx, req, timeout)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary completer error: %w; fallback completer error: %v", err, fallbackErr)
	}
	return fallbackOut, nil
}
