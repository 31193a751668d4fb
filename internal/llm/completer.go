// Package llm provides the model completion capability behind the orchestrator.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout is returned when a completion does not finish within its timeout.
var ErrTimeout = errors.New("model call timed out")

// Request is one completion request assembled for a persona.
type Request struct {
	SessionID   string          `json:"session_id"`
	TurnID      string          `json:"turn_id,omitempty"`
	Persona     string          `json:"persona"`
	Purpose     string          `json:"purpose"`
	System      string          `json:"system"`
	Prompt      string          `json:"prompt"`
	Message     string          `json:"message,omitempty"`
	Fields      []string        `json:"fields,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

// Completer returns raw model text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request, timeout time.Duration) (string, error)
}

// CompleterFunc adapts a function to Completer. The timeout is applied before f runs.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	return callWithTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		return f(ctx, req)
	})
}

// ProviderError is a failed call to a model provider.
type ProviderError struct {
	Provider  string
	Status    int
	Err       error
	transient bool
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s provider status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether repeating the call may succeed.
func (e *ProviderError) Transient() bool { return e.transient }

func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := fn(callCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", err
	}
	return out, nil
}

// Config controls completer construction.
type Config struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	HTTPURL      string
	// MockLines are per-persona stock replies for the mock provider.
	MockLines map[string]string
}

// NewCompleter resolves the configured provider. It returns the completer and the
// name of the provider actually in use.
func NewCompleter(ctx context.Context, cfg Config) (Completer, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoCompleter(ctx, cfg)
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, "", errors.New("GEMINI_API_KEY is required for gemini provider")
		}
		c, err := NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", err
		}
		return c, "gemini", nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, "", errors.New("LLM_HTTP_URL is required for http provider")
		}
		return NewHTTPCompleter(cfg.HTTPURL), "http", nil
	case "mock":
		return NewMockCompleterWithLines(cfg.MockLines), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newAutoCompleter(ctx context.Context, cfg Config) (Completer, string, error) {
	var secondary Completer
	secondaryName := ""
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		secondary, secondaryName = NewHTTPCompleter(cfg.HTTPURL), "http"
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err == nil {
			if secondary != nil {
				return NewFallbackCompleter(gemini, secondary), "gemini+" + secondaryName, nil
			}
			return gemini, "gemini", nil
		}
		if secondary == nil {
			return nil, "", err
		}
	}

	if secondary != nil {
		return secondary, secondaryName, nil
	}
	return NewMockCompleterWithLines(cfg.MockLines), "mock", nil
}
