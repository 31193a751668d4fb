package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ent0n29/agora/internal/reliability"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiCompleter calls the Gemini API. Requests that carry a schema get JSON output.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	return callWithTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
			genai.NewContentFromText(req.Prompt, genai.RoleUser),
		}, geminiConfig(req))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", geminiError(err)
		}
		return resp.Text(), nil
	})
}

// geminiConfig enables JSON output only for requests that declare a reply schema;
// free-text requests such as topic generation stay plain text.
func geminiConfig(req Request) *genai.GenerateContentConfig {
	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Schema) > 0 {
		cfg.ResponseMIMEType = "application/json"
		var schema map[string]any
		if err := json.Unmarshal(req.Schema, &schema); err == nil {
			cfg.ResponseJsonSchema = schema
		}
	}
	return cfg
}

// geminiError tags an SDK failure as transient only for retryable HTTP statuses.
// Failures without an API status are network-level and treated as transient.
func geminiError(err error) *ProviderError {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return &ProviderError{Provider: "gemini", Err: err, transient: true}
	}
	return &ProviderError{
		Provider:  "gemini",
		Status:    apiErr.Code,
		Err:       err,
		transient: reliability.IsRetryableHTTPStatus(apiErr.Code),
	}
}
