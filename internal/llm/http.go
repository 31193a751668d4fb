package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/agora/internal/reliability"
)

// HTTPCompleter posts requests to a completion endpoint. It accepts plain JSON,
// SSE or NDJSON replies.
type HTTPCompleter struct {
	url    string
	client *http.Client
}

func NewHTTPCompleter(url string) *HTTPCompleter {
	return &HTTPCompleter{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	return callWithTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		return c.post(ctx, req)
	})
}

func (c *HTTPCompleter) post(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var netErr net.Error
		transient := errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
		return "", &ProviderError{Provider: "http", Err: err, transient: transient}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &ProviderError{
			Provider:  "http",
			Status:    res.StatusCode,
			Err:       errors.New(strings.TrimSpace(string(body))),
			transient: reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		return consumeStream(res.Body)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &ProviderError{Provider: "http", Err: fmt.Errorf("read response: %w", err), transient: true}
	}
	return unwrapBody(body), nil
}

// unwrapBody returns the completion text of an envelope like {"text": "..."}. Any other
// body is returned as is, since it may already be the structured reply.
func unwrapBody(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return strings.TrimSpace(string(body))
	}
	if text, ok := extractText(obj); ok {
		return text
	}
	return strings.TrimSpace(string(body))
}

func consumeStream(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			text, ok := extractText(obj)
			if !ok {
				continue
			}
			delta = text
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", &ProviderError{Provider: "http", Err: fmt.Errorf("stream read: %w", err), transient: true}
	}
	return out.String(), nil
}

func extractText(obj map[string]any) (string, bool) {
	for _, k := range []string{"text", "delta", "output", "completion"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
