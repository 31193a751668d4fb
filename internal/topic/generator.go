// Package topic resolves the proposition a debate session argues about.
package topic

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/llm"
)

const maxTopicRunes = 240

var fallbackTopics = map[string][]string{
	"general": {
		"Artificial intelligence should be regulated by international law",
		"Social media has done more harm than good to society",
		"Climate change policies should take priority over economic growth",
		"Online privacy is more important than national security",
	},
	"technology": {
		"Artificial intelligence should be regulated by international law",
		"Online privacy is more important than national security",
		"Social media companies should be legally required to fact-check all posts",
	},
	"environment": {
		"Climate change policies should take priority over economic growth",
		"Space exploration funding should be redirected to climate change research",
	},
	"economics": {
		"Universal basic income should be implemented globally",
		"Climate change policies should take priority over economic growth",
	},
	"society": {
		"Social media has done more harm than good to society",
		"Universal basic income should be implemented globally",
	},
}

// RequestBuilder builds the model request for a topic.
type RequestBuilder interface {
	Topic(category, difficulty string) llm.Request
}

// Generator asks the model for a topic and falls back to a fixed list on failure.
type Generator struct {
	completer llm.Completer
	builder   RequestBuilder
	timeout   time.Duration
	logger    *zap.Logger
}

func NewGenerator(c llm.Completer, b RequestBuilder, timeout time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: c, builder: b, timeout: timeout, logger: logger}
}

// Generate never fails: model errors or unusable replies yield a fallback topic.
// The second return value reports whether the model produced the topic.
func (g *Generator) Generate(ctx context.Context, category, difficulty string) (string, bool) {
	raw, err := g.completer.Complete(ctx, g.builder.Topic(category, difficulty), g.timeout)
	if err != nil {
		g.logger.Warn("topic generation failed, using fallback",
			zap.String("category", category),
			zap.Error(err),
		)
		return Fallback(category, difficulty), false
	}
	topic := Clean(raw)
	if topic == "" {
		g.logger.Warn("topic generation returned nothing usable, using fallback", zap.String("category", category))
		return Fallback(category, difficulty), false
	}
	return topic, true
}

// Clean strips quotes, labels and trailing prose from a generated topic. JSON
// replies (a bare string, or an object with a topic or content field) are unwrapped.
func Clean(raw string) string {
	text := unwrapJSON(strings.TrimSpace(raw))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	lower := strings.ToLower(text)
	for _, label := range []string{"topic:", "proposition:", "motion:"} {
		if strings.HasPrefix(lower, label) {
			text = strings.TrimSpace(text[len(label):])
			break
		}
	}
	text = strings.Trim(text, "\"'`*“”‘’ ")
	text = strings.TrimSpace(strings.TrimSuffix(text, "."))
	if utf8.RuneCountInString(text) > maxTopicRunes {
		return ""
	}
	return text
}

func unwrapJSON(text string) string {
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(text, "```json"), "```"), "```"))
	switch {
	case strings.HasPrefix(body, "{"):
		var obj map[string]any
		if json.Unmarshal([]byte(body), &obj) != nil {
			return text
		}
		for _, key := range []string{"topic", "content", "statement"} {
			if v, ok := obj[key].(string); ok {
				return strings.TrimSpace(v)
			}
		}
		return ""
	case strings.HasPrefix(body, "\""):
		var s string
		if json.Unmarshal([]byte(body), &s) == nil {
			return strings.TrimSpace(s)
		}
	}
	return text
}

// Fallback picks a fixed topic for the category. The choice is stable per input.
func Fallback(category, difficulty string) string {
	topics, ok := fallbackTopics[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		topics = fallbackTopics["general"]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(category) + "/" + strings.ToLower(difficulty)))
	return topics[int(h.Sum32()%uint32(len(topics)))]
}
