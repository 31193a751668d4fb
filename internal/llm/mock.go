package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// PurposeTopic marks topic generation requests.
const PurposeTopic = "topic"

// MockCompleter produces deterministic structured replies for local runs and tests.
type MockCompleter struct {
	lines map[string]string
}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

// NewMockCompleterWithLines uses lines[persona] as the stock text of that persona.
func NewMockCompleterWithLines(lines map[string]string) *MockCompleter {
	m := &MockCompleter{lines: make(map[string]string, len(lines))}
	for persona, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			m.lines[persona] = line
		}
	}
	return m
}

func (m *MockCompleter) Complete(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	return callWithTimeout(ctx, timeout, func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		return buildMockReply(req, m.lines[req.Persona]), nil
	})
}

var mockTopics = []string{
	"Artificial intelligence should be regulated by international law",
	"Social media has done more harm than good to society",
	"Climate change policies should take priority over economic growth",
	"Online privacy is more important than national security",
}

func buildMockReply(req Request, line string) string {
	if req.Purpose == PurposeTopic {
		h := fnv.New32a()
		_, _ = h.Write([]byte(req.Prompt))
		return mockTopics[h.Sum32()%uint32(len(mockTopics))]
	}

	msg := strings.TrimSpace(req.Message)
	if len(msg) > 80 {
		msg = msg[:80] + "..."
	}

	reply := map[string]any{
		"confidence": 0.7,
		"reasoning":  fmt.Sprintf("deterministic %s reply", req.Persona),
	}
	switch req.Persona {
	case "debater_for":
		reply["content"] = fmt.Sprintf("I stand in favor. You said %q, yet the benefits clearly outweigh the costs.", msg)
	case "debater_against":
		reply["content"] = fmt.Sprintf("I must disagree. You said %q, but the evidence points the other way.", msg)
	case "coach":
		reply["content"] = "Support your next point with one concrete example and address the strongest objection first."
	case "moderator":
		if req.Purpose == "welcome" {
			reply["content"] = "Welcome to the debate. Each side will present an opening, rebuttals and a closing. Please make your opening argument."
		} else {
			reply["content"] = "Let's keep the debate structured. Both sides have made their case so far; please continue with your next argument."
		}
	case "feedback_evaluator":
		reply["content"] = "You argued clearly and stayed on topic. Add more specific evidence to strengthen your case."
		reply["scores"] = map[string]float64{
			"argument_strength": 0.7,
			"rebuttal_quality":  0.6,
			"consistency":       0.8,
			"evidence_use":      0.5,
		}
		reply["strengths"] = []string{"clear structure"}
		reply["suggestions"] = []string{"cite specific evidence"}
	default:
		reply["content"] = "Please continue."
	}
	if line != "" && req.Purpose != "welcome" && req.Persona != "feedback_evaluator" {
		if req.Persona == "debater_for" || req.Persona == "debater_against" {
			reply["content"] = fmt.Sprintf("%s You said %q.", line, msg)
		} else {
			reply["content"] = line
		}
	}

	raw, _ := json.Marshal(reply)
	return string(raw)
}
