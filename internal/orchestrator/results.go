package orchestrator

import (
	"time"

	"github.com/ent0n29/agora/internal/debate"
)

// StartRequest describes a new debate.
type StartRequest struct {
	Category     string `json:"category"`
	Difficulty   string `json:"difficulty"`
	CustomTopic  string `json:"custom_topic,omitempty"`
	UserPosition string `json:"user_position,omitempty"`
}

// AssistantTurn is the externally visible part of an assistant turn.
type AssistantTurn struct {
	ID         string            `json:"id"`
	Persona    debate.Persona    `json:"persona"`
	Content    string            `json:"content"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func assistantTurn(t debate.Turn) AssistantTurn {
	out := AssistantTurn{
		ID:        t.ID,
		Persona:   t.Persona,
		Content:   t.Content,
		Reasoning: t.Reasoning,
		Metadata:  t.Metadata,
		Timestamp: t.Timestamp,
	}
	if t.Confidence != nil {
		out.Confidence = *t.Confidence
	}
	return out
}

// TurnResult is returned by every operation that produces an assistant turn.
type TurnResult struct {
	SessionID     string        `json:"session_id"`
	State         debate.State  `json:"state"`
	AssistantTurn AssistantTurn `json:"assistant_turn"`
}

// EndResult carries the final state and evaluation report.
type EndResult struct {
	SessionID string         `json:"session_id"`
	State     debate.State   `json:"state"`
	Report    *debate.Report `json:"evaluation_report"`
}

// Transcript is the full history of a session.
type Transcript struct {
	State      debate.State   `json:"state"`
	Turns      []debate.Turn  `json:"turns"`
	Evaluation *debate.Report `json:"evaluation,omitempty"`
}
