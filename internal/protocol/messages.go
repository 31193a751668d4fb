// Package protocol defines the debate websocket messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/orchestrator"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientMessage   MessageType = "client_message"
	TypeTurnEvent       MessageType = "turn_event"
	TypeStateEvent      MessageType = "state_event"
	TypeEvaluationEvent MessageType = "evaluation_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Action is the operation a client message requests.
type Action string

const (
	ActionContinue Action = "continue"
	ActionCoach    Action = "coach"
	ActionFeedback Action = "feedback"
	ActionAdvance  Action = "advance"
	ActionEnd      Action = "end"
	ActionState    Action = "state"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    Action      `json:"action"`
	Message   string      `json:"message,omitempty"`
}

type TurnEvent struct {
	Type          MessageType                `json:"type"`
	SessionID     string                     `json:"session_id"`
	State         debate.State               `json:"state"`
	AssistantTurn orchestrator.AssistantTurn `json:"assistant_turn"`
}

type StateEvent struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"session_id"`
	State     debate.State `json:"state"`
}

type EvaluationEvent struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id"`
	State     debate.State   `json:"state"`
	Report    *debate.Report `json:"evaluation_report"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type != TypeClientMessage {
		return ClientMessage{}, ErrUnsupportedType
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, err
	}
	msg.SessionID = strings.TrimSpace(msg.SessionID)
	msg.Action = Action(strings.ToLower(strings.TrimSpace(string(msg.Action))))
	if msg.Action == "" {
		msg.Action = ActionContinue
	}
	if msg.SessionID == "" {
		return ClientMessage{}, errors.New("invalid client_message: session_id is required")
	}
	switch msg.Action {
	case ActionContinue:
		if strings.TrimSpace(msg.Message) == "" {
			return ClientMessage{}, errors.New("invalid client_message: message is required for continue")
		}
	case ActionCoach, ActionFeedback, ActionAdvance, ActionEnd, ActionState:
	default:
		return ClientMessage{}, fmt.Errorf("invalid client_message: unknown action %q", msg.Action)
	}
	return msg, nil
}

// NewTurnEvent wraps an orchestrator turn result.
func NewTurnEvent(res orchestrator.TurnResult) TurnEvent {
	return TurnEvent{Type: TypeTurnEvent, SessionID: res.SessionID, State: res.State, AssistantTurn: res.AssistantTurn}
}

func NewStateEvent(state debate.State) StateEvent {
	return StateEvent{Type: TypeStateEvent, SessionID: state.SessionID, State: state}
}

func NewEvaluationEvent(res orchestrator.EndResult) EvaluationEvent {
	return EvaluationEvent{Type: TypeEvaluationEvent, SessionID: res.SessionID, State: res.State, Report: res.Report}
}

// NewErrorEvent reports err with its stable kind tag.
func NewErrorEvent(sessionID string, err error) ErrorEvent {
	kind := debate.KindOf(err)
	return ErrorEvent{
		Type:      TypeErrorEvent,
		SessionID: sessionID,
		Code:      string(kind),
		Retryable: kind.Retryable(),
		Detail:    debate.MessageOf(err),
	}
}

// TypeOf returns the message type of a known payload.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientMessage:
		return m.Type, true
	case TurnEvent:
		return m.Type, true
	case StateEvent:
		return m.Type, true
	case EvaluationEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
