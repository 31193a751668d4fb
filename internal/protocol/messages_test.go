package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/orchestrator"
)

func TestParseClientMessageContinue(t *testing.T) {
	raw := []byte(`{"type":"client_message","session_id":" s1 ","action":"continue","message":"Cars pollute."}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, ActionContinue, msg.Action)
	assert.Equal(t, "Cars pollute.", msg.Message)
}

func TestParseClientMessageDefaultsToContinue(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_message","session_id":"s1","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, msg.Action)
}

func TestParseClientMessageActionsWithoutMessage(t *testing.T) {
	for _, action := range []string{"coach", "FEEDBACK", "advance", "end", "state"} {
		msg, err := ParseClientMessage([]byte(`{"type":"client_message","session_id":"s1","action":"` + action + `"}`))
		require.NoError(t, err, action)
		assert.NotEmpty(t, msg.Action)
	}
}

func TestParseClientMessageRejects(t *testing.T) {
	cases := map[string]string{
		"missing session": `{"type":"client_message","action":"end"}`,
		"empty continue":  `{"type":"client_message","session_id":"s1","action":"continue","message":"  "}`,
		"unknown action":  `{"type":"client_message","session_id":"s1","action":"dance"}`,
		"bad json":        `{"type":`,
	}
	for name, raw := range cases {
		_, err := ParseClientMessage([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestNewErrorEventCarriesKind(t *testing.T) {
	ev := NewErrorEvent("s1", debate.Errorf(debate.KindSessionBusy, "session is busy"))
	assert.Equal(t, TypeErrorEvent, ev.Type)
	assert.Equal(t, "session_busy", ev.Code)
	assert.True(t, ev.Retryable)
	assert.Equal(t, "session is busy", ev.Detail)

	ev = NewErrorEvent("s1", errors.New("boom"))
	assert.Equal(t, "internal_error", ev.Code)
	assert.False(t, ev.Retryable)
}

func TestTurnEventJSON(t *testing.T) {
	ev := NewTurnEvent(orchestrator.TurnResult{
		SessionID:     "s1",
		State:         debate.State{SessionID: "s1", Phase: debate.PhaseRebuttal, CurrentRound: 1},
		AssistantTurn: orchestrator.AssistantTurn{Persona: debate.PersonaDebaterAgainst, Content: "No.", Confidence: 0.6},
	})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "turn_event", decoded["type"])
	turn := decoded["assistant_turn"].(map[string]any)
	assert.Equal(t, "debater_against", turn["persona"])
	state := decoded["state"].(map[string]any)
	assert.Equal(t, "rebuttal", state["phase"])

	typ, ok := TypeOf(ev)
	assert.True(t, ok)
	assert.Equal(t, TypeTurnEvent, typ)
}

func BenchmarkParseClientMessage(b *testing.B) {
	raw := []byte(`{"type":"client_message","session_id":"s1","action":"continue","message":"Public transit can absorb the demand."}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
	}
}
