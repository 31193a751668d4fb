package debate

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionJSONRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	conf := 0.72
	s := &Session{
		ID:           "0f8fad5b-d9cb-469f-a165-70867728950e",
		Topic:        "Remote work improves productivity",
		UserPosition: PositionFor,
		AIPosition:   PositionAgainst,
		Phase:        PhaseRebuttal,
		CurrentRound: 2,
		Turns: []Turn{
			{ID: "t1", Role: RoleUser, Content: "Commutes waste time.", Timestamp: now, Metadata: map[string]string{MetaClass: string(ClassNormalArgument)}},
			{ID: "t2", Role: RoleAssistant, Persona: PersonaDebaterAgainst, Content: "Collaboration suffers.", Confidence: &conf, Reasoning: "studies", Timestamp: now, Metadata: map[string]string{MetaPurpose: PurposeArgument}},
		},
		Memory:    &MemorySummary{Content: "user: commutes", Covered: 1, UpdatedAt: now},
		Metadata:  map[string]string{MetaCategory: "technology", MetaDifficulty: "moderate"},
		Version:   3,
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
	}

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var got Session
	require.NoError(t, json.Unmarshal(raw, &got))
	if diff := cmp.Diff(s, &got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	conf := 0.5
	s := &Session{
		Turns:    []Turn{{ID: "a", Confidence: &conf, Metadata: map[string]string{"k": "v"}}},
		Metadata: map[string]string{MetaCategory: "x"},
	}
	c := s.Clone()
	*c.Turns[0].Confidence = 0.9
	c.Turns[0].Metadata["k"] = "changed"
	c.Metadata[MetaCategory] = "y"
	c.Turns = append(c.Turns, Turn{ID: "b"})

	assert.Equal(t, 0.5, *s.Turns[0].Confidence)
	assert.Equal(t, "v", s.Turns[0].Metadata["k"])
	assert.Equal(t, "x", s.Metadata[MetaCategory])
	assert.Len(t, s.Turns, 1)
}

func TestPhaseOrdering(t *testing.T) {
	order := []Phase{PhaseSetup, PhaseOpening, PhaseRebuttal, PhaseClosing, PhaseEvaluation, PhaseComplete}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1].Ordinal(), order[i].Ordinal())
	}
	assert.Equal(t, -1, Phase("bogus").Ordinal())
	assert.True(t, PhaseRebuttal.Active())
	assert.False(t, PhaseEvaluation.Active())
}

func TestPositionOpposite(t *testing.T) {
	assert.Equal(t, PositionAgainst, PositionFor.Opposite())
	assert.Equal(t, PositionFor, PositionAgainst.Opposite())
	assert.Equal(t, PositionUnset, PositionUnset.Opposite())

	p, ok := ParsePosition(" Against ")
	assert.True(t, ok)
	assert.Equal(t, PositionAgainst, p)
	_, ok = ParsePosition("maybe")
	assert.False(t, ok)
}

func TestLastPersonaSkipsUserTurns(t *testing.T) {
	s := &Session{Turns: []Turn{
		{Role: RoleAssistant, Persona: PersonaModerator},
		{Role: RoleUser},
	}}
	assert.Equal(t, PersonaModerator, s.LastPersona())
	assert.Equal(t, Persona(""), (&Session{}).LastPersona())
}

func TestLastDebatePersonaSkipsSideTurns(t *testing.T) {
	s := &Session{Turns: []Turn{
		{Role: RoleAssistant, Persona: PersonaDebaterAgainst, Metadata: map[string]string{MetaPurpose: PurposeArgument}},
		{Role: RoleUser, Metadata: map[string]string{MetaClass: string(ClassCoachingRequest)}},
		{Role: RoleAssistant, Persona: PersonaCoach, Metadata: map[string]string{MetaPurpose: PurposeCoaching}},
		{Role: RoleUser, Metadata: map[string]string{MetaClass: string(ClassFeedbackRequest)}},
		{Role: RoleAssistant, Persona: PersonaFeedbackEvaluator, Metadata: map[string]string{MetaPurpose: PurposeFeedback}},
		{Role: RoleUser, Metadata: map[string]string{MetaClass: string(ClassTopicChangeRequest)}},
		{Role: RoleAssistant, Persona: PersonaModerator, Metadata: map[string]string{MetaPurpose: PurposeModeration}},
	}}
	assert.Equal(t, PersonaModerator, s.LastPersona())
	assert.Equal(t, PersonaDebaterAgainst, s.LastDebatePersona())

	s.Turns = append(s.Turns,
		Turn{Role: RoleUser, Metadata: map[string]string{MetaClass: string(ClassNormalArgument)}},
		Turn{Role: RoleAssistant, Persona: PersonaModerator, Metadata: map[string]string{MetaPurpose: PurposeModeration}},
	)
	assert.Equal(t, PersonaModerator, s.LastDebatePersona())
	assert.Equal(t, Persona(""), (&Session{}).LastDebatePersona())
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("continue: %w", Errorf(KindSessionBusy, "session %s is busy", "abc"))
	assert.Equal(t, KindSessionBusy, KindOf(err))
	assert.True(t, errors.Is(err, ErrSessionBusy))
	assert.False(t, errors.Is(err, ErrPhaseViolation))
	assert.True(t, KindOf(err).Retryable())
	assert.Equal(t, "session abc is busy", MessageOf(err))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Nil(t, Wrap(KindParse, nil, "x"))
}
