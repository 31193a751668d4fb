package debate

import (
	"strings"
	"time"
)

// Phase is a lifecycle stage of a debate session.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseOpening    Phase = "opening"
	PhaseRebuttal   Phase = "rebuttal"
	PhaseClosing    Phase = "closing"
	PhaseEvaluation Phase = "evaluation"
	PhaseComplete   Phase = "complete"
)

var phaseOrder = map[Phase]int{
	PhaseSetup:      0,
	PhaseOpening:    1,
	PhaseRebuttal:   2,
	PhaseClosing:    3,
	PhaseEvaluation: 4,
	PhaseComplete:   5,
}

// Ordinal returns the position of p in the lifecycle, or -1 for an unknown phase.
func (p Phase) Ordinal() int {
	n, ok := phaseOrder[p]
	if !ok {
		return -1
	}
	return n
}

func (p Phase) Valid() bool { return p.Ordinal() >= 0 }

// Active reports whether arguments can still be exchanged in p.
func (p Phase) Active() bool {
	switch p {
	case PhaseOpening, PhaseRebuttal, PhaseClosing:
		return true
	default:
		return false
	}
}

func (p Phase) Terminal() bool { return p == PhaseComplete }

// Position is the side a participant argues.
type Position string

const (
	PositionUnset   Position = ""
	PositionFor     Position = "for"
	PositionAgainst Position = "against"
)

// ParsePosition accepts "for"/"against" in any case, plus a few common synonyms.
func ParsePosition(raw string) (Position, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "for", "pro", "support", "affirmative":
		return PositionFor, true
	case "against", "con", "oppose", "negative":
		return PositionAgainst, true
	default:
		return PositionUnset, false
	}
}

// Opposite returns the other side. The unset position has no opposite.
func (p Position) Opposite() Position {
	switch p {
	case PositionFor:
		return PositionAgainst
	case PositionAgainst:
		return PositionFor
	default:
		return PositionUnset
	}
}

// Role is the speaker role of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Persona is the voice the assistant speaks with on a given turn.
type Persona string

const (
	PersonaDebaterFor        Persona = "debater_for"
	PersonaDebaterAgainst    Persona = "debater_against"
	PersonaCoach             Persona = "coach"
	PersonaModerator         Persona = "moderator"
	PersonaFeedbackEvaluator Persona = "feedback_evaluator"

	// PersonaMemory tags the rolling summary turn. It never speaks.
	PersonaMemory Persona = "memory"
)

// Personas lists the closed set of speaking personas.
func Personas() []Persona {
	return []Persona{
		PersonaDebaterFor,
		PersonaDebaterAgainst,
		PersonaCoach,
		PersonaModerator,
		PersonaFeedbackEvaluator,
	}
}

func (p Persona) Valid() bool {
	for _, known := range Personas() {
		if p == known {
			return true
		}
	}
	return false
}

// IsDebater reports whether p argues a side.
func (p Persona) IsDebater() bool {
	return p == PersonaDebaterFor || p == PersonaDebaterAgainst
}

// DebaterFor returns the debater persona arguing pos.
func DebaterFor(pos Position) Persona {
	if pos == PositionAgainst {
		return PersonaDebaterAgainst
	}
	return PersonaDebaterFor
}

// MessageClass is the deterministic classification of a user message.
type MessageClass string

const (
	ClassNormalArgument     MessageClass = "normal_argument"
	ClassCoachingRequest    MessageClass = "coaching_request"
	ClassFeedbackRequest    MessageClass = "feedback_request"
	ClassTopicChangeRequest MessageClass = "topic_change_request"
)

// Turn purposes recorded in Turn.Metadata["purpose"].
const (
	PurposeArgument   = "argument"
	PurposeCoaching   = "coaching"
	PurposeFeedback   = "feedback"
	PurposeModeration = "moderation"
	PurposeWelcome    = "welcome"
	PurposeEvaluation = "evaluation"
	PurposeSummary    = "summary"
)

// Metadata keys.
const (
	MetaPurpose      = "purpose"
	MetaWarning      = "warning"
	MetaClass        = "class"
	MetaCategory     = "category"
	MetaDifficulty   = "difficulty"
	MetaReportSource = "report_source"
)

// WarningConfidenceDefaulted marks a turn whose confidence was replaced by the neutral default.
const WarningConfidenceDefaulted = "confidence_defaulted"

// Turn is one immutable entry of a session transcript.
type Turn struct {
	ID         string            `json:"id"`
	Role       Role              `json:"role"`
	Persona    Persona           `json:"persona,omitempty"`
	Content    string            `json:"content"`
	Confidence *float64          `json:"confidence,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (t Turn) Purpose() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaPurpose]
}

// MemorySummary is the rolling summary of the older part of a transcript.
type MemorySummary struct {
	Content   string    `json:"content"`
	Covered   int       `json:"covered"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dimension is one axis of the end-of-session evaluation.
type Dimension string

const (
	DimensionArgumentStrength Dimension = "argument_strength"
	DimensionRebuttalQuality  Dimension = "rebuttal_quality"
	DimensionConsistency      Dimension = "consistency"
	DimensionEvidenceUse      Dimension = "evidence_use"
)

// Dimensions lists every rubric dimension a report must populate.
func Dimensions() []Dimension {
	return []Dimension{
		DimensionArgumentStrength,
		DimensionRebuttalQuality,
		DimensionConsistency,
		DimensionEvidenceUse,
	}
}

// Report sources.
const (
	ReportSourceModel   = "model"
	ReportSourceRubric  = "rubric"
	ReportSourceDefault = "default"
)

// Signals are deterministic transcript statistics attached to every report.
type Signals struct {
	UserArguments     int     `json:"user_arguments"`
	MeanLength        float64 `json:"mean_length"`
	LengthStdDev      float64 `json:"length_stddev"`
	EvidenceRate      float64 `json:"evidence_rate"`
	MeanAIConfidence  float64 `json:"mean_ai_confidence"`
	AssistantArgTurns int     `json:"assistant_argument_turns"`
}

// Report is the structured end-of-session evaluation.
type Report struct {
	Scores      map[Dimension]float64 `json:"scores"`
	Summary     string                `json:"summary"`
	Strengths   []string              `json:"strengths,omitempty"`
	Suggestions []string              `json:"suggestions,omitempty"`
	Source      string                `json:"source"`
	Signals     Signals               `json:"signals"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Session is the durable record of one debate.
type Session struct {
	ID           string            `json:"session_id"`
	Topic        string            `json:"topic"`
	UserPosition Position          `json:"user_position"`
	AIPosition   Position          `json:"ai_position"`
	Phase        Phase             `json:"phase"`
	CurrentRound int               `json:"current_round"`
	Turns        []Turn            `json:"turns"`
	Memory       *MemorySummary    `json:"memory,omitempty"`
	Evaluation   *Report           `json:"evaluation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Version      int               `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// LastPersona returns the persona of the most recent assistant turn.
func (s *Session) LastPersona() Persona {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return s.Turns[i].Persona
		}
	}
	return ""
}

// LastDebatePersona returns the persona of the most recent assistant turn that belongs
// to the debate itself. Coaching and feedback replies, and moderator replies to a topic
// change request, are side turns and are skipped.
func (s *Session) LastDebatePersona() Persona {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		t := s.Turns[i]
		if t.Role != RoleAssistant {
			continue
		}
		switch t.Purpose() {
		case PurposeCoaching, PurposeFeedback:
			continue
		}
		if i > 0 && s.Turns[i-1].Role == RoleUser &&
			s.Turns[i-1].Metadata[MetaClass] == string(ClassTopicChangeRequest) {
			continue
		}
		return t.Persona
	}
	return ""
}

func (s *Session) Meta(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

// Clone returns a deep copy. Stores hand out clones so callers never share turn slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Turns != nil {
		c.Turns = make([]Turn, len(s.Turns))
		for i, t := range s.Turns {
			c.Turns[i] = t.Clone()
		}
	}
	if s.Memory != nil {
		m := *s.Memory
		c.Memory = &m
	}
	if s.Evaluation != nil {
		c.Evaluation = s.Evaluation.Clone()
	}
	c.Metadata = cloneStrings(s.Metadata)
	return &c
}

func (t Turn) Clone() Turn {
	c := t
	if t.Confidence != nil {
		v := *t.Confidence
		c.Confidence = &v
	}
	c.Metadata = cloneStrings(t.Metadata)
	return c
}

func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	if r.Scores != nil {
		c.Scores = make(map[Dimension]float64, len(r.Scores))
		for k, v := range r.Scores {
			c.Scores[k] = v
		}
	}
	c.Strengths = append([]string(nil), r.Strengths...)
	c.Suggestions = append([]string(nil), r.Suggestions...)
	return &c
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// State is the externally visible snapshot of a session.
type State struct {
	SessionID    string    `json:"session_id"`
	Topic        string    `json:"topic"`
	UserPosition Position  `json:"user_position"`
	AIPosition   Position  `json:"ai_position"`
	Phase        Phase     `json:"phase"`
	CurrentRound int       `json:"current_round"`
	TurnCount    int       `json:"turn_count"`
	Category     string    `json:"category,omitempty"`
	Difficulty   string    `json:"difficulty,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Session) State() State {
	return State{
		SessionID:    s.ID,
		Topic:        s.Topic,
		UserPosition: s.UserPosition,
		AIPosition:   s.AIPosition,
		Phase:        s.Phase,
		CurrentRound: s.CurrentRound,
		TurnCount:    len(s.Turns),
		Category:     s.Meta(MetaCategory),
		Difficulty:   s.Meta(MetaDifficulty),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
