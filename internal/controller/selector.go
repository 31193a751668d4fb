// Package controller decides which persona answers a user message.
package controller

import "github.com/ent0n29/agora/internal/debate"

const DefaultModeratorEvery = 3

// Input is everything the selection depends on.
type Input struct {
	Phase debate.Phase
	Round int
	// LastPersona is the last persona that argued or moderated; side turns such as
	// coaching are not counted.
	LastPersona debate.Persona
	Class       debate.MessageClass
	AIPosition  debate.Position
}

// Selection is the chosen persona and the purpose of its turn.
type Selection struct {
	Persona debate.Persona
	Purpose string
}

// Selector is a pure function of its Input; it holds configuration only.
type Selector struct {
	moderatorEvery int
}

// NewSelector returns a selector inserting a moderator turn every n rounds. n <= 0 disables it.
func NewSelector(moderatorEvery int) *Selector {
	if moderatorEvery < 0 {
		moderatorEvery = 0
	}
	return &Selector{moderatorEvery: moderatorEvery}
}

func (s *Selector) Select(in Input) Selection {
	switch in.Phase {
	case debate.PhaseSetup:
		return Selection{Persona: debate.PersonaModerator, Purpose: debate.PurposeWelcome}
	case debate.PhaseEvaluation, debate.PhaseComplete:
		return Selection{Persona: debate.PersonaFeedbackEvaluator, Purpose: debate.PurposeEvaluation}
	}

	switch in.Class {
	case debate.ClassCoachingRequest:
		return Selection{Persona: debate.PersonaCoach, Purpose: debate.PurposeCoaching}
	case debate.ClassFeedbackRequest:
		return Selection{Persona: debate.PersonaFeedbackEvaluator, Purpose: debate.PurposeFeedback}
	case debate.ClassTopicChangeRequest:
		return Selection{Persona: debate.PersonaModerator, Purpose: debate.PurposeModeration}
	}

	if s.moderatorDue(in) {
		return Selection{Persona: debate.PersonaModerator, Purpose: debate.PurposeModeration}
	}
	return Selection{Persona: debate.DebaterFor(in.AIPosition), Purpose: debate.PurposeArgument}
}

func (s *Selector) moderatorDue(in Input) bool {
	if s.moderatorEvery == 0 || in.Round == 0 {
		return false
	}
	return in.Round%s.moderatorEvery == 0 && in.LastPersona.IsDebater()
}

// Advances reports whether a turn by p completes a round.
func Advances(p debate.Persona) bool {
	return p.IsDebater()
}
