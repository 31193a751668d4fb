// Package phase implements the debate lifecycle state machine.
package phase

import (
	"strings"

	"github.com/ent0n29/agora/internal/debate"
)

// Event drives a transition.
type Event string

const (
	EventCreated     Event = "created"
	EventAdvance     Event = "advance"
	EventEnd         Event = "end"
	EventReportReady Event = "report_ready"
)

// Action is a request kind checked against the current phase.
type Action string

const (
	ActionContinue Action = "continue"
	ActionCoach    Action = "coach"
	ActionFeedback Action = "feedback"
	ActionAdvance  Action = "advance"
	ActionEnd      Action = "end"
)

// Guard carries the session facts transitions depend on.
type Guard struct {
	Round        int
	Topic        string
	UserPosition debate.Position
}

const DefaultMinRounds = 3

// Machine validates and applies phase transitions. It holds no session state.
type Machine struct {
	minRounds int
}

func NewMachine(minRounds int) *Machine {
	if minRounds <= 0 {
		minRounds = DefaultMinRounds
	}
	return &Machine{minRounds: minRounds}
}

func (m *Machine) MinRounds() int { return m.minRounds }

// Fire returns the phase reached from current on ev, or a phase violation.
func (m *Machine) Fire(current debate.Phase, ev Event, g Guard) (debate.Phase, error) {
	if !current.Valid() {
		return current, debate.Errorf(debate.KindPhaseViolation, "unknown phase %q", current)
	}

	switch ev {
	case EventCreated:
		if current != debate.PhaseSetup {
			return current, violation(current, ev, "session already started")
		}
		if strings.TrimSpace(g.Topic) == "" {
			return current, violation(current, ev, "topic is required")
		}
		if g.UserPosition == debate.PositionUnset {
			return current, violation(current, ev, "user position is required")
		}
		return debate.PhaseOpening, nil

	case EventAdvance:
		switch current {
		case debate.PhaseOpening:
			if g.Round < 1 {
				return current, violation(current, ev, "at least one round must complete before rebuttal")
			}
			return debate.PhaseRebuttal, nil
		case debate.PhaseRebuttal:
			if g.Round < m.minRounds {
				return current, violation(current, ev, "closing requires at least %d rounds, have %d", m.minRounds, g.Round)
			}
			return debate.PhaseClosing, nil
		case debate.PhaseClosing:
			return current, violation(current, ev, "closing ends only with an explicit end request")
		default:
			return current, violation(current, ev, "no further debate phase")
		}

	case EventEnd:
		if current.Terminal() {
			return current, violation(current, ev, "session is complete")
		}
		return debate.PhaseEvaluation, nil

	case EventReportReady:
		if current != debate.PhaseEvaluation {
			return current, violation(current, ev, "no evaluation in progress")
		}
		return debate.PhaseComplete, nil

	default:
		return current, debate.Errorf(debate.KindPhaseViolation, "unknown event %q", ev)
	}
}

// Settle applies EventAdvance while its guard passes and returns every phase passed through.
func (m *Machine) Settle(current debate.Phase, round int) (debate.Phase, []debate.Phase) {
	var path []debate.Phase
	for {
		if current != debate.PhaseOpening && current != debate.PhaseRebuttal {
			return current, path
		}
		next, err := m.Fire(current, EventAdvance, Guard{Round: round})
		if err != nil {
			return current, path
		}
		path = append(path, next)
		current = next
	}
}

// Permit checks that action may be requested while the session is in current.
func (m *Machine) Permit(current debate.Phase, action Action) error {
	switch action {
	case ActionContinue, ActionCoach, ActionFeedback:
		if current.Active() {
			return nil
		}
	case ActionAdvance:
		if current == debate.PhaseOpening || current == debate.PhaseRebuttal {
			return nil
		}
	case ActionEnd:
		if current.Valid() && !current.Terminal() {
			return nil
		}
	default:
		return debate.Errorf(debate.KindValidation, "unknown action %q", action)
	}
	return debate.Errorf(debate.KindPhaseViolation, "%s is not allowed in phase %s", action, current)
}

// Before reports whether a precedes b in the lifecycle.
func Before(a, b debate.Phase) bool {
	return a.Ordinal() < b.Ordinal()
}

func violation(current debate.Phase, ev Event, format string, args ...any) error {
	e := debate.Errorf(debate.KindPhaseViolation, format, args...)
	e.Message = string(ev) + " rejected in " + string(current) + ": " + e.Message
	return e
}
