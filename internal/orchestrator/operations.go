package orchestrator

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/controller"
	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/observability"
	"github.com/ent0n29/agora/internal/phase"
	"github.com/ent0n29/agora/internal/policy"
)

var difficulties = map[string]bool{"easy": true, "moderate": true, "hard": true}

// Start creates a session, produces the moderator welcome and opens the debate.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (TurnResult, error) {
	started := time.Now()
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		category = "general"
	}
	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = "moderate"
	}
	if !difficulties[difficulty] {
		return TurnResult{}, o.fail("start", "", debate.Errorf(debate.KindValidation, "difficulty must be easy, moderate or hard"))
	}
	userPos := o.cfg.DefaultUserPosition
	if strings.TrimSpace(req.UserPosition) != "" {
		pos, ok := debate.ParsePosition(req.UserPosition)
		if !ok {
			return TurnResult{}, o.fail("start", "", debate.Errorf(debate.KindValidation, "user_position must be for or against"))
		}
		userPos = pos
	}

	topicText := strings.TrimSpace(req.CustomTopic)
	if utf8.RuneCountInString(topicText) > MaxTopicLength {
		return TurnResult{}, o.fail("start", "", debate.Errorf(debate.KindValidation, "custom_topic exceeds %d characters", MaxTopicLength))
	}
	if topicText == "" {
		var generated bool
		topicText, generated = o.topics.Generate(ctx, category, difficulty)
		if !generated {
			o.metrics.ObserveIndicator(observability.IndicatorTopicFallback)
		}
	}

	sess, err := o.store.Create(ctx, topicText, userPos, userPos.Opposite())
	if err != nil {
		return TurnResult{}, o.fail("start", "", storeError(err))
	}
	release, err := o.lock(ctx, sess.ID)
	if err != nil {
		o.discard(sess.ID)
		return TurnResult{}, o.fail("start", sess.ID, err)
	}
	defer release()

	sess.Metadata[debate.MetaCategory] = category
	sess.Metadata[debate.MetaDifficulty] = difficulty

	sel := o.selector.Select(controller.Input{Phase: sess.Phase, AIPosition: sess.AIPosition})
	mctx, _ := o.compactor.Compact(sess)
	reply, err := o.generate(ctx, sess, sel, mctx, "")
	if err != nil {
		o.discard(sess.ID)
		return TurnResult{}, o.fail("start", sess.ID, err)
	}

	next, err := o.machine.Fire(sess.Phase, phase.EventCreated, phase.Guard{Topic: sess.Topic, UserPosition: sess.UserPosition})
	if err != nil {
		o.discard(sess.ID)
		return TurnResult{}, o.fail("start", sess.ID, err)
	}
	turn := reply.Turn(sel.Persona, sel.Purpose, o.now())
	from := sess.Phase
	sess.Phase = next
	sess.Turns = append(sess.Turns, turn)
	if err := o.save(ctx, sess); err != nil {
		o.discard(sess.ID)
		return TurnResult{}, o.fail("start", sess.ID, err)
	}

	o.recordTransitions(from, []debate.Phase{next})
	if o.metrics != nil {
		o.metrics.ActiveSessions.Inc()
		o.metrics.SessionEvents.WithLabelValues("start").Inc()
		o.metrics.Turns.WithLabelValues(string(turn.Persona)).Inc()
	}
	o.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started))
	o.logger.Info("debate started",
		zap.String("session_id", sess.ID),
		zap.String("category", category),
		zap.String("difficulty", difficulty),
		zap.String("user_position", string(sess.UserPosition)),
	)
	return TurnResult{SessionID: sess.ID, State: sess.State(), AssistantTurn: assistantTurn(turn)}, nil
}

// discard removes a session whose start did not complete.
func (o *Orchestrator) discard(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Delete(ctx, sessionID); err != nil {
		o.logger.Warn("discard unstarted session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Continue answers a user message with the persona the controller selects.
func (o *Orchestrator) Continue(ctx context.Context, sessionID, message string) (TurnResult, error) {
	return o.respond(ctx, "continue", phase.ActionContinue, sessionID, message, "")
}

// Coach answers with the coach persona regardless of message wording.
func (o *Orchestrator) Coach(ctx context.Context, sessionID, message string) (TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		message = "Please coach me on my next argument."
	}
	return o.respond(ctx, "coach", phase.ActionCoach, sessionID, message, debate.ClassCoachingRequest)
}

// Feedback answers with interim feedback from the evaluator persona.
func (o *Orchestrator) Feedback(ctx context.Context, sessionID, message string) (TurnResult, error) {
	if strings.TrimSpace(message) == "" {
		message = "How am I doing so far?"
	}
	return o.respond(ctx, "feedback", phase.ActionFeedback, sessionID, message, debate.ClassFeedbackRequest)
}

func (o *Orchestrator) respond(ctx context.Context, op string, action phase.Action, sessionID, message string, forced debate.MessageClass) (TurnResult, error) {
	started := time.Now()
	if err := validateSessionID(sessionID); err != nil {
		return TurnResult{}, o.fail(op, sessionID, err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return TurnResult{}, o.fail(op, sessionID, debate.Errorf(debate.KindValidation, "message is required"))
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return TurnResult{}, o.fail(op, sessionID, debate.Errorf(debate.KindValidation, "message exceeds %d characters", MaxMessageLength))
	}

	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return TurnResult{}, o.fail(op, sessionID, err)
	}
	defer release()

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return TurnResult{}, o.fail(op, sessionID, err)
	}
	if err := o.machine.Permit(sess.Phase, action); err != nil {
		return TurnResult{}, o.fail(op, sessionID, err)
	}

	class := forced
	if class == "" {
		class = o.classifier.Classify(message)
	}
	sel := o.selector.Select(controller.Input{
		Phase:       sess.Phase,
		Round:       sess.CurrentRound,
		LastPersona: sess.LastDebatePersona(),
		Class:       class,
		AIPosition:  sess.AIPosition,
	})

	// All changes go to a private copy that is saved once at the end.
	work := sess.Clone()
	work.Turns = append(work.Turns, debate.Turn{
		ID:        uuid.NewString(),
		Role:      debate.RoleUser,
		Content:   message,
		Timestamp: o.now(),
		Metadata:  map[string]string{debate.MetaClass: string(class)},
	})

	compactStarted := time.Now()
	mctx, summary := o.compactor.Compact(work)
	o.metrics.ObserveTurnStage(observability.StageCompaction, time.Since(compactStarted))
	if mctx.Truncated {
		o.metrics.ObserveIndicator(observability.IndicatorHistoryTruncated)
	}
	if summary != work.Memory {
		o.metrics.ObserveIndicator(observability.IndicatorSummaryRefreshed)
	}

	o.logger.Debug("generating turn",
		zap.String("session_id", sessionID),
		zap.String("persona", string(sel.Persona)),
		zap.String("class", string(class)),
		zap.String("message", policy.LogExcerpt(message, 120)),
	)
	reply, err := o.generate(ctx, work, sel, mctx, message)
	if err != nil {
		return TurnResult{}, o.fail(op, sessionID, err)
	}

	turn := reply.Turn(sel.Persona, sel.Purpose, o.now())
	work.Turns = append(work.Turns, turn)
	work.Memory = summary
	if controller.Advances(sel.Persona) {
		work.CurrentRound++
	}
	from := work.Phase
	var path []debate.Phase
	if o.cfg.AutoAdvance {
		work.Phase, path = o.machine.Settle(work.Phase, work.CurrentRound)
	}

	if err := o.save(ctx, work); err != nil {
		return TurnResult{}, o.fail(op, sessionID, err)
	}

	o.recordTransitions(from, path)
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues(op).Inc()
		o.metrics.Turns.WithLabelValues(string(turn.Persona)).Inc()
	}
	o.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started))
	return TurnResult{SessionID: sessionID, State: work.State(), AssistantTurn: assistantTurn(turn)}, nil
}

// Advance moves the session to the next debate phase when its guard allows.
func (o *Orchestrator) Advance(ctx context.Context, sessionID string) (debate.State, error) {
	if err := validateSessionID(sessionID); err != nil {
		return debate.State{}, o.fail("advance", sessionID, err)
	}
	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return debate.State{}, o.fail("advance", sessionID, err)
	}
	defer release()

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return debate.State{}, o.fail("advance", sessionID, err)
	}
	if err := o.machine.Permit(sess.Phase, phase.ActionAdvance); err != nil {
		return debate.State{}, o.fail("advance", sessionID, err)
	}
	next, err := o.machine.Fire(sess.Phase, phase.EventAdvance, phase.Guard{Round: sess.CurrentRound})
	if err != nil {
		return debate.State{}, o.fail("advance", sessionID, err)
	}
	from := sess.Phase
	sess.Phase = next
	if err := o.save(ctx, sess); err != nil {
		return debate.State{}, o.fail("advance", sessionID, err)
	}
	o.recordTransitions(from, []debate.Phase{next})
	return sess.State(), nil
}

// End forces the session through evaluation to complete and returns the report.
func (o *Orchestrator) End(ctx context.Context, sessionID string) (EndResult, error) {
	started := time.Now()
	if err := validateSessionID(sessionID); err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}
	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}
	defer release()

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}
	if err := o.machine.Permit(sess.Phase, phase.ActionEnd); err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}

	work := sess.Clone()
	from := work.Phase
	evaluating, err := o.machine.Fire(work.Phase, phase.EventEnd, phase.Guard{Round: work.CurrentRound})
	if err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}
	work.Phase = evaluating

	report := o.scorer.Evaluate(ctx, work)
	o.metrics.ObserveTurnStage(observability.StageEvaluation, time.Since(started))
	if report.Source == debate.ReportSourceDefault {
		o.metrics.ObserveIndicator(observability.IndicatorEvaluationDefaulted)
	}

	complete, err := o.machine.Fire(work.Phase, phase.EventReportReady, phase.Guard{})
	if err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}
	conf := overallScore(report)
	work.Turns = append(work.Turns, debate.Turn{
		ID:         uuid.NewString(),
		Role:       debate.RoleAssistant,
		Persona:    debate.PersonaFeedbackEvaluator,
		Content:    report.Summary,
		Confidence: &conf,
		Timestamp:  o.now(),
		Metadata: map[string]string{
			debate.MetaPurpose:      debate.PurposeEvaluation,
			debate.MetaReportSource: report.Source,
		},
	})
	work.Evaluation = report
	work.Phase = complete

	if err := o.save(ctx, work); err != nil {
		return EndResult{}, o.fail("end", sessionID, err)
	}
	o.recordTransitions(from, []debate.Phase{evaluating, complete})
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues("end").Inc()
		o.metrics.Turns.WithLabelValues(string(debate.PersonaFeedbackEvaluator)).Inc()
	}
	o.logger.Info("debate ended",
		zap.String("session_id", sessionID),
		zap.Int("rounds", work.CurrentRound),
		zap.String("report_source", report.Source),
	)
	return EndResult{SessionID: sessionID, State: work.State(), Report: report.Clone()}, nil
}

// GetState returns the current state of a session.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (debate.State, error) {
	if err := validateSessionID(sessionID); err != nil {
		return debate.State{}, o.fail("get_state", sessionID, err)
	}
	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return debate.State{}, o.fail("get_state", sessionID, err)
	}
	return sess.State(), nil
}

// Transcript returns every turn of a session plus its report once ended.
func (o *Orchestrator) Transcript(ctx context.Context, sessionID string) (Transcript, error) {
	if err := validateSessionID(sessionID); err != nil {
		return Transcript{}, o.fail("transcript", sessionID, err)
	}
	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return Transcript{}, o.fail("transcript", sessionID, err)
	}
	return Transcript{State: sess.State(), Turns: sess.Turns, Evaluation: sess.Evaluation}, nil
}

// Delete removes a session. It waits for, or rejects against, an in-flight operation
// like any other mutation.
func (o *Orchestrator) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return o.fail("delete", sessionID, err)
	}
	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return o.fail("delete", sessionID, err)
	}
	defer release()

	if err := o.store.Delete(ctx, sessionID); err != nil {
		return o.fail("delete", sessionID, storeError(err))
	}
	if o.metrics != nil {
		o.metrics.ActiveSessions.Dec()
		o.metrics.SessionEvents.WithLabelValues("delete").Inc()
	}
	o.logger.Info("debate deleted", zap.String("session_id", sessionID))
	return nil
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return debate.Errorf(debate.KindValidation, "session_id is required")
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return debate.Errorf(debate.KindValidation, "session_id %q is not a valid id", sessionID)
	}
	return nil
}

func overallScore(r *debate.Report) float64 {
	total := 0.0
	for _, d := range debate.Dimensions() {
		total += r.Scores[d]
	}
	return total / float64(len(debate.Dimensions()))
}
