// Package evaluation produces the end-of-debate report.
package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/normalize"
)

type Mode string

const (
	ModeModel  Mode = "model"
	ModeRubric Mode = "rubric"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeModel:
		return ModeModel, nil
	case ModeRubric:
		return ModeRubric, nil
	default:
		return "", fmt.Errorf("unsupported evaluation mode %q", raw)
	}
}

// Asker runs the model-assisted evaluation call for a session.
type Asker interface {
	AskEvaluation(ctx context.Context, s *debate.Session) (normalize.Reply, error)
}

// Scorer evaluates finished debates. Evaluate always returns a complete report.
type Scorer struct {
	mode   Mode
	asker  Asker
	logger *zap.Logger
	now    func() time.Time
}

func NewScorer(mode Mode, asker Asker, logger *zap.Logger) *Scorer {
	if mode == "" {
		mode = ModeModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{mode: mode, asker: asker, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Scorer) Mode() Mode { return s.mode }

// Evaluate scores the session. Failures of the model call and panics inside scoring
// produce a report with neutral scores instead of an error.
func (s *Scorer) Evaluate(ctx context.Context, sess *debate.Session) *debate.Report {
	var (
		report *debate.Report
		pc     panics.Catcher
	)
	pc.Try(func() { report = s.evaluate(ctx, sess) })
	if r := pc.Recovered(); r != nil {
		s.logger.Error("evaluation panicked",
			zap.String("session_id", sess.ID),
			zap.Error(r.AsError()),
		)
		report = s.defaultReport(sess, debate.Signals{})
	}
	return report
}

func (s *Scorer) evaluate(ctx context.Context, sess *debate.Session) *debate.Report {
	sig := ComputeSignals(sess)
	if s.mode == ModeRubric || s.asker == nil {
		scores := rubricScores(sess, sig)
		strengths, suggestions := rubricAdvice(sig, scores)
		return &debate.Report{
			Scores:      scores,
			Summary:     rubricSummary(sig, scores),
			Strengths:   strengths,
			Suggestions: suggestions,
			Source:      debate.ReportSourceRubric,
			Signals:     sig,
			GeneratedAt: s.now(),
		}
	}

	reply, err := s.asker.AskEvaluation(ctx, sess)
	if err != nil {
		s.logger.Warn("model evaluation failed, using neutral scores",
			zap.String("session_id", sess.ID),
			zap.String("kind", string(debate.KindOf(err))),
			zap.Error(err),
		)
		return s.defaultReport(sess, sig)
	}
	return s.fromReply(reply, sess, sig)
}

func (s *Scorer) fromReply(reply normalize.Reply, sess *debate.Session, sig debate.Signals) *debate.Report {
	scores := neutralScores()
	raw, _ := reply.Fields["scores"].(map[string]any)
	missing := 0
	for _, d := range debate.Dimensions() {
		v, ok := normalize.ParseUnit(raw[string(d)])
		if !ok {
			missing++
			continue
		}
		scores[d] = v
	}
	if missing > 0 {
		s.logger.Debug("evaluation reply missing dimensions",
			zap.String("session_id", sess.ID),
			zap.Int("missing", missing),
		)
	}

	rubricStrengths, rubricSuggestions := rubricAdvice(sig, rubricScores(sess, sig))
	strengths := stringList(reply.Fields["strengths"])
	if len(strengths) == 0 {
		strengths = rubricStrengths
	}
	suggestions := stringList(reply.Fields["suggestions"])
	if len(suggestions) == 0 {
		suggestions = rubricSuggestions
	}

	return &debate.Report{
		Scores:      scores,
		Summary:     reply.Content,
		Strengths:   strengths,
		Suggestions: suggestions,
		Source:      debate.ReportSourceModel,
		Signals:     sig,
		GeneratedAt: s.now(),
	}
}

func (s *Scorer) defaultReport(sess *debate.Session, sig debate.Signals) *debate.Report {
	_, suggestions := rubricAdvice(sig, neutralScores())
	return &debate.Report{
		Scores:      neutralScores(),
		Summary:     fmt.Sprintf("Thank you for debating %q. A detailed evaluation was not available, so neutral scores were recorded.", sess.Topic),
		Suggestions: suggestions,
		Source:      debate.ReportSourceDefault,
		Signals:     sig,
		GeneratedAt: s.now(),
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
			out = append(out, strings.TrimSpace(text))
		}
	}
	return out
}
