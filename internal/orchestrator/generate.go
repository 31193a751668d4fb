package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/controller"
	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/llm"
	"github.com/ent0n29/agora/internal/memory"
	"github.com/ent0n29/agora/internal/normalize"
	"github.com/ent0n29/agora/internal/observability"
	"github.com/ent0n29/agora/internal/prompt"
	"github.com/ent0n29/agora/internal/reliability"
)

// maxModelRetries is the number of repeats after the first model call.
const maxModelRetries = 1

// generate runs one persona decision: a model call with at most one retry, then
// normalization. It never touches the session.
func (o *Orchestrator) generate(ctx context.Context, sess *debate.Session, sel controller.Selection, mctx memory.Context, message string) (normalize.Reply, error) {
	behavior, err := o.registry.Lookup(sel.Persona)
	if err != nil {
		return normalize.Reply{}, err
	}
	req, err := o.assembler.Build(prompt.Input{
		SessionID: sess.ID,
		Persona:   sel.Persona,
		Purpose:   sel.Purpose,
		Phase:     sess.Phase,
		Context:   mctx,
		Message:   message,
	})
	if err != nil {
		return normalize.Reply{}, err
	}

	persona := string(sel.Persona)
	attempt := 0
	reply, err := reliability.Retry(ctx, reliability.RetryPolicy{
		MaxRetries:      maxModelRetries,
		InitialInterval: o.cfg.RetryInterval,
		MaxInterval:     o.cfg.RetryInterval,
	}, func() (normalize.Reply, error) {
		attempt++
		started := time.Now()
		raw, err := o.completer.Complete(ctx, req, o.cfg.ModelTimeout)
		elapsed := time.Since(started)
		if err != nil {
			return normalize.Reply{}, o.classifyModelError(persona, elapsed, err)
		}
		reply, err := behavior.ParseReply(raw)
		if err != nil {
			o.metrics.ObserveModelCall(persona, "parse_error", elapsed)
			return normalize.Reply{}, err
		}
		o.metrics.ObserveModelCall(persona, "ok", elapsed)
		return reply, nil
	}, func(err error, wait time.Duration) {
		if o.metrics != nil {
			o.metrics.ModelRetries.WithLabelValues(persona).Inc()
		}
		o.metrics.ObserveIndicator(observability.IndicatorModelRetry)
		o.logger.Info("retrying model call",
			zap.String("session_id", sess.ID),
			zap.String("persona", persona),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("kind", string(debate.KindOf(err))),
			zap.Error(err),
		)
	})
	if err != nil {
		if debate.KindOf(err) == debate.KindParse {
			return normalize.Reply{}, debate.Wrap(debate.KindUpstreamProvider, err, "model reply was invalid after retry")
		}
		if ctxErr := ctx.Err(); ctxErr != nil && debate.KindOf(err) != debate.KindUpstreamProvider {
			return normalize.Reply{}, debate.Wrap(debate.KindUpstreamProvider, ctxErr, "request cancelled during model call")
		}
		return normalize.Reply{}, err
	}
	for _, w := range reply.Warnings {
		if w == debate.WarningConfidenceDefaulted {
			o.metrics.ObserveIndicator(observability.IndicatorConfidenceDefaulted)
		}
	}
	return reply, nil
}

// classifyModelError tags a completer failure. Timeouts and permanent provider errors
// stop the retry loop; transient ones may be repeated once.
func (o *Orchestrator) classifyModelError(persona string, elapsed time.Duration, err error) error {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		o.metrics.ObserveModelCall(persona, "timeout", elapsed)
		return reliability.Permanent(debate.Wrap(debate.KindUpstreamProvider, err, "model call timed out"))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.metrics.ObserveModelCall(persona, "cancelled", elapsed)
		return reliability.Permanent(debate.Wrap(debate.KindUpstreamProvider, err, "request cancelled during model call"))
	case reliability.IsTransient(err):
		o.metrics.ObserveModelCall(persona, "transient_error", elapsed)
		return debate.Wrap(debate.KindUpstreamProvider, err, "model provider failed")
	default:
		o.metrics.ObserveModelCall(persona, "error", elapsed)
		return reliability.Permanent(debate.Wrap(debate.KindUpstreamProvider, err, "model provider failed"))
	}
}

// AskEvaluation runs the evaluator persona over the whole session. It satisfies
// evaluation.Asker.
func (o *Orchestrator) AskEvaluation(ctx context.Context, sess *debate.Session) (normalize.Reply, error) {
	mctx, _ := o.compactor.Compact(sess)
	sel := controller.Selection{Persona: debate.PersonaFeedbackEvaluator, Purpose: debate.PurposeEvaluation}
	return o.generate(ctx, sess, sel, mctx, "")
}
