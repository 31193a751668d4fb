// Package orchestrator is the single entry point transports use to run debates.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/controller"
	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/evaluation"
	"github.com/ent0n29/agora/internal/llm"
	"github.com/ent0n29/agora/internal/memory"
	"github.com/ent0n29/agora/internal/observability"
	"github.com/ent0n29/agora/internal/persona"
	"github.com/ent0n29/agora/internal/phase"
	"github.com/ent0n29/agora/internal/prompt"
	"github.com/ent0n29/agora/internal/session"
	"github.com/ent0n29/agora/internal/topic"
)

const (
	DefaultModelTimeout  = 30 * time.Second
	DefaultRetryInterval = 250 * time.Millisecond
	MaxMessageLength     = 4000
	MaxTopicLength       = 300
)

// Config holds debate policy values.
type Config struct {
	ModelTimeout        time.Duration
	RetryInterval       time.Duration
	AutoAdvance         bool
	DefaultUserPosition debate.Position
	EvaluationMode      evaluation.Mode
}

// Deps are the collaborators of an Orchestrator. Store, Locker and Completer are required.
type Deps struct {
	Store      session.Store
	Locker     *session.Locker
	Completer  llm.Completer
	Registry   *persona.Registry
	Assembler  *prompt.Assembler
	Compactor  *memory.Compactor
	Classifier *controller.Classifier
	Selector   *controller.Selector
	Machine    *phase.Machine
	Topics     *topic.Generator
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

type Orchestrator struct {
	cfg        Config
	store      session.Store
	locker     *session.Locker
	completer  llm.Completer
	registry   *persona.Registry
	assembler  *prompt.Assembler
	compactor  *memory.Compactor
	classifier *controller.Classifier
	selector   *controller.Selector
	machine    *phase.Machine
	topics     *topic.Generator
	scorer     *evaluation.Scorer
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Locker == nil || deps.Completer == nil || deps.Registry == nil {
		return nil, errors.New("orchestrator requires store, locker, completer and registry")
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.DefaultUserPosition == debate.PositionUnset {
		cfg.DefaultUserPosition = debate.PositionFor
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:        cfg,
		store:      deps.Store,
		locker:     deps.Locker,
		completer:  deps.Completer,
		registry:   deps.Registry,
		assembler:  deps.Assembler,
		compactor:  deps.Compactor,
		classifier: deps.Classifier,
		selector:   deps.Selector,
		machine:    deps.Machine,
		topics:     deps.Topics,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if o.assembler == nil {
		o.assembler = prompt.NewAssembler(o.registry, prompt.Options{})
	}
	if o.compactor == nil {
		o.compactor = memory.NewCompactor(memory.Config{})
	}
	if o.classifier == nil {
		o.classifier = controller.NewClassifier(controller.Keywords{})
	}
	if o.selector == nil {
		o.selector = controller.NewSelector(controller.DefaultModeratorEvery)
	}
	if o.machine == nil {
		o.machine = phase.NewMachine(phase.DefaultMinRounds)
	}
	if o.topics == nil {
		o.topics = topic.NewGenerator(o.completer, o.assembler, cfg.ModelTimeout, logger)
	}
	o.scorer = evaluation.NewScorer(cfg.EvaluationMode, o, logger)
	return o, nil
}

// lock acquires the per-session lock, mapping contention to SessionBusy.
func (o *Orchestrator) lock(ctx context.Context, sessionID string) (func(), error) {
	release, err := o.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, debate.Errorf(debate.KindSessionBusy, "another operation is in progress for this session")
	}
	return release, nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*debate.Session, error) {
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, storeError(err)
	}
	return sess, nil
}

func (o *Orchestrator) save(ctx context.Context, sess *debate.Session) error {
	started := time.Now()
	err := o.store.Save(ctx, sess)
	o.metrics.ObserveTurnStage(observability.StagePersist, time.Since(started))
	if err != nil {
		return storeError(err)
	}
	return nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return debate.Errorf(debate.KindSessionNotFound, "session not found")
	case errors.Is(err, session.ErrConflict):
		return debate.Errorf(debate.KindSessionBusy, "session was modified by another request")
	default:
		return debate.Wrap(debate.KindInternal, err, "session store failure")
	}
}

// fail records err against op and returns it unchanged.
func (o *Orchestrator) fail(op, sessionID string, err error) error {
	kind := debate.KindOf(err)
	if o.metrics != nil {
		o.metrics.Errors.WithLabelValues(string(kind)).Inc()
	}
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if kind == debate.KindInternal || kind == debate.KindUpstreamProvider {
		o.logger.Warn("debate operation failed", fields...)
	} else {
		o.logger.Debug("debate operation rejected", fields...)
	}
	return err
}

func (o *Orchestrator) recordTransitions(from debate.Phase, path []debate.Phase) {
	if o.metrics == nil {
		return
	}
	for _, to := range path {
		o.metrics.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
		from = to
	}
}
