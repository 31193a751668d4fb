package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/config"
	"github.com/ent0n29/agora/internal/controller"
	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/evaluation"
	"github.com/ent0n29/agora/internal/httpapi"
	"github.com/ent0n29/agora/internal/llm"
	"github.com/ent0n29/agora/internal/memory"
	"github.com/ent0n29/agora/internal/normalize"
	"github.com/ent0n29/agora/internal/observability"
	"github.com/ent0n29/agora/internal/orchestrator"
	"github.com/ent0n29/agora/internal/persona"
	"github.com/ent0n29/agora/internal/phase"
	"github.com/ent0n29/agora/internal/prompt"
	"github.com/ent0n29/agora/internal/session"
	"github.com/ent0n29/agora/internal/topic"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Store        session.Store
	Orchestrator *orchestrator.Orchestrator
	Janitor      *session.Janitor
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// Provider is the model provider actually in use, e.g. "gemini+http" or "mock".
	Provider string

	// Cleanup should be called on shutdown to release the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	busyMode, err := session.ParseBusyMode(cfg.SessionBusyMode)
	if err != nil {
		return nil, err
	}
	evalMode, err := evaluation.ParseMode(cfg.DebateEvaluationMode)
	if err != nil {
		return nil, err
	}
	userPos, ok := debate.ParsePosition(cfg.DebateDefaultUserPosition)
	if !ok {
		return nil, fmt.Errorf("invalid DEBATE_DEFAULT_USER_POSITION %q", cfg.DebateDefaultUserPosition)
	}

	catalog, err := persona.LoadCatalog(cfg.PersonaCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("persona catalog load failed: %w", err)
	}
	registry, err := persona.NewRegistry(catalog, normalize.New(cfg.DebateStrictJSON))
	if err != nil {
		return nil, fmt.Errorf("persona registry init failed: %w", err)
	}

	completer, provider, err := llm.NewCompleter(ctx, llm.Config{
		Provider:     cfg.LLMProvider,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		HTTPURL:      cfg.LLMHTTPURL,
		MockLines:    registry.Fallbacks(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider init failed: %w", err)
	}

	store, err := session.NewStore(ctx, session.Config{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		AutoMigrate: cfg.StoreAutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}
	if n, err := store.Count(ctx); err == nil {
		metrics.ActiveSessions.Set(float64(n))
	}

	assembler := prompt.NewAssembler(registry, prompt.Options{
		MaxTokens:          cfg.LLMMaxTokens,
		DefaultTemperature: cfg.LLMTemperature,
	})
	orch, err := orchestrator.New(orchestrator.Config{
		ModelTimeout:        cfg.LLMTimeout,
		RetryInterval:       cfg.LLMRetryInterval,
		AutoAdvance:         cfg.DebateAutoAdvance,
		DefaultUserPosition: userPos,
		EvaluationMode:      evalMode,
	}, orchestrator.Deps{
		Store:     store,
		Locker:    session.NewLocker(busyMode, cfg.SessionQueueTimeout),
		Completer: completer,
		Registry:  registry,
		Assembler: assembler,
		Compactor: memory.NewCompactor(memory.Config{
			Budget:       cfg.MemoryBudget,
			TailTurns:    cfg.MemoryTailTurns,
			RefreshEvery: cfg.MemoryRefreshEvery,
			Unit:         memory.Unit(cfg.MemoryBudgetUnit),
		}),
		Classifier: controller.NewClassifier(controller.Keywords{
			Coaching:    cfg.CoachingKeywords,
			Feedback:    cfg.FeedbackKeywords,
			TopicChange: cfg.TopicChangeKeywords,
		}),
		Selector: controller.NewSelector(cfg.DebateModeratorEvery),
		Machine:  phase.NewMachine(cfg.DebateMinRounds),
		Topics:   topic.NewGenerator(completer, assembler, cfg.LLMTimeout, logger.Named("topic")),
		Metrics:  metrics,
		Logger:   logger.Named("orchestrator"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	janitor := session.NewJanitor(store, cfg.SessionRetention, logger.Named("janitor"))
	janitor.SetSweepHook(func(purged, remaining int) {
		if purged > 0 {
			metrics.SessionEvents.WithLabelValues("expired").Add(float64(purged))
		}
		metrics.ActiveSessions.Set(float64(remaining))
	})

	api := httpapi.New(cfg, orch, store, provider, metrics, logger.Named("http"))

	logger.Info("agora wired",
		zap.String("model_provider", provider),
		zap.String("store_driver", store.Driver()),
		zap.String("busy_mode", string(busyMode)),
		zap.String("evaluation_mode", string(evalMode)),
	)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Store:        store,
		Orchestrator: orch,
		Janitor:      janitor,
		Metrics:      metrics,
		Logger:       logger,
		Provider:     provider,
		Cleanup:      store.Close,
	}, nil
}
