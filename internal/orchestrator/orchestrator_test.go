package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/evaluation"
	"github.com/ent0n29/agora/internal/llm"
	"github.com/ent0n29/agora/internal/memory"
	"github.com/ent0n29/agora/internal/normalize"
	"github.com/ent0n29/agora/internal/observability"
	"github.com/ent0n29/agora/internal/persona"
	"github.com/ent0n29/agora/internal/session"
)

// stub routes completions through fn and counts calls per persona.
type stub struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, req llm.Request, n int) (string, error)
}

func newStub(fn func(ctx context.Context, req llm.Request, n int) (string, error)) *stub {
	return &stub{calls: map[string]int{}, fn: fn}
}

func (s *stub) Complete(ctx context.Context, req llm.Request, timeout time.Duration) (string, error) {
	s.mu.Lock()
	s.calls[req.Persona]++
	n := s.calls[req.Persona]
	s.mu.Unlock()
	if s.fn == nil {
		return llm.NewMockCompleter().Complete(ctx, req, timeout)
	}
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return s.fn(ctx, req, n)
	}).Complete(ctx, req, timeout)
}

func (s *stub) Calls(p debate.Persona) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[string(p)]
}

func jsonReply(content string, confidence any) string {
	raw, _ := json.Marshal(map[string]any{"content": content, "confidence": confidence, "reasoning": "because"})
	return string(raw)
}

type harness struct {
	o       *Orchestrator
	store   session.Store
	stub    *stub
	metrics *observability.Metrics
}

func newHarness(t *testing.T, completer *stub, mutate func(*Config, *Deps)) *harness {
	t.Helper()
	cat, err := persona.LoadCatalog("")
	require.NoError(t, err)
	registry, err := persona.NewRegistry(cat, normalize.New(false))
	require.NoError(t, err)
	if completer == nil {
		completer = newStub(nil)
	}

	store := session.NewInMemoryStore()
	metrics := observability.NewMetrics("agora_test")
	cfg := Config{
		ModelTimeout:  time.Second,
		RetryInterval: time.Millisecond,
		AutoAdvance:   true,
	}
	deps := Deps{
		Store:     store,
		Locker:    session.NewLocker(session.BusyReject, 0),
		Completer: completer,
		Registry:  registry,
		Metrics:   metrics,
		Logger:    zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	o, err := New(cfg, deps)
	require.NoError(t, err)
	return &harness{o: o, store: deps.Store, stub: completer, metrics: metrics}
}

func (h *harness) start(t *testing.T) TurnResult {
	t.Helper()
	res, err := h.o.Start(context.Background(), StartRequest{Category: "general", Difficulty: "moderate", CustomTopic: "Cities should ban cars downtown"})
	require.NoError(t, err)
	return res
}

func (h *harness) session(t *testing.T, id string) *debate.Session {
	t.Helper()
	sess, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func assertKind(t *testing.T, err error, kind debate.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, debate.KindOf(err), "error: %v", err)
}

func TestStartOpensDebate(t *testing.T) {
	h := newHarness(t, nil, nil)
	res, err := h.o.Start(context.Background(), StartRequest{Category: "general", Difficulty: "moderate"})
	require.NoError(t, err)

	assert.Equal(t, debate.PhaseOpening, res.State.Phase)
	assert.Equal(t, 0, res.State.CurrentRound)
	assert.Equal(t, 1, res.State.TurnCount)
	assert.NotEmpty(t, res.State.Topic)
	assert.Equal(t, debate.PositionFor, res.State.UserPosition)
	assert.Equal(t, debate.PositionAgainst, res.State.AIPosition)
	assert.Equal(t, "general", res.State.Category)
	assert.Equal(t, "moderate", res.State.Difficulty)
	assert.Equal(t, debate.PersonaModerator, res.AssistantTurn.Persona)
	assert.Equal(t, debate.PurposeWelcome, res.AssistantTurn.Metadata[debate.MetaPurpose])

	sess := h.session(t, res.SessionID)
	require.Len(t, sess.Turns, 1)
	require.NotNil(t, sess.Turns[0].Confidence)
	assert.Equal(t, debate.RoleAssistant, sess.Turns[0].Role)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	_, err := h.o.Start(ctx, StartRequest{Difficulty: "impossible"})
	assertKind(t, err, debate.KindValidation)
	_, err = h.o.Start(ctx, StartRequest{UserPosition: "sideways"})
	assertKind(t, err, debate.KindValidation)

	res, err := h.o.Start(ctx, StartRequest{CustomTopic: "Homework should be banned", UserPosition: "con"})
	require.NoError(t, err)
	assert.Equal(t, "Homework should be banned", res.State.Topic)
	assert.Equal(t, debate.PositionAgainst, res.State.UserPosition)
	assert.Equal(t, debate.PositionFor, res.State.AIPosition)
}

func TestStartWelcomeFailureLeavesNoSession(t *testing.T) {
	failing := newStub(func(context.Context, llm.Request, int) (string, error) {
		return "", errors.New("provider exploded")
	})
	h := newHarness(t, failing, nil)

	_, err := h.o.Start(context.Background(), StartRequest{CustomTopic: "Tax sugar"})
	assertKind(t, err, debate.KindUpstreamProvider)
	n, err := h.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestContinueAdvancesRounds(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)
	ctx := context.Background()

	res, err := h.o.Continue(ctx, start.SessionID, "Cars pollute the city center and make streets dangerous.")
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CurrentRound)
	assert.Equal(t, debate.PhaseRebuttal, res.State.Phase)
	assert.Equal(t, debate.PersonaDebaterAgainst, res.AssistantTurn.Persona)

	res, err = h.o.Continue(ctx, start.SessionID, "Pedestrian zones increase retail revenue.")
	require.NoError(t, err)
	assert.Equal(t, 2, res.State.CurrentRound)

	res, err = h.o.Continue(ctx, start.SessionID, "Public transit can absorb the demand.")
	require.NoError(t, err)
	assert.Equal(t, 3, res.State.CurrentRound)
	assert.Equal(t, debate.PhaseClosing, res.State.Phase)
	assert.Equal(t, 7, res.State.TurnCount)

	sess := h.session(t, start.SessionID)
	for _, turn := range sess.Turns {
		if turn.Role == debate.RoleAssistant {
			require.NotNil(t, turn.Confidence)
			assert.GreaterOrEqual(t, *turn.Confidence, 0.0)
			assert.LessOrEqual(t, *turn.Confidence, 1.0)
		}
	}
}

func TestContinueWithoutAutoAdvanceStaysInPhase(t *testing.T) {
	h := newHarness(t, nil, func(cfg *Config, _ *Deps) { cfg.AutoAdvance = false })
	start := h.start(t)
	ctx := context.Background()

	res, err := h.o.Continue(ctx, start.SessionID, "First argument.")
	require.NoError(t, err)
	assert.Equal(t, debate.PhaseOpening, res.State.Phase)

	state, err := h.o.Advance(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, debate.PhaseRebuttal, state.Phase)

	_, err = h.o.Advance(ctx, start.SessionID)
	assertKind(t, err, debate.KindPhaseViolation)
	assert.Equal(t, debate.PhaseRebuttal, h.session(t, start.SessionID).Phase)
}

func TestAdvanceGuardRejectsEarlyRebuttal(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)

	_, err := h.o.Advance(context.Background(), start.SessionID)
	assertKind(t, err, debate.KindPhaseViolation)
	assert.Equal(t, debate.PhaseOpening, h.session(t, start.SessionID).Phase)
}

func TestCoachingLeavesPhaseAndRound(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)
	ctx := context.Background()

	_, err := h.o.Continue(ctx, start.SessionID, "Cars pollute the city center.")
	require.NoError(t, err)
	before := h.session(t, start.SessionID)

	res, err := h.o.Continue(ctx, start.SessionID, "Can you give me a tip for my next point?")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaCoach, res.AssistantTurn.Persona)
	assert.Equal(t, before.Phase, res.State.Phase)
	assert.Equal(t, before.CurrentRound, res.State.CurrentRound)

	res, err = h.o.Feedback(ctx, start.SessionID, "")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaFeedbackEvaluator, res.AssistantTurn.Persona)
	assert.Equal(t, debate.PurposeFeedback, res.AssistantTurn.Metadata[debate.MetaPurpose])
	assert.Equal(t, before.CurrentRound, res.State.CurrentRound)

	res, err = h.o.Coach(ctx, start.SessionID, "I think trains are great.")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaCoach, res.AssistantTurn.Persona)
	assert.Equal(t, before.CurrentRound, res.State.CurrentRound)

	sess := h.session(t, start.SessionID)
	assert.Equal(t, string(debate.ClassCoachingRequest), sess.Turns[len(sess.Turns)-2].Metadata[debate.MetaClass])
}

func TestTopicChangeGoesToModerator(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)

	res, err := h.o.Continue(context.Background(), start.SessionID, "Can we change the topic please?")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaModerator, res.AssistantTurn.Persona)
	assert.Equal(t, 0, res.State.CurrentRound)
	assert.Equal(t, "Cities should ban cars downtown", res.State.Topic)
}

func TestModeratorInsertedEveryThreeRounds(t *testing.T) {
	h := newHarness(t, nil, func(cfg *Config, _ *Deps) { cfg.AutoAdvance = false })
	start := h.start(t)
	ctx := context.Background()

	var personas []debate.Persona
	for i := 0; i < 5; i++ {
		res, err := h.o.Continue(ctx, start.SessionID, "Another argument for my side.")
		require.NoError(t, err)
		personas = append(personas, res.AssistantTurn.Persona)
	}
	assert.Equal(t, []debate.Persona{
		debate.PersonaDebaterAgainst,
		debate.PersonaDebaterAgainst,
		debate.PersonaDebaterAgainst,
		debate.PersonaModerator,
		debate.PersonaDebaterAgainst,
	}, personas)
	assert.Equal(t, 4, h.session(t, start.SessionID).CurrentRound)
}

func TestModeratorCadenceSurvivesCoaching(t *testing.T) {
	h := newHarness(t, nil, func(cfg *Config, _ *Deps) { cfg.AutoAdvance = false })
	start := h.start(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.o.Continue(ctx, start.SessionID, "Another argument for my side.")
		require.NoError(t, err)
	}
	coached, err := h.o.Coach(ctx, start.SessionID, "give me a tip")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaCoach, coached.AssistantTurn.Persona)

	res, err := h.o.Continue(ctx, start.SessionID, "Back to my argument.")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaModerator, res.AssistantTurn.Persona)
	assert.Equal(t, 3, res.State.CurrentRound)

	res, err = h.o.Continue(ctx, start.SessionID, "And one more point.")
	require.NoError(t, err)
	assert.Equal(t, debate.PersonaDebaterAgainst, res.AssistantTurn.Persona)
	assert.Equal(t, 4, res.State.CurrentRound)
}

func TestEndProducesReportEvenWhenScoringFails(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaFeedbackEvaluator) {
			return "", errors.New("evaluator unavailable")
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)

	res, err := h.o.End(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, debate.PhaseComplete, res.State.Phase)
	require.NotNil(t, res.Report)
	assert.Equal(t, debate.ReportSourceDefault, res.Report.Source)
	for _, d := range debate.Dimensions() {
		assert.Equal(t, evaluation.Neutral, res.Report.Scores[d], "dimension %s", d)
	}

	sess := h.session(t, start.SessionID)
	assert.Equal(t, debate.PhaseComplete, sess.Phase)
	require.NotNil(t, sess.Evaluation)
	last := sess.Turns[len(sess.Turns)-1]
	assert.Equal(t, debate.PersonaFeedbackEvaluator, last.Persona)
	assert.Equal(t, debate.PurposeEvaluation, last.Purpose())

	_, err = h.o.Continue(context.Background(), start.SessionID, "One more point.")
	assertKind(t, err, debate.KindPhaseViolation)
	_, err = h.o.End(context.Background(), start.SessionID)
	assertKind(t, err, debate.KindPhaseViolation)
}

func TestEndWithModelEvaluation(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)
	_, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute, for example 30% of emissions.")
	require.NoError(t, err)

	res, err := h.o.End(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, debate.ReportSourceModel, res.Report.Source)
	assert.Equal(t, 0.7, res.Report.Scores[debate.DimensionArgumentStrength])
	assert.Equal(t, 1, res.Report.Signals.UserArguments)
}

func TestEndWithRubricEvaluationSkipsModel(t *testing.T) {
	h := newHarness(t, nil, func(cfg *Config, _ *Deps) { cfg.EvaluationMode = evaluation.ModeRubric })
	start := h.start(t)

	res, err := h.o.End(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, debate.ReportSourceRubric, res.Report.Source)
	assert.Equal(t, 0, h.stub.Calls(debate.PersonaFeedbackEvaluator))
}

func TestUnparsableConfidenceIsDefaulted(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) {
			return jsonReply("Cars keep shops alive.", "high"), nil
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)

	res, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.AssistantTurn.Confidence)

	sess := h.session(t, start.SessionID)
	last := sess.Turns[len(sess.Turns)-1]
	require.NotNil(t, last.Confidence)
	assert.Equal(t, 0.5, *last.Confidence)
	assert.Equal(t, debate.WarningConfidenceDefaulted, last.Metadata[debate.MetaWarning])
}

func TestParseErrorRetriedOnce(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) && n == 1 {
			return `{"content": "   ", "confidence": 0.9}`, nil
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)

	res, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	require.NoError(t, err)
	assert.Equal(t, 2, h.stub.Calls(debate.PersonaDebaterAgainst))
	assert.Equal(t, 1, res.State.CurrentRound)
}

func TestRepeatedParseErrorBecomesUpstreamError(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) {
			return "", nil
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)
	before := h.session(t, start.SessionID)

	_, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	assertKind(t, err, debate.KindUpstreamProvider)
	assert.ErrorIs(t, err, debate.ErrParse)
	assert.Equal(t, 2, h.stub.Calls(debate.PersonaDebaterAgainst))

	after := h.session(t, start.SessionID)
	assert.Equal(t, len(before.Turns), len(after.Turns))
	assert.Equal(t, before.CurrentRound, after.CurrentRound)
	assert.Equal(t, before.Version, after.Version)
}

func TestTimeoutIsNotRetriedAndLeavesStateUnchanged(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, func(cfg *Config, _ *Deps) { cfg.ModelTimeout = 20 * time.Millisecond })
	start := h.start(t)
	before := h.session(t, start.SessionID)

	_, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	assertKind(t, err, debate.KindUpstreamProvider)
	assert.ErrorIs(t, err, llm.ErrTimeout)
	assert.Equal(t, 1, h.stub.Calls(debate.PersonaDebaterAgainst))

	after := h.session(t, start.SessionID)
	assert.Equal(t, before.Turns, after.Turns)
	assert.Equal(t, before.Phase, after.Phase)
}

type transientErr struct{}

func (transientErr) Error() string   { return "503 from provider" }
func (transientErr) Transient() bool { return true }

func TestTransientErrorRetriedOnce(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) && n == 1 {
			return "", transientErr{}
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)

	_, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	require.NoError(t, err)
	assert.Equal(t, 2, h.stub.Calls(debate.PersonaDebaterAgainst))
}

func TestPermanentErrorNotRetried(t *testing.T) {
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) {
			return "", errors.New("invalid api key")
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)

	_, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	assertKind(t, err, debate.KindUpstreamProvider)
	assert.True(t, debate.KindOf(err).Retryable())
	assert.Equal(t, 1, h.stub.Calls(debate.PersonaDebaterAgainst))
}

func TestConcurrentRequestIsRejectedAsBusy(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) {
			once.Do(func() { close(entered) })
			<-unblock
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.o.Continue(ctx, start.SessionID, "First submission.")
		done <- err
	}()
	<-entered

	_, err := h.o.Continue(ctx, start.SessionID, "Duplicate submission.")
	assertKind(t, err, debate.KindSessionBusy)
	_, err = h.o.End(ctx, start.SessionID)
	assertKind(t, err, debate.KindSessionBusy)

	state, err := h.o.GetState(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentRound)

	close(unblock)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.session(t, start.SessionID).CurrentRound)
}

func TestQueuedRequestsAreSerialized(t *testing.T) {
	h := newHarness(t, nil, func(_ *Config, deps *Deps) {
		deps.Locker = session.NewLocker(session.BusyQueue, 5*time.Second)
	})
	start := h.start(t)

	const n = 4
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.o.Continue(context.Background(), start.SessionID, "Parallel argument."); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failed.Load())
	sess := h.session(t, start.SessionID)
	assert.Equal(t, 1+2*n, len(sess.Turns))
}

func TestCancellationReleasesLock(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	completer := newStub(func(ctx context.Context, req llm.Request, n int) (string, error) {
		if req.Persona == string(debate.PersonaDebaterAgainst) && n == 1 {
			once.Do(func() { close(entered) })
			<-ctx.Done()
			return "", ctx.Err()
		}
		return llm.NewMockCompleter().Complete(ctx, req, 0)
	})
	h := newHarness(t, completer, nil)
	start := h.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.o.Continue(ctx, start.SessionID, "Cars pollute.")
		done <- err
	}()
	<-entered
	cancel()
	assertKind(t, <-done, debate.KindUpstreamProvider)

	res, err := h.o.Continue(context.Background(), start.SessionID, "Cars pollute.")
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CurrentRound)
}

func TestValidationAndNotFound(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)
	ctx := context.Background()

	_, err := h.o.Continue(ctx, start.SessionID, "   ")
	assertKind(t, err, debate.KindValidation)
	_, err = h.o.Continue(ctx, "not-a-session", "hello")
	assertKind(t, err, debate.KindValidation)
	_, err = h.o.Continue(ctx, uuid.NewString(), "hello")
	assertKind(t, err, debate.KindSessionNotFound)
	_, err = h.o.GetState(ctx, uuid.NewString())
	assertKind(t, err, debate.KindSessionNotFound)
}

func TestDeleteAndTranscript(t *testing.T) {
	h := newHarness(t, nil, nil)
	start := h.start(t)
	ctx := context.Background()
	_, err := h.o.Continue(ctx, start.SessionID, "Cars pollute.")
	require.NoError(t, err)

	tr, err := h.o.Transcript(ctx, start.SessionID)
	require.NoError(t, err)
	require.Len(t, tr.Turns, 3)
	assert.Equal(t, debate.RoleUser, tr.Turns[1].Role)
	assert.Nil(t, tr.Evaluation)

	require.NoError(t, h.o.Delete(ctx, start.SessionID))
	_, err = h.o.GetState(ctx, start.SessionID)
	assertKind(t, err, debate.KindSessionNotFound)
	assertKind(t, h.o.Delete(ctx, start.SessionID), debate.KindSessionNotFound)
}

func TestLongDebatePersistsMemorySummary(t *testing.T) {
	h := newHarness(t, nil, func(_ *Config, deps *Deps) {
		deps.Compactor = memory.NewCompactor(memory.Config{Budget: 1500, TailTurns: 2, RefreshEvery: 2})
	})
	start := h.start(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := h.o.Continue(ctx, start.SessionID, "Cars pollute the city center and pedestrian zones are safer for families and children.")
		require.NoError(t, err)
	}
	sess := h.session(t, start.SessionID)
	require.NotNil(t, sess.Memory)
	assert.Greater(t, sess.Memory.Covered, 0)
	assert.LessOrEqual(t, sess.Memory.Covered, len(sess.Turns))
}
