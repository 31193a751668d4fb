package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/config"
	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/observability"
	"github.com/ent0n29/agora/internal/orchestrator"
)

// Debates is the orchestrator surface the API exposes.
type Debates interface {
	Start(ctx context.Context, req orchestrator.StartRequest) (orchestrator.TurnResult, error)
	Continue(ctx context.Context, sessionID, message string) (orchestrator.TurnResult, error)
	Coach(ctx context.Context, sessionID, message string) (orchestrator.TurnResult, error)
	Feedback(ctx context.Context, sessionID, message string) (orchestrator.TurnResult, error)
	Advance(ctx context.Context, sessionID string) (debate.State, error)
	End(ctx context.Context, sessionID string) (orchestrator.EndResult, error)
	GetState(ctx context.Context, sessionID string) (debate.State, error)
	Transcript(ctx context.Context, sessionID string) (orchestrator.Transcript, error)
	Delete(ctx context.Context, sessionID string) error
}

// Readiness reports the session store backing the API.
type Readiness interface {
	Driver() string
	Count(ctx context.Context) (int, error)
}

type Server struct {
	cfg      config.Config
	debates  Debates
	store    Readiness
	provider string
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, debates Debates, store Readiness, provider string, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		debates:  debates,
		store:    store,
		provider: provider,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the serving origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			http.NotFound(w, r)
			return
		}
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/debates", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/ws", s.handleDebateWS)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetState)
			r.Delete("/", s.handleDelete)
			r.Get("/transcript", s.handleTranscript)
			r.Post("/messages", s.handleContinue)
			r.Post("/coach", s.handleCoach)
			r.Post("/feedback", s.handleFeedback)
			r.Post("/advance", s.handleAdvance)
			r.Post("/end", s.handleEnd)
		})
	})

	r.Post("/api/debate", s.handleActionEnvelope)
	r.Get("/api/session/{id}", s.handleGetState)

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"model_provider": s.provider,
		"store_driver":   s.storeDriver(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "model_provider": s.provider})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	n, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":         "unavailable",
			"model_provider": s.provider,
			"store_driver":   s.store.Driver(),
			"detail":         err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"model_provider": s.provider,
		"store_driver":   s.store.Driver(),
		"sessions":       n,
	})
}

func (s *Server) storeDriver() string {
	if s.store == nil {
		return "none"
	}
	return s.store.Driver()
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the error kind to its HTTP status.
func respondError(w http.ResponseWriter, err error) {
	kind := debate.KindOf(err)
	respondJSON(w, statusFor(kind), errorResponse{
		Error:     debate.MessageOf(err),
		Code:      string(kind),
		Retryable: kind.Retryable(),
	})
}

func statusFor(kind debate.Kind) int {
	switch kind {
	case debate.KindValidation:
		return http.StatusBadRequest
	case debate.KindSessionNotFound:
		return http.StatusNotFound
	case debate.KindPhaseViolation:
		return http.StatusConflict
	case debate.KindSessionBusy:
		return http.StatusLocked
	case debate.KindUpstreamProvider, debate.KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
