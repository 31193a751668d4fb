package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/orchestrator"
)

type messageRequest struct {
	Message string `json:"message"`
}

func invalidBody(err error) error {
	return debate.Wrap(debate.KindValidation, err, "invalid request body")
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.StartRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, invalidBody(err))
		return
	}
	res, err := s.debates.Start(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.debates.GetState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	tr, err := s.debates.Transcript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tr)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, invalidBody(err))
		return
	}
	res, err := s.debates.Continue(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, invalidBody(err))
		return
	}
	res, err := s.debates.Coach(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, invalidBody(err))
		return
	}
	res, err := s.debates.Feedback(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	state, err := s.debates.Advance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	res, err := s.debates.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.debates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actionEnvelope is the single-endpoint request shape: one action per call.
type actionEnvelope struct {
	Action       string                     `json:"action"`
	SessionID    string                     `json:"session_id"`
	TopicRequest *orchestrator.StartRequest `json:"topic_request,omitempty"`
	UserInput    *messageRequest            `json:"user_input,omitempty"`
}

func (s *Server) handleActionEnvelope(w http.ResponseWriter, r *http.Request) {
	var env actionEnvelope
	if err := decodeJSON(r, &env); err != nil {
		respondError(w, invalidBody(err))
		return
	}

	ctx := r.Context()
	switch strings.ToLower(strings.TrimSpace(env.Action)) {
	case "start":
		var req orchestrator.StartRequest
		if env.TopicRequest != nil {
			req = *env.TopicRequest
		}
		res, err := s.debates.Start(ctx, req)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	case "continue":
		message := ""
		if env.UserInput != nil {
			message = env.UserInput.Message
		}
		res, err := s.debates.Continue(ctx, env.SessionID, message)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	case "end":
		res, err := s.debates.End(ctx, env.SessionID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	default:
		respondError(w, debate.Errorf(debate.KindValidation, "action must be start, continue or end"))
	}
}
