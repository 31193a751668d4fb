package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/protocol"
)

func (s *Server) handleDebateWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, debate.Errorf(debate.KindValidation, "query parameter session_id is required"))
		return
	}
	if _, err := s.debates.GetState(r.Context(), sessionID); err != nil {
		respondError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.countSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan wsRequest, 16)
	outbound := make(chan any, 16)
	runDone := make(chan struct{})

	// Messages of one connection are handled in order; the session lock still
	// guards against other connections and the REST API.
	go func() {
		defer close(runDone)
		defer close(outbound)
		for req := range inbound {
			ev := s.dispatch(ctx, sessionID, req)
			select {
			case <-ctx.Done():
				return
			case outbound <- ev:
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", zap.String("session_id", sessionID), zap.Error(err))
				cancel()
				_ = conn.Close()
				return
			}
			if t, ok := protocol.TypeOf(msg); ok {
				s.countWSMessage("outbound", t)
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseClientMessage(data)
		if err == nil && msg.SessionID != sessionID {
			err = debate.Errorf(debate.KindValidation, "session_id does not match the connection")
		}
		if err != nil {
			if debate.KindOf(err) == debate.KindInternal {
				err = debate.Wrap(debate.KindValidation, err, "invalid client message")
			}
			select {
			case <-ctx.Done():
				break readLoop
			case inbound <- wsRequest{err: err}:
			}
			continue
		}

		s.countWSMessage("inbound", msg.Type)
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- wsRequest{msg: msg}:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.countSessionEvent("ws_disconnected")
}

// wsRequest is a parsed client message, or the error that rejected it.
type wsRequest struct {
	msg protocol.ClientMessage
	err error
}

func (s *Server) dispatch(ctx context.Context, sessionID string, req wsRequest) any {
	if req.err != nil {
		return protocol.NewErrorEvent(sessionID, req.err)
	}
	msg := req.msg
	switch msg.Action {
	case protocol.ActionContinue:
		res, err := s.debates.Continue(ctx, msg.SessionID, msg.Message)
		if err != nil {
			return protocol.NewErrorEvent(sessionID, err)
		}
		return protocol.NewTurnEvent(res)
	case protocol.ActionCoach:
		res, err := s.debates.Coach(ctx, msg.SessionID, msg.Message)
		if err != nil {
			return protocol.NewErrorEvent(sessionID, err)
		}
		return protocol.NewTurnEvent(res)
	case protocol.ActionFeedback:
		res, err := s.debates.Feedback(ctx, msg.SessionID, msg.Message)
		if err != nil {
			return protocol.NewErrorEvent(sessionID, err)
		}
		return protocol.NewTurnEvent(res)
	case protocol.ActionAdvance:
		state, err := s.debates.Advance(ctx, msg.SessionID)
		if err != nil {
			return protocol.NewErrorEvent(sessionID, err)
		}
		return protocol.NewStateEvent(state)
	case protocol.ActionEnd:
		res, err := s.debates.End(ctx, msg.SessionID)
		if err != nil {
			return protocol.NewErrorEvent(sessionID, err)
		}
		return protocol.NewEvaluationEvent(res)
	default:
		state, err := s.debates.GetState(ctx, msg.SessionID)
		if err != nil {
			return protocol.NewErrorEvent(sessionID, err)
		}
		return protocol.NewStateEvent(state)
	}
}

func (s *Server) countWSMessage(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func (s *Server) countSessionEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues(event).Inc()
}
