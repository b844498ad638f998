package chat

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vovarama1992/chat-relay/internal/ai"
)

const ConversationIDHeader = "X-Conversation-Id"

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type chatRequest struct {
	Messages       []TurnMessage `json:"messages"`
	SessionID      string        `json:"sessionId"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// HandleChat answers one visitor turn with an event stream.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if payload.ConversationID != "" {
		if _, err := uuid.Parse(payload.ConversationID); err != nil {
			WriteError(w, http.StatusBadRequest, "conversationId must be a UUID")
			return
		}
	}

	reply, err := h.svc.Start(r.Context(), Turn{
		Messages:       payload.Messages,
		SessionID:      payload.SessionID,
		ConversationID: payload.ConversationID,
	})
	if err != nil {
		h.writeStartError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(ConversationIDHeader, reply.ConversationID)
	w.WriteHeader(http.StatusOK)

	if err := reply.Relay(r.Context(), &responseStream{w: w, rc: http.NewResponseController(w)}); err != nil {
		log.WithField("conversation", reply.ConversationID).WithError(err).Warn("chat stream aborted")
	}
}

func (h *Handler) writeStartError(w http.ResponseWriter, err error) {
	var invalid *InvalidTurnError
	if errors.As(err, &invalid) {
		WriteError(w, http.StatusBadRequest, invalid.Reason)
		return
	}

	entry := log.WithError(err)
	var perr *ai.ProviderError
	if errors.As(err, &perr) {
		entry = entry.WithField("upstream_status", perr.StatusCode)
	}
	entry.Error("chat turn failed")

	msg := "internal error"
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		msg = "chat is not configured"
	case perr != nil:
		msg = "completion provider error"
	}
	WriteError(w, http.StatusInternalServerError, msg)
}

// Recover turns a panic in a chat handler into a JSON 500. Once the event
// stream has started the status line is gone, so it only logs.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.WithField("panic", rec).Error("chat handler panicked")
			if w.Header().Get("Content-Type") != "text/event-stream" {
				WriteError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// WriteError sends {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]string{"error": msg})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("could not write json response")
	}
}

type responseStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *responseStream) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *responseStream) Flush() error {
	return s.rc.Flush()
}
