package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vovarama1992/chat-relay/internal/chat"
)

const maxPageSize = 200

// Handler serves the back-office views of chatbot conversations.
type Handler struct {
	store chat.Store
	token string
}

func NewHandler(store chat.Store, token string) *Handler {
	return &Handler{store: store, token: token}
}

// RegisterRoutes mounts /admin. Nothing is mounted without a token.
func RegisterRoutes(r chi.Router, h *Handler) {
	if h.token == "" {
		log.WithField("component", "admin").Warn("ADMIN_TOKEN not set, admin routes disabled")
		return
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Patch("/conversations/{id}", h.UpdateStatus)
		r.Delete("/conversations/{id}", h.DeleteConversation)
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			chat.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type conversationDetail struct {
	chat.Conversation
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := chat.ConversationFilter{Limit: 50}
	if s := q.Get("status"); s != "" {
		f.Status = chat.Status(s)
		if !f.Status.Valid() {
			chat.WriteError(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), f.Limit); err != nil || f.Limit <= 0 || f.Limit > maxPageSize {
		chat.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 200")
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil || f.Offset < 0 {
		chat.WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	list, err := h.store.ListConversations(r.Context(), f)
	if err != nil {
		h.storeError(w, err)
		return
	}
	chat.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	c, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}

	chat.WriteJSON(w, http.StatusOK, conversationDetail{Conversation: *c, Messages: msgs})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Status chat.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		chat.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !payload.Status.Valid() {
		chat.WriteError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if err := h.store.SetStatus(r.Context(), id, payload.Status); err != nil {
		h.storeError(w, err)
		return
	}

	log.WithFields(log.Fields{"component": "admin", "conversation": id, "status": payload.Status}).Info("conversation status changed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}

	log.WithFields(log.Fields{"component": "admin", "conversation": id}).Info("conversation deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		chat.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrConflict):
		chat.WriteError(w, http.StatusConflict, err.Error())
	default:
		log.WithField("component", "admin").WithError(err).Error("store error")
		chat.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		chat.WriteError(w, http.StatusBadRequest, "invalid conversation id")
		return "", false
	}
	return id, true
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
