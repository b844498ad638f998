package chat

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.With(Recover).Post("/chat", h.HandleChat)
}
