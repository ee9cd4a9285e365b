package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the handler routes together with /metrics and /healthz.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", h.GetConversations)
		r.Post("/turns", h.HandleTurn)
		r.Get("/{id}/messages", h.GetMessages)
		r.Delete("/{id}", h.DeleteConversation)
	})

	return r
}
