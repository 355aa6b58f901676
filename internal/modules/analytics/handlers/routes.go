package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers the analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Post("/", h.HandleAnalytics)
		r.Post("/optimize", h.HandleOptimize)
		r.Post("/frontier", h.HandleFrontier)
		r.Post("/backtest", h.HandleBacktest)
		r.Post("/compare", h.HandleCompare)
		r.Delete("/cache/{key}", h.HandleInvalidate)
	})
}
