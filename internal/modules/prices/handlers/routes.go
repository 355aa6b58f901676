package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers the price history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Get("/", h.HandleListSymbols)
		r.Get("/{symbol}", h.HandleGetPrices)
		r.Put("/{symbol}", h.HandleUpsertPrices)
		r.Delete("/{symbol}", h.HandleDeletePrices)
	})
}
