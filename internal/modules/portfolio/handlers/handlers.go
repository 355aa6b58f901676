// Package handlers provides HTTP handlers for stored portfolios.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/analytics"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/pkg/httputil"
)

// Analyzer computes analytics for a weighted universe
type Analyzer interface {
	ComputeAnalytics(ctx context.Context, req domain.PortfolioRequest) (*analytics.Response, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service      *portfolio.Service
	analyzer     Analyzer
	riskFreeRate float64
	log          zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, analyzer Analyzer, riskFreeRate float64, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		analyzer:     analyzer,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("handler", "portfolio").Logger(),
	}
}

// PortfolioRequest is the body of POST and PUT /api/portfolios
type PortfolioRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Symbols     []string  `json:"symbols" validate:"required,min=1,dive,required"`
	Weights     []float64 `json:"weights" validate:"required,min=1,dive,gte=0"`
	Strategy    string    `json:"strategy"`
}

func (r PortfolioRequest) input() portfolio.Input {
	return portfolio.Input{
		Name:        r.Name,
		Description: r.Description,
		Symbols:     r.Symbols,
		Weights:     r.Weights,
		Strategy:    r.Strategy,
	}
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []domain.Portfolio{}
	}
	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"portfolios": list,
		"count":      len(list),
	})
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	p, err := h.service.Create(r.Context(), req.input())
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusCreated, p)
}

// HandleGet handles GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusOK, p)
}

// HandleUpdate handles PUT /api/portfolios/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusOK, p)
}

// HandleDelete handles DELETE /api/portfolios/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"id":      id,
		"deleted": true,
	})
}

// HandleAnalytics handles GET /api/portfolios/{id}/analytics?start=&end=&benchmark=
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	q := r.URL.Query()
	start, err := optionalDate("start", q.Get("start"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	end, err := optionalDate("end", q.Get("end"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	resp, err := h.analyzer.ComputeAnalytics(r.Context(), domain.PortfolioRequest{
		Symbols:      p.Symbols,
		Weights:      p.Weights,
		StartDate:    start,
		EndDate:      end,
		Strategy:     domain.StrategyNone,
		RiskFreeRate: h.riskFreeRate,
		Benchmark:    q.Get("benchmark"),
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteCached(w, h.log, resp.Result, resp.CacheHit)
}

func optionalDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "%q is not YYYY-MM-DD", v)
	}
	return t, nil
}
