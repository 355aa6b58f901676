// Package handlers provides HTTP handlers for portfolio analytics.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/analytics"
	"github.com/aristath/portfolio-engine/pkg/httputil"
)

// Handler handles analytics HTTP requests
type Handler struct {
	service      *analytics.Service
	riskFreeRate float64
	log          zerolog.Logger
}

// NewHandler creates a new analytics handler. riskFreeRate is applied to
// requests that do not carry one.
func NewHandler(service *analytics.Service, riskFreeRate float64, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("handler", "analytics").Logger(),
	}
}

// Window is the date range shared by every request body
type Window struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (w Window) parse() (time.Time, time.Time, error) {
	start, err := parseOptionalDate("start_date", w.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseOptionalDate("end_date", w.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// AnalyticsRequest is the body of POST /api/analytics
type AnalyticsRequest struct {
	Window
	Symbols          []string       `json:"symbols" validate:"required,min=1,dive,required"`
	Weights          []float64      `json:"weights"`
	Strategy         string         `json:"strategy"`
	RiskFreeRate     *float64       `json:"risk_free_rate"`
	Benchmark        string         `json:"benchmark"`
	TargetReturn     *float64       `json:"target_return"`
	Bounds           *domain.Bounds `json:"bounds"`
	ReturnConvention string         `json:"return_convention" validate:"omitempty,oneof=simple log"`
}

// OptimizeRequest is the body of POST /api/analytics/optimize
type OptimizeRequest struct {
	Window
	Symbols          []string       `json:"symbols" validate:"required,min=1,dive,required"`
	Strategy         string         `json:"strategy"`
	RiskFreeRate     *float64       `json:"risk_free_rate"`
	TargetReturn     *float64       `json:"target_return"`
	Bounds           *domain.Bounds `json:"bounds"`
	ReturnConvention string         `json:"return_convention" validate:"omitempty,oneof=simple log"`
}

// FrontierRequest is the body of POST /api/analytics/frontier
type FrontierRequest struct {
	Window
	Symbols          []string       `json:"symbols" validate:"required,min=1,dive,required"`
	Points           int            `json:"points" validate:"gte=0"`
	RiskFreeRate     *float64       `json:"risk_free_rate"`
	Bounds           *domain.Bounds `json:"bounds"`
	ReturnConvention string         `json:"return_convention" validate:"omitempty,oneof=simple log"`
}

// BacktestRequest is the body of POST /api/analytics/backtest
type BacktestRequest struct {
	Window
	Symbols      []string  `json:"symbols" validate:"required,min=1,dive,required"`
	Weights      []float64 `json:"weights"`
	InitialValue float64   `json:"initial_value" validate:"gte=0"`
}

// CompareRequest is the body of POST /api/analytics/compare
type CompareRequest struct {
	Window
	PortfolioIDs []string `json:"portfolio_ids" validate:"required,min=1,dive,required"`
	RiskFreeRate *float64 `json:"risk_free_rate"`
	Benchmark    string   `json:"benchmark"`
}

// HandleAnalytics handles POST /api/analytics
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	var req AnalyticsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	resp, err := h.service.ComputeAnalytics(r.Context(), domain.PortfolioRequest{
		Symbols:          req.Symbols,
		Weights:          req.Weights,
		StartDate:        start,
		EndDate:          end,
		Strategy:         domain.Strategy(req.Strategy),
		RiskFreeRate:     h.rate(req.RiskFreeRate),
		Benchmark:        req.Benchmark,
		TargetReturn:     req.TargetReturn,
		Bounds:           req.Bounds,
		ReturnConvention: domain.ReturnConvention(req.ReturnConvention),
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteCached(w, h.log, resp.Result, resp.CacheHit)
}

// HandleOptimize handles POST /api/analytics/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	resp, err := h.service.Optimize(r.Context(), domain.OptimizeRequest{
		Symbols:          req.Symbols,
		StartDate:        start,
		EndDate:          end,
		Strategy:         domain.Strategy(req.Strategy),
		RiskFreeRate:     h.rate(req.RiskFreeRate),
		TargetReturn:     req.TargetReturn,
		Bounds:           req.Bounds,
		ReturnConvention: domain.ReturnConvention(req.ReturnConvention),
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteCached(w, h.log, resp.Result, resp.CacheHit)
}

// HandleFrontier handles POST /api/analytics/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req FrontierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	resp, err := h.service.Frontier(r.Context(), domain.FrontierRequest{
		Symbols:          req.Symbols,
		StartDate:        start,
		EndDate:          end,
		Points:           req.Points,
		RiskFreeRate:     h.rate(req.RiskFreeRate),
		Bounds:           req.Bounds,
		ReturnConvention: domain.ReturnConvention(req.ReturnConvention),
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteCached(w, h.log, resp.Result, resp.CacheHit)
}

// HandleBacktest handles POST /api/analytics/backtest
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	resp, err := h.service.Backtest(r.Context(), analytics.BacktestRequest{
		Symbols:      req.Symbols,
		Weights:      req.Weights,
		StartDate:    start,
		EndDate:      end,
		InitialValue: req.InitialValue,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteCached(w, h.log, resp.Result, resp.CacheHit)
}

// HandleCompare handles POST /api/analytics/compare
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	cmp, err := h.service.Compare(r.Context(), analytics.CompareRequest{
		PortfolioIDs: req.PortfolioIDs,
		StartDate:    start,
		EndDate:      end,
		RiskFreeRate: h.rate(req.RiskFreeRate),
		Benchmark:    req.Benchmark,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusOK, cmp)
}

// HandleInvalidate handles DELETE /api/analytics/cache/{key}
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.Invalidate(r.Context(), key); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"key":         key,
		"invalidated": true,
	})
}

func (h *Handler) rate(v *float64) float64 {
	if v == nil {
		return h.riskFreeRate
	}
	return *v
}

func parseOptionalDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "%q is not YYYY-MM-DD", v)
	}
	return t, nil
}
