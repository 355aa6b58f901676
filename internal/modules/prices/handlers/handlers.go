// Package handlers provides HTTP handlers for the price history.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/prices"
	"github.com/aristath/portfolio-engine/pkg/httputil"
)

// Forgetter drops cached series of a symbol after its history changed
type Forgetter interface {
	Forget(symbol string)
}

// Handler handles price history HTTP requests
type Handler struct {
	history *prices.HistoryDB
	cache   Forgetter
	log     zerolog.Logger
}

// NewHandler creates a new price history handler. cache may be nil.
func NewHandler(history *prices.HistoryDB, cache Forgetter, log zerolog.Logger) *Handler {
	return &Handler{
		history: history,
		cache:   cache,
		log:     log.With().Str("handler", "prices").Logger(),
	}
}

// PricePointDTO is one close in a request or response
type PricePointDTO struct {
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
	Close float64 `json:"close" validate:"gt=0"`
}

// UpsertPricesRequest is the body of PUT /api/prices/{symbol}
type UpsertPricesRequest struct {
	Prices []PricePointDTO `json:"prices" validate:"required,min=1,dive"`
}

// HandleListSymbols handles GET /api/prices
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	coverage, err := h.history.Coverage(r.Context())
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if coverage == nil {
		coverage = []prices.SymbolCoverage{}
	}
	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"symbols": coverage,
		"count":   len(coverage),
	})
}

// HandleGetPrices handles GET /api/prices/{symbol}?start=&end=
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	start, err := optionalDate(r, "start")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	end, err := optionalDate(r, "end")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	series, err := h.history.GetPrices(r.Context(), symbol, start, end)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	points := make([]PricePointDTO, len(series.Points))
	for i, p := range series.Points {
		points[i] = PricePointDTO{Date: domain.FormatDate(p.Date), Close: p.Close}
	}
	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"symbol": series.Symbol,
		"prices": points,
		"count":  len(points),
	})
}

// HandleUpsertPrices handles PUT /api/prices/{symbol}
func (h *Handler) HandleUpsertPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req UpsertPricesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	points := make([]domain.PricePoint, len(req.Prices))
	for i, p := range req.Prices {
		date, err := domain.ParseDate(p.Date)
		if err != nil {
			httputil.WriteError(w, h.log, domain.NewValidationError("date", "%q is not YYYY-MM-DD", p.Date))
			return
		}
		points[i] = domain.PricePoint{Date: date, Close: p.Close}
	}

	n, err := h.history.UpsertPrices(r.Context(), symbol, points)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if h.cache != nil {
		h.cache.Forget(symbol)
	}

	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"upserted": n,
	})
}

// HandleDeletePrices handles DELETE /api/prices/{symbol}
func (h *Handler) HandleDeletePrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	n, err := h.history.DeletePrices(r.Context(), symbol)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if h.cache != nil {
		h.cache.Forget(symbol)
	}

	httputil.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"deleted": n,
	})
}

func optionalDate(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := domain.ParseDate(v)
	if err != nil {
		return time.Time{}, domain.NewValidationError(name, "%q is not YYYY-MM-DD", v)
	}
	return t, nil
}
