package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/analytics"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	testhelpers "github.com/aristath/portfolio-engine/internal/testing"
)

type stubAnalyzer struct {
	requests []domain.PortfolioRequest
}

func (s *stubAnalyzer) ComputeAnalytics(_ context.Context, req domain.PortfolioRequest) (*analytics.Response, error) {
	s.requests = append(s.requests, req)
	return &analytics.Response{
		Result:   &domain.AnalyticsResult{Symbols: req.Symbols, Weights: req.Weights},
		CacheHit: len(s.requests) > 1,
	}, nil
}

func setupRouter(t *testing.T) (chi.Router, *stubAnalyzer) {
	svc := portfolio.NewService(testhelpers.NewMemoryPortfolioStore(), zerolog.Nop())
	analyzer := &stubAnalyzer{}
	h := NewHandler(svc, analyzer, 0.03, zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api", h.RegisterRoutes)
	return router, analyzer
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPortfolioLifecycle(t *testing.T) {
	router, analyzer := setupRouter(t)

	rec := do(router, http.MethodPost, "/api/portfolios",
		`{"name":"Core","symbols":["aapl","msft"],"weights":[0.6,0.4]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data domain.Portfolio `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID
	require.NotEmpty(t, id)
	assert.Equal(t, []string{"AAPL", "MSFT"}, created.Data.Symbols)

	rec = do(router, http.MethodGet, "/api/portfolios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(router, http.MethodPut, "/api/portfolios/"+id,
		`{"name":"Core v2","symbols":["AAPL","MSFT"],"weights":[0.5,0.5]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Core v2")

	rec = do(router, http.MethodGet, "/api/portfolios/"+id+"/analytics?start=2024-01-02&benchmark=spy", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"cache_hit":false`)
	require.Len(t, analyzer.requests, 1)
	got := analyzer.requests[0]
	assert.Equal(t, []float64{0.5, 0.5}, got.Weights)
	assert.Equal(t, 0.03, got.RiskFreeRate)
	assert.Equal(t, "spy", got.Benchmark)
	assert.Equal(t, testhelpers.Day(2024, 1, 2), got.StartDate)

	rec = do(router, http.MethodDelete, "/api/portfolios/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/api/portfolios/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPortfolioValidation(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"symbols":["A"],"weights":[1]}`},
		{"negative weight", `{"name":"x","symbols":["A","B"],"weights":[1.5,-0.5]}`},
		{"weights do not sum to one", `{"name":"x","symbols":["A","B"],"weights":[0.5,0.2]}`},
		{"length mismatch", `{"name":"x","symbols":["A","B"],"weights":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/portfolios", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestPortfolioAnalytics_BadDate(t *testing.T) {
	router, analyzer := setupRouter(t)
	rec := do(router, http.MethodPost, "/api/portfolios", `{"name":"Core","symbols":["A"],"weights":[1]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data domain.Portfolio `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(router, http.MethodGet, "/api/portfolios/"+created.Data.ID+"/analytics?end=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, analyzer.requests)
}

func TestPortfolioNotFound(t *testing.T) {
	router, _ := setupRouter(t)
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := do(router, method, "/api/portfolios/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
	}
	rec := do(router, http.MethodGet, "/api/portfolios/missing/analytics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
