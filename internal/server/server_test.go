package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/di"
	"github.com/aristath/portfolio-engine/internal/domain"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Port:    0,
		DevMode: true,
		Analytics: config.AnalyticsConfig{
			RiskFreeRate:     0.02,
			PeriodsPerYear:   252,
			DefaultBounds:    domain.Bounds{MinWeight: 0, MaxWeight: 1},
			ReturnConvention: domain.ReturnSimple,
			MaxGap:           3,
			CovarianceMethod: "sample",
		},
		Cache: config.CacheConfig{
			Backend:       config.CacheMemory,
			AnalyticsTTL:  time.Minute,
			PricesTTL:     time.Hour,
			Timeout:       250 * time.Millisecond,
			SweepSchedule: "0 */10 * * * *",
		},
		Store: config.StoreConfig{Backend: config.StoreSQLite},
	}

	container, jobs, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
		DevMode:   true,
	})
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "memory", resp.Cache.Backend)
	assert.True(t, resp.Cache.Available)
	assert.Equal(t, map[string]string{"history": "ok", "portfolios": "ok", "cache": "ok"}, resp.Databases)
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data SystemStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "memory", env.Data.Cache.Backend)
	assert.Len(t, env.Data.Databases, 3)
	assert.Contains(t, env.Data.Jobs, "cache_sweep")
	assert.Contains(t, env.Data.Jobs, "wal_checkpoint")
	assert.Contains(t, env.Data.Jobs, "db_maintenance")
	assert.Positive(t, env.Data.Goroutines)
}

func TestRunJob(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/system/jobs/cache_sweep", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodPost, "/api/system/jobs/wal_checkpoint", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodPost, "/api/system/jobs/reboot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPut, "/api/prices/AAA", `{"prices":[
		{"date":"2024-01-02","close":100},{"date":"2024-01-03","close":101},
		{"date":"2024-01-04","close":102},{"date":"2024-01-05","close":101}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(s, http.MethodPut, "/api/prices/BBB", `{"prices":[
		{"date":"2024-01-02","close":50},{"date":"2024-01-03","close":49},
		{"date":"2024-01-04","close":51},{"date":"2024-01-05","close":52}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodPost, "/api/portfolios", `{"name":"Reference","symbols":["AAA","BBB"],"weights":[0.5,0.5]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data domain.Portfolio `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(s, http.MethodGet, "/api/portfolios/"+created.Data.ID+"/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Data domain.AnalyticsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Data.Sharpe)
	assert.InDelta(t, 8.5522447584244254, *result.Data.Sharpe, 1e-8)
	assert.InDelta(t, -0.005, result.Data.Drawdown.Max, 1e-12)

	// Same universe through the ad hoc endpoint hits the cached result
	rec = do(s, http.MethodPost, "/api/analytics", `{"symbols":["bbb","aaa"],"weights":[1,1]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"cache_hit":true`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	do(s, http.MethodGet, "/health", "")
	do(s, http.MethodGet, "/api/portfolios/unknown", "")

	rec := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "pae_http_requests_total")
	assert.Contains(t, body, `route="/health"`)
	assert.Contains(t, body, `status="404"`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
