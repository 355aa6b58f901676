package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("PAE_DATA_DIR", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("PORTFOLIO_STORE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 0.02, cfg.Analytics.RiskFreeRate)
	assert.Equal(t, 252, cfg.Analytics.PeriodsPerYear)
	assert.Equal(t, domain.ReturnSimple, cfg.Analytics.ReturnConvention)
	assert.Equal(t, 3, cfg.Analytics.MaxGap)
	assert.Equal(t, []float64{0.05, 0.01}, cfg.Analytics.TailAlphas)
	assert.Equal(t, domain.Bounds{MinWeight: 0, MaxWeight: 1}, cfg.Analytics.DefaultBounds)
	assert.Equal(t, 1e12, cfg.Optimization.MaxCondition)
	assert.Equal(t, 50, cfg.Optimization.FrontierPoints)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.AnalyticsTTL)
	assert.Equal(t, time.Hour, cfg.Cache.PricesTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.Timeout)
	assert.True(t, cfg.Cache.Coalesce)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RISK_FREE_RATE", "0.035")
	t.Setenv("RETURN_CONVENTION", "LOG")
	t.Setenv("MAX_WEIGHT", "0.3")
	t.Setenv("TAIL_ALPHAS", "0.1, 0.025")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_ANALYTICS_TTL", "90s")
	t.Setenv("REDIS_DB", "4")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 0.035, cfg.Analytics.RiskFreeRate)
	assert.Equal(t, domain.ReturnLog, cfg.Analytics.ReturnConvention)
	assert.Equal(t, 0.3, cfg.Analytics.DefaultBounds.MaxWeight)
	assert.Equal(t, []float64{0.1, 0.025}, cfg.Analytics.TailAlphas)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.AnalyticsTTL)
	assert.Equal(t, 4, cfg.Cache.RedisDB)
}

func TestFromEnv_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("GO_PORT", "eighty")
	t.Setenv("TAIL_ALPHAS", "0.05,abc")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, []float64{0.05, 0.01}, cfg.Analytics.TailAlphas)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"bad convention", map[string]string{"RETURN_CONVENTION": "geometric"}},
		{"inverted bounds", map[string]string{"MIN_WEIGHT": "0.5", "MAX_WEIGHT": "0.2"}},
		{"alpha out of range", map[string]string{"TAIL_ALPHAS": "1.5"}},
		{"unknown cache", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"s3 without bucket", map[string]string{"PORTFOLIO_STORE": "s3", "S3_BUCKET": ""}},
		{"bad covariance method", map[string]string{"COVARIANCE_METHOD": "ledoit"}},
		{"single frontier point", map[string]string{"FRONTIER_POINTS": "1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoad_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv("PAE_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.DirExists(t, cfg.DataDir)
}
