// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the sqlite and badger files (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Analytics    AnalyticsConfig
	Optimization OptimizationConfig
	Cache        CacheConfig
	Store        StoreConfig
}

// AnalyticsConfig holds the numeric conventions of the analytics pipeline
type AnalyticsConfig struct {
	RiskFreeRate        float64 // Annual, as decimal
	PeriodsPerYear      int     // 252 for daily closes
	DefaultBounds       domain.Bounds
	ReturnConvention    domain.ReturnConvention
	MaxGap              int       // Forward-fill limit in periods
	SortinoUsesRiskFree bool      // Measure downside below rf instead of 0
	TailAlphas          []float64 // VaR / CVaR tail probabilities
	RollingWindow       int       // Rolling volatility window in periods
	CovarianceMethod    string    // sample or shrinkage
	ShrinkageIntensity  float64
}

// OptimizationConfig holds solver limits
type OptimizationConfig struct {
	MaxCondition   float64
	MaxIterations  int
	FrontierPoints int
}

// CacheConfig selects and tunes the analytics cache backend
type CacheConfig struct {
	Backend       string // memory, redis, sqlite, badger, none
	AnalyticsTTL  time.Duration
	PricesTTL     time.Duration
	Timeout       time.Duration
	Coalesce      bool
	SweepSchedule string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// StoreConfig selects the portfolio store backend
type StoreConfig struct {
	Backend    string // sqlite or s3
	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string
}

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// Portfolio store backends
const (
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// FromEnv builds the configuration from the process environment without
// touching the filesystem.
func FromEnv() (*Config, error) {
	absDataDir, err := filepath.Abs(getEnv("PAE_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Analytics: AnalyticsConfig{
			RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0.02),
			PeriodsPerYear: getEnvAsInt("PERIODS_PER_YEAR", 252),
			DefaultBounds: domain.Bounds{
				MinWeight: getEnvAsFloat("MIN_WEIGHT", 0),
				MaxWeight: getEnvAsFloat("MAX_WEIGHT", 1),
			},
			ReturnConvention:    domain.ReturnConvention(strings.ToLower(getEnv("RETURN_CONVENTION", string(domain.ReturnSimple)))),
			MaxGap:              getEnvAsInt("RETURNS_MAX_GAP", 3),
			SortinoUsesRiskFree: getEnvAsBool("SORTINO_USE_RISK_FREE", false),
			TailAlphas:          getEnvAsFloats("TAIL_ALPHAS", []float64{0.05, 0.01}),
			RollingWindow:       getEnvAsInt("ROLLING_VOL_WINDOW", 21),
			CovarianceMethod:    strings.ToLower(getEnv("COVARIANCE_METHOD", "sample")),
			ShrinkageIntensity:  getEnvAsFloat("SHRINKAGE_INTENSITY", 0.2),
		},
		Optimization: OptimizationConfig{
			MaxCondition:   getEnvAsFloat("COVARIANCE_MAX_CONDITION", 1e12),
			MaxIterations:  getEnvAsInt("RISK_PARITY_MAX_ITER", 10000),
			FrontierPoints: getEnvAsInt("FRONTIER_POINTS", 50),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnv("CACHE_BACKEND", CacheMemory)),
			AnalyticsTTL:  getEnvAsDuration("CACHE_ANALYTICS_TTL", 5*time.Minute),
			PricesTTL:     getEnvAsDuration("CACHE_PRICES_TTL", time.Hour),
			Timeout:       getEnvAsDuration("CACHE_TIMEOUT", 250*time.Millisecond),
			Coalesce:      getEnvAsBool("CACHE_COALESCE", true),
			SweepSchedule: getEnv("CACHE_SWEEP_SCHEDULE", "0 */10 * * * *"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("PORTFOLIO_STORE", StoreSQLite)),
			S3Bucket:   getEnv("S3_BUCKET", ""),
			S3Prefix:   getEnv("S3_PREFIX", "portfolios/"),
			S3Region:   getEnv("AWS_REGION", "us-east-1"),
			S3Endpoint: getEnv("S3_ENDPOINT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	a := c.Analytics
	if a.PeriodsPerYear <= 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must be positive, got %d", a.PeriodsPerYear)
	}
	if !a.ReturnConvention.Valid() {
		return fmt.Errorf("RETURN_CONVENTION must be simple or log, got %q", a.ReturnConvention)
	}
	if a.MaxGap < 0 {
		return fmt.Errorf("RETURNS_MAX_GAP must not be negative, got %d", a.MaxGap)
	}
	b := a.DefaultBounds
	if b.MinWeight < 0 || b.MaxWeight > 1 || b.MinWeight > b.MaxWeight {
		return fmt.Errorf("weight bounds must satisfy 0 <= MIN_WEIGHT <= MAX_WEIGHT <= 1, got [%g, %g]", b.MinWeight, b.MaxWeight)
	}
	for _, alpha := range a.TailAlphas {
		if alpha <= 0 || alpha >= 1 {
			return fmt.Errorf("TAIL_ALPHAS entries must be in (0, 1), got %g", alpha)
		}
	}
	switch a.CovarianceMethod {
	case "sample", "shrinkage":
	default:
		return fmt.Errorf("COVARIANCE_METHOD must be sample or shrinkage, got %q", a.CovarianceMethod)
	}
	if a.ShrinkageIntensity < 0 || a.ShrinkageIntensity > 1 {
		return fmt.Errorf("SHRINKAGE_INTENSITY must be in [0, 1], got %g", a.ShrinkageIntensity)
	}

	if c.Optimization.MaxCondition <= 1 {
		return fmt.Errorf("COVARIANCE_MAX_CONDITION must exceed 1, got %g", c.Optimization.MaxCondition)
	}
	if c.Optimization.MaxIterations <= 0 {
		return fmt.Errorf("RISK_PARITY_MAX_ITER must be positive, got %d", c.Optimization.MaxIterations)
	}
	if c.Optimization.FrontierPoints < 2 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 2, got %d", c.Optimization.FrontierPoints)
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheSQLite, CacheBadger, CacheNone:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Cache.Timeout <= 0 {
		return fmt.Errorf("CACHE_TIMEOUT must be positive")
	}

	switch c.Store.Backend {
	case StoreSQLite:
	case StoreS3:
		if c.Store.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when PORTFOLIO_STORE=s3")
		}
	default:
		return fmt.Errorf("unknown PORTFOLIO_STORE %q", c.Store.Backend)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsFloats parses a comma separated list, e.g. "0.05,0.01"
func getEnvAsFloats(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []float64
	for _, part := range strings.Split(value, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}
