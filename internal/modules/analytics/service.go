// Package analytics orchestrates the pipeline behind every portfolio
// computation: fingerprint, cache lookup, price fetch, return estimation,
// risk metrics, optimization and cache store.
package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/cache"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/fingerprint"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
)

// MaxFrontierPoints caps the frontier sweep of a single request
const MaxFrontierPoints = 500

// Covariance estimation methods
const (
	CovarianceSample    = "sample"
	CovarianceShrinkage = "shrinkage"
)

// Config holds the defaults the orchestrator applies to requests
type Config struct {
	DefaultBounds      domain.Bounds
	ReturnConvention   domain.ReturnConvention
	CovarianceMethod   string
	ShrinkageIntensity float64
	TTL                time.Duration // Zero disables result caching
	Coalesce           bool          // Share one computation between concurrent identical requests
	FetchConcurrency   int
	InitialValue       float64 // Backtest starting value
}

// Response is the result of ComputeAnalytics
type Response struct {
	Result   *domain.AnalyticsResult
	CacheHit bool
}

// OptimizeResponse is the result of Optimize
type OptimizeResponse struct {
	Result   *domain.OptimizationResult
	CacheHit bool
}

// FrontierResponse is the result of Frontier
type FrontierResponse struct {
	Result   *domain.Frontier
	CacheHit bool
}

// Service runs analytics requests. Requests are independent; the cache is
// the only shared state.
type Service struct {
	provider   domain.PriceSeriesProvider
	estimator  *returns.Estimator
	calculator *risk.Calculator
	optimizer  *optimization.Engine
	portfolios domain.PortfolioStore

	cache     *cache.Cache
	results   *cache.Typed[domain.AnalyticsResult]
	optimized *cache.Typed[domain.OptimizationResult]
	frontiers *cache.Typed[domain.Frontier]
	backtests *cache.Typed[domain.BacktestResult]
	group     singleflight.Group

	cfg Config
	log zerolog.Logger
}

// NewService wires the pipeline. portfolios is only needed by Compare and may be nil.
func NewService(
	provider domain.PriceSeriesProvider,
	estimator *returns.Estimator,
	calculator *risk.Calculator,
	optimizer *optimization.Engine,
	portfolios domain.PortfolioStore,
	c *cache.Cache,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.ReturnConvention == "" {
		cfg.ReturnConvention = domain.ReturnSimple
	}
	if cfg.DefaultBounds == (domain.Bounds{}) {
		cfg.DefaultBounds = domain.DefaultBounds()
	}
	if cfg.CovarianceMethod == "" {
		cfg.CovarianceMethod = CovarianceSample
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.InitialValue <= 0 {
		cfg.InitialValue = 10000
	}
	return &Service{
		provider:   provider,
		estimator:  estimator,
		calculator: calculator,
		optimizer:  optimizer,
		portfolios: portfolios,
		cache:      c,
		results:    cache.NewTyped[domain.AnalyticsResult](c, cache.SchemaAnalytics, cfg.TTL),
		optimized:  cache.NewTyped[domain.OptimizationResult](c, cache.SchemaOptimization, cfg.TTL),
		frontiers:  cache.NewTyped[domain.Frontier](c, cache.SchemaFrontier, cfg.TTL),
		backtests:  cache.NewTyped[domain.BacktestResult](c, cache.SchemaBacktest, cfg.TTL),
		cfg:        cfg,
		log:        log.With().Str("service", "analytics").Logger(),
	}
}

// ComputeAnalytics returns the full analytics of a weighted portfolio,
// plus an optimized allocation when req names a strategy.
func (s *Service) ComputeAnalytics(ctx context.Context, req domain.PortfolioRequest) (*Response, error) {
	norm, err := s.normalizeAnalytics(req)
	if err != nil {
		return nil, err
	}
	key := string(fingerprint.Analytics(norm, s.settings()))

	start := time.Now()
	res, hit, err := cached(ctx, s, s.results, key, func(ctx context.Context) (*domain.AnalyticsResult, error) {
		return s.computeAnalytics(ctx, norm)
	})
	if err != nil {
		s.log.Debug().Err(err).Strs("symbols", norm.Symbols).Msg("Analytics failed")
		return nil, err
	}

	s.log.Info().
		Str("key", key[:12]).
		Int("assets", len(norm.Symbols)).
		Str("strategy", string(norm.Strategy)).
		Bool("cache_hit", hit).
		Dur("duration", time.Since(start)).
		Msg("Analytics computed")
	return &Response{Result: res, CacheHit: hit}, nil
}

// Optimize returns the optimal allocation of req's universe
func (s *Service) Optimize(ctx context.Context, req domain.OptimizeRequest) (*OptimizeResponse, error) {
	norm, err := s.normalizeOptimize(req)
	if err != nil {
		return nil, err
	}
	key := string(fingerprint.Optimize(norm, s.settings()))

	res, hit, err := cached(ctx, s, s.optimized, key, func(ctx context.Context) (*domain.OptimizationResult, error) {
		est, err := s.estimate(ctx, norm.Symbols, "", norm.StartDate, norm.EndDate, norm.ReturnConvention)
		if err != nil {
			return nil, err
		}
		return s.optimizer.Optimize(ctx, optimization.Problem{
			Symbols:      est.Symbols,
			Mu:           est.Mean,
			Sigma:        s.covariance(est),
			Bounds:       *norm.Bounds,
			Strategy:     norm.Strategy,
			TargetReturn: norm.TargetReturn,
			RiskFreeRate: norm.RiskFreeRate,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key", key[:12]).
		Str("strategy", string(norm.Strategy)).
		Bool("cache_hit", hit).
		Msg("Optimization computed")
	return &OptimizeResponse{Result: res, CacheHit: hit}, nil
}

// Frontier samples the efficient frontier of req's universe
func (s *Service) Frontier(ctx context.Context, req domain.FrontierRequest) (*FrontierResponse, error) {
	norm, err := s.normalizeFrontier(req)
	if err != nil {
		return nil, err
	}
	key := string(fingerprint.Frontier(norm, s.settings()))

	res, hit, err := cached(ctx, s, s.frontiers, key, func(ctx context.Context) (*domain.Frontier, error) {
		est, err := s.estimate(ctx, norm.Symbols, "", norm.StartDate, norm.EndDate, norm.ReturnConvention)
		if err != nil {
			return nil, err
		}
		return s.optimizer.Frontier(ctx, optimization.Problem{
			Symbols:      est.Symbols,
			Mu:           est.Mean,
			Sigma:        s.covariance(est),
			Bounds:       *norm.Bounds,
			RiskFreeRate: norm.RiskFreeRate,
		}, norm.Points)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key", key[:12]).
		Int("points", len(res.Points)).
		Bool("cache_hit", hit).
		Msg("Frontier computed")
	return &FrontierResponse{Result: res, CacheHit: hit}, nil
}

// Fingerprint returns the cache key an analytics request is stored under
func (s *Service) Fingerprint(req domain.PortfolioRequest) (fingerprint.Key, error) {
	norm, err := s.normalizeAnalytics(req)
	if err != nil {
		return "", err
	}
	return fingerprint.Analytics(norm, s.settings()), nil
}

// settings are the estimation settings hashed into every key
func (s *Service) settings() fingerprint.Settings {
	out := fingerprint.Settings{
		CovarianceMethod: s.cfg.CovarianceMethod,
		PeriodsPerYear:   s.calculator.PeriodsPerYear(),
		MaxGap:           s.estimator.MaxGap(),
	}
	if s.cfg.CovarianceMethod == CovarianceShrinkage {
		out.Shrinkage = s.cfg.ShrinkageIntensity
	}
	return out
}

// Invalidate drops the cached result stored under a fingerprint
func (s *Service) Invalidate(ctx context.Context, key string) error {
	if !fingerprint.Valid(key) {
		return domain.NewValidationError("key", "%q is not a fingerprint", key)
	}
	s.cache.Invalidate(ctx, key)
	return nil
}

// cached is the cache-aside protocol shared by every operation: a hit is
// returned as is; a miss runs compute and stores its result. Store failures
// never reach the caller. With coalescing on, concurrent misses on the same
// key share one computation.
func cached[T any](
	ctx context.Context,
	s *Service,
	store *cache.Typed[T],
	key string,
	compute func(context.Context) (*T, error),
) (*T, bool, error) {
	if v, ok := store.Get(ctx, key); ok {
		return v, true, nil
	}

	run := func(ctx context.Context) (*T, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		store.Set(ctx, key, v, 0)
		return v, nil
	}

	if !s.cfg.Coalesce {
		v, err := run(ctx)
		return v, false, err
	}

	// The shared computation outlives any one caller; each caller still
	// stops waiting when its own context ends.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return run(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		if r.Shared {
			s.log.Debug().Str("key", key[:12]).Msg("Coalesced concurrent computation")
		}
		return r.Val.(*T), false, nil
	}
}

// estimate fetches every series concurrently and aligns them
func (s *Service) estimate(
	ctx context.Context,
	symbols []string,
	benchmark string,
	start, end time.Time,
	convention domain.ReturnConvention,
) (*returns.Estimate, error) {
	series := make([]domain.PriceSeries, len(symbols))
	var bench *domain.PriceSeries

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			ps, err := s.provider.GetPrices(gctx, symbol, start, end)
			if err != nil {
				return err
			}
			series[i] = ps
			return nil
		})
	}
	if benchmark != "" {
		g.Go(func() error {
			ps, err := s.provider.GetPrices(gctx, benchmark, start, end)
			if err != nil {
				return err
			}
			bench = &ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.estimator.EstimateWithBenchmark(series, bench, start, end, convention)
}

// covariance is the matrix the risk and optimization steps share
func (s *Service) covariance(est *returns.Estimate) *mat.SymDense {
	if s.cfg.CovarianceMethod == CovarianceShrinkage {
		return est.Shrunk(s.cfg.ShrinkageIntensity)
	}
	return est.Covariance
}
