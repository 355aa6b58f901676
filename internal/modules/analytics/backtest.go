package analytics

import (
	"context"
	"math"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/fingerprint"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
)

// BacktestRequest is a buy-and-hold simulation over a window
type BacktestRequest struct {
	Symbols      []string
	Weights      []float64 // Empty means equal weights
	StartDate    time.Time
	EndDate      time.Time
	InitialValue float64 // Zero uses the configured default
}

// BacktestResponse is the result of Backtest
type BacktestResponse struct {
	Result   *domain.BacktestResult
	CacheHit bool
}

// Backtest compounds the weighted simple returns of the universe onto an
// initial value: V_0 = initial, V_t = V_{t-1}(1 + Σ w_i r_i,t).
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	u, err := normalizeUniverse(req.Symbols, req.Weights, true)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	initial := req.InitialValue
	if initial == 0 {
		initial = s.cfg.InitialValue
	}
	if !(initial > 0) || math.IsInf(initial, 0) {
		return nil, domain.NewValidationError("initial_value", "must be positive and finite, got %g", initial)
	}

	key := string(fingerprint.Backtest(u.symbols, u.weights, req.StartDate, req.EndDate, initial))
	res, hit, err := cached(ctx, s, s.backtests, key, func(ctx context.Context) (*domain.BacktestResult, error) {
		est, err := s.estimate(ctx, u.symbols, "", req.StartDate, req.EndDate, domain.ReturnSimple)
		if err != nil {
			return nil, err
		}
		return simulate(u.symbols, u.weights, est.PriceDates, risk.PortfolioReturns(est.Returns, u.weights),
			initial, s.calculator.PeriodsPerYear()), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key", key[:12]).
		Int("assets", len(u.symbols)).
		Bool("cache_hit", hit).
		Msg("Backtest computed")
	return &BacktestResponse{Result: res, CacheHit: hit}, nil
}

// simulate builds the value path. dates has one more entry than returns.
func simulate(symbols []string, weights []float64, dates []time.Time, returns []float64, initial float64, periodsPerYear int) *domain.BacktestResult {
	values := make([]float64, len(returns)+1)
	values[0] = initial
	for t, r := range returns {
		values[t+1] = values[t] * (1 + r)
	}

	res := &domain.BacktestResult{
		Symbols:      symbols,
		Weights:      weights,
		Dates:        make([]string, len(dates)),
		Values:       values,
		InitialValue: initial,
		FinalValue:   values[len(values)-1],
		MaxValue:     values[0],
		MinValue:     values[0],
	}
	for i, d := range dates {
		res.Dates[i] = domain.FormatDate(d)
	}
	for _, v := range values {
		res.MaxValue = math.Max(res.MaxValue, v)
		res.MinValue = math.Min(res.MinValue, v)
	}

	growth := res.FinalValue / initial
	res.TotalReturn = growth - 1
	if len(returns) > 0 && growth > 0 {
		res.AnnualizedReturn = math.Pow(growth, float64(periodsPerYear)/float64(len(returns))) - 1
	} else if growth <= 0 {
		res.AnnualizedReturn = -1
	}
	return res
}
