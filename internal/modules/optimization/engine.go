// Package optimization computes optimal portfolio weights from expected
// returns and a covariance matrix.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Config holds solver limits and annualization
type Config struct {
	PeriodsPerYear int
	MaxCondition   float64
	MaxIterations  int
	FrontierPoints int
}

// Problem is one optimization request. Mu and Sigma are periodic; the
// target and the risk-free rate are annualized.
type Problem struct {
	Symbols      []string
	Mu           []float64
	Sigma        mat.Symmetric
	Bounds       domain.Bounds
	Strategy     domain.Strategy
	TargetReturn *float64
	RiskFreeRate float64
}

// Engine solves optimization problems. It holds no per-call state.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates an optimization engine
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	if cfg.MaxCondition <= 0 {
		cfg.MaxCondition = 1e12
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10000
	}
	if cfg.FrontierPoints <= 0 {
		cfg.FrontierPoints = 50
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// FrontierPoints is the default number of frontier samples
func (e *Engine) FrontierPoints() int {
	return e.cfg.FrontierPoints
}

// Optimize solves p for its strategy. Returned weights sum to 1 and respect the bounds.
func (e *Engine) Optimize(ctx context.Context, p Problem) (*domain.OptimizationResult, error) {
	if err := e.validate(p); err != nil {
		return nil, err
	}
	n := len(p.Mu)

	if n == 1 {
		return e.result(p, []float64{1}, 0), nil
	}

	if _, err := Diagnose(p.Sigma, e.cfg.MaxCondition); err != nil {
		return nil, err
	}

	periods := float64(e.cfg.PeriodsPerYear)
	mv := newMeanVariance(p.Mu, p.Sigma, p.Bounds, e.cfg.MaxIterations)

	var (
		w     []float64
		iters int
		err   error
	)
	switch p.Strategy {
	case domain.StrategyMeanVariance:
		w, iters, err = mv.target(*p.TargetReturn / periods)
	case domain.StrategyMinVariance:
		w, iters, err = mv.minVariance()
	case domain.StrategyMaxSharpe:
		w, iters, err = mv.maxSharpe(ctx, p.RiskFreeRate/periods)
	case domain.StrategyRiskParity:
		var rp RiskParityResult
		rp, err = solveRiskParity(p.Sigma, e.cfg.MaxIterations)
		if err == nil {
			w, iters = rp.Weights, rp.Iterations
			err = checkBounds(w, p.Bounds)
		}
	}
	if err != nil {
		e.log.Debug().Err(err).Str("strategy", string(p.Strategy)).Int("assets", n).Msg("Optimization failed")
		return nil, err
	}

	res := e.result(p, w, iters)
	e.log.Debug().
		Str("strategy", string(p.Strategy)).
		Int("assets", n).
		Int("iterations", iters).
		Float64("expected_return", res.ExpectedReturn).
		Float64("volatility", res.Volatility).
		Msg("Optimization complete")
	return res, nil
}

// Frontier samples the efficient frontier at points targets spaced evenly
// from the min variance return to the highest achievable return.
// Infeasible targets are omitted; a solver failure fails the whole frontier.
func (e *Engine) Frontier(ctx context.Context, p Problem, points int) (*domain.Frontier, error) {
	p.Strategy = domain.StrategyMeanVariance
	if points <= 0 {
		points = e.cfg.FrontierPoints
	}
	if err := e.validateShape(p); err != nil {
		return nil, err
	}
	if err := validateBounds(p.Bounds, len(p.Mu)); err != nil {
		return nil, err
	}

	out := &domain.Frontier{Symbols: p.Symbols, Requested: points}
	if len(p.Mu) == 1 {
		res := e.result(p, []float64{1}, 0)
		out.Points = []domain.FrontierPoint{{
			TargetReturn:   res.ExpectedReturn,
			ExpectedReturn: res.ExpectedReturn,
			Volatility:     res.Volatility,
			Sharpe:         res.Sharpe,
			Weights:        res.Weights,
		}}
		return out, nil
	}

	if _, err := Diagnose(p.Sigma, e.cfg.MaxCondition); err != nil {
		return nil, err
	}

	mv := newMeanVariance(p.Mu, p.Sigma, p.Bounds, e.cfg.MaxIterations)
	wmv, _, err := mv.minVariance()
	if err != nil {
		return nil, err
	}
	low := floats.Dot(p.Mu, wmv)
	high := mv.rmax

	targets := []float64{low}
	if points > 1 && high-low > mv.returnTolerance() {
		targets = make([]float64, points)
		floats.Span(targets, low, high)
	}

	sampled, err := e.sweep(ctx, p, mv, targets)
	if err != nil {
		return nil, err
	}
	out.Points = sampled

	e.log.Debug().Int("requested", points).Int("solved", len(out.Points)).Msg("Built efficient frontier")
	return out, nil
}

// sweep solves mv at each periodic target. Infeasible targets are skipped.
func (e *Engine) sweep(ctx context.Context, p Problem, mv *meanVariance, targets []float64) ([]domain.FrontierPoint, error) {
	periods := float64(e.cfg.PeriodsPerYear)
	var out []domain.FrontierPoint
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, iters, err := mv.target(t)
		if err != nil {
			var infeasible *domain.InfeasibleConstraintError
			if errors.As(err, &infeasible) {
				e.log.Debug().Err(err).Float64("target", t*periods).Msg("Skipping frontier point")
				continue
			}
			return nil, err
		}
		res := e.result(p, w, iters)
		out = append(out, domain.FrontierPoint{
			TargetReturn:   t * periods,
			ExpectedReturn: res.ExpectedReturn,
			Volatility:     res.Volatility,
			Sharpe:         res.Sharpe,
			Weights:        res.Weights,
		})
	}
	return out, nil
}

// result annualizes w into an OptimizationResult
func (e *Engine) result(p Problem, w []float64, iters int) *domain.OptimizationResult {
	periods := float64(e.cfg.PeriodsPerYear)
	n := len(w)
	wv := mat.NewVecDense(n, w)

	ret := floats.Dot(p.Mu, w) * periods
	variance := math.Max(mat.Inner(wv, p.Sigma, wv), 0)
	vol := math.Sqrt(variance * periods)

	res := &domain.OptimizationResult{
		Strategy:       p.Strategy,
		Symbols:        p.Symbols,
		Weights:        w,
		ExpectedReturn: ret,
		Volatility:     vol,
		Iterations:     iters,
	}
	if vol > 1e-14*math.Max(1, math.Abs(ret)) {
		sharpe := (ret - p.RiskFreeRate) / vol
		res.Sharpe = &sharpe
	}
	return res
}

func (e *Engine) validate(p Problem) error {
	if err := e.validateShape(p); err != nil {
		return err
	}
	switch p.Strategy {
	case domain.StrategyMeanVariance:
		if p.TargetReturn == nil {
			return domain.NewValidationError("target_return", "required by %s", p.Strategy)
		}
		if math.IsNaN(*p.TargetReturn) || math.IsInf(*p.TargetReturn, 0) {
			return domain.NewValidationError("target_return", "must be finite")
		}
	case domain.StrategyMinVariance, domain.StrategyMaxSharpe, domain.StrategyRiskParity:
	default:
		return domain.NewValidationError("strategy", "%q is not an optimization strategy", p.Strategy)
	}
	return validateBounds(p.Bounds, len(p.Mu))
}

func (e *Engine) validateShape(p Problem) error {
	n := len(p.Mu)
	if n == 0 {
		return domain.NewValidationError("symbols", "at least one asset is required")
	}
	if p.Sigma == nil || p.Sigma.SymmetricDim() != n {
		return domain.NewValidationError("covariance", "dimension does not match %d assets", n)
	}
	if len(p.Symbols) != 0 && len(p.Symbols) != n {
		return domain.NewValidationError("symbols", "%d symbols for %d expected returns", len(p.Symbols), n)
	}
	for i, m := range p.Mu {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return domain.NewValidationError("expected_returns", "entry %d is not finite", i)
		}
	}
	return nil
}

// validateBounds requires 0 ≤ lo ≤ hi ≤ 1 and N·lo ≤ 1 ≤ N·hi
func validateBounds(b domain.Bounds, n int) error {
	const slack = 1e-12
	if b.MinWeight < 0 || b.MaxWeight > 1 || b.MinWeight > b.MaxWeight {
		return &domain.InfeasibleConstraintError{
			Constraint: "bounds",
			Reason:     fmt.Sprintf("[%g, %g] must satisfy 0 <= min <= max <= 1", b.MinWeight, b.MaxWeight),
		}
	}
	if float64(n)*b.MinWeight > 1+slack {
		return &domain.InfeasibleConstraintError{
			Constraint: "min_weight",
			Reason:     fmt.Sprintf("%d assets at %g exceed a fully invested portfolio", n, b.MinWeight),
		}
	}
	if float64(n)*b.MaxWeight < 1-slack {
		return &domain.InfeasibleConstraintError{
			Constraint: "max_weight",
			Reason:     fmt.Sprintf("%d assets at %g cannot reach a fully invested portfolio", n, b.MaxWeight),
		}
	}
	return nil
}

// checkBounds verifies a solution produced without bound constraints
func checkBounds(w []float64, b domain.Bounds) error {
	const slack = 1e-9
	for i, v := range w {
		if v < b.MinWeight-slack || v > b.MaxWeight+slack {
			return &domain.InfeasibleConstraintError{
				Constraint: "bounds",
				Reason:     fmt.Sprintf("risk parity weight %d is %.6g, outside [%g, %g]", i, v, b.MinWeight, b.MaxWeight),
			}
		}
	}
	return nil
}
