// Package risk computes risk-adjusted performance metrics of a return series.
package risk

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// MinObservations is the shortest series accepted by variance based metrics
const MinObservations = 2

// Config holds the conventions applied by the calculator
type Config struct {
	PeriodsPerYear      int
	SortinoUsesRiskFree bool
	TailAlphas          []float64
	RollingWindow       int
}

// Metrics is the full single-series risk profile of a portfolio
type Metrics struct {
	Observations         int
	Mean                 float64
	Volatility           float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	TotalReturn          float64
	CAGR                 float64
	Sharpe               *float64
	Sortino              *float64
	Calmar               *float64
	Drawdown             formulas.DrawdownMetrics
	TailRisk             []domain.TailRisk
	RollingVolatility    []float64
}

// BenchmarkMetrics are the metrics relative to a benchmark series
type BenchmarkMetrics struct {
	Beta             *float64
	TrackingError    float64
	InformationRatio *float64
}

// Calculator computes risk metrics. It is stateless apart from its config
// and safe for concurrent use.
type Calculator struct {
	cfg Config
	log zerolog.Logger
}

// NewCalculator creates a calculator. A non-positive PeriodsPerYear falls back to 252.
func NewCalculator(cfg Config, log zerolog.Logger) *Calculator {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	if len(cfg.TailAlphas) == 0 {
		cfg.TailAlphas = []float64{0.05, 0.01}
	}
	return &Calculator{
		cfg: cfg,
		log: log.With().Str("component", "risk_calculator").Logger(),
	}
}

// PeriodsPerYear returns the annualization factor in use
func (c *Calculator) PeriodsPerYear() int {
	return c.cfg.PeriodsPerYear
}

// Compute evaluates every single-series metric of returns
func (c *Calculator) Compute(returns []float64, riskFreeRate float64, convention domain.ReturnConvention) (*Metrics, error) {
	if err := requireObservations(returns); err != nil {
		return nil, err
	}
	logReturn := convention == domain.ReturnLog
	p := c.cfg.PeriodsPerYear

	m := &Metrics{
		Observations:         len(returns),
		Mean:                 formulas.Mean(returns),
		Volatility:           formulas.StdDev(returns),
		AnnualizedReturn:     formulas.AnnualizedReturn(returns, p),
		AnnualizedVolatility: formulas.AnnualizedVolatility(returns, p),
		TotalReturn:          formulas.TotalReturn(returns, logReturn),
		CAGR:                 formulas.CAGR(returns, p, logReturn),
		Sharpe:               formulas.SharpeRatio(returns, riskFreeRate, p),
		Sortino:              formulas.SortinoRatio(returns, riskFreeRate, c.sortinoThreshold(riskFreeRate), p),
		Drawdown:             formulas.CalculateDrawdown(returns, logReturn),
	}
	m.Calmar = formulas.CalmarRatio(m.AnnualizedReturn, m.Drawdown.MaxDrawdown)

	for _, alpha := range c.cfg.TailAlphas {
		m.TailRisk = append(m.TailRisk, domain.TailRisk{
			Alpha: alpha,
			VaR:   formulas.HistoricalVaR(returns, alpha),
			CVaR:  formulas.HistoricalCVaR(returns, alpha),
		})
	}

	if c.cfg.RollingWindow > 1 {
		m.RollingVolatility = formulas.RollingVolatility(returns, c.cfg.RollingWindow, p)
	}

	return m, nil
}

// Sharpe returns the annualized Sharpe ratio, nil when std is zero
func (c *Calculator) Sharpe(returns []float64, riskFreeRate float64) (*float64, error) {
	if err := requireObservations(returns); err != nil {
		return nil, err
	}
	return formulas.SharpeRatio(returns, riskFreeRate, c.cfg.PeriodsPerYear), nil
}

// Sortino returns the annualized Sortino ratio, nil when nothing falls below the threshold
func (c *Calculator) Sortino(returns []float64, riskFreeRate float64) (*float64, error) {
	if err := requireObservations(returns); err != nil {
		return nil, err
	}
	return formulas.SortinoRatio(returns, riskFreeRate, c.sortinoThreshold(riskFreeRate), c.cfg.PeriodsPerYear), nil
}

// Calmar returns annualized mean return over |max drawdown|, nil without a drawdown
func (c *Calculator) Calmar(returns []float64, convention domain.ReturnConvention) (*float64, error) {
	if err := requireObservations(returns); err != nil {
		return nil, err
	}
	dd := formulas.CalculateDrawdown(returns, convention == domain.ReturnLog)
	return formulas.CalmarRatio(formulas.AnnualizedReturn(returns, c.cfg.PeriodsPerYear), dd.MaxDrawdown), nil
}

// MaxDrawdown returns the drawdown profile of the compounded return path
func (c *Calculator) MaxDrawdown(returns []float64, convention domain.ReturnConvention) (formulas.DrawdownMetrics, error) {
	if len(returns) == 0 {
		return formulas.DrawdownMetrics{}, &domain.InsufficientDataError{Required: 1, Reason: "max drawdown"}
	}
	return formulas.CalculateDrawdown(returns, convention == domain.ReturnLog), nil
}

// VaR returns the historical alpha-quantile of returns
func (c *Calculator) VaR(returns []float64, alpha float64) (float64, error) {
	if err := validateAlpha(alpha); err != nil {
		return 0, err
	}
	if len(returns) == 0 {
		return 0, &domain.InsufficientDataError{Required: 1, Reason: "value at risk"}
	}
	return formulas.HistoricalVaR(returns, alpha), nil
}

// CVaR returns the mean of the returns at or below VaR(alpha)
func (c *Calculator) CVaR(returns []float64, alpha float64) (float64, error) {
	if err := validateAlpha(alpha); err != nil {
		return 0, err
	}
	if len(returns) == 0 {
		return 0, &domain.InsufficientDataError{Required: 1, Reason: "conditional value at risk"}
	}
	return formulas.HistoricalCVaR(returns, alpha), nil
}

// Relative computes beta, tracking error and information ratio of
// portfolio against benchmark. A nil benchmark is a BenchmarkRequiredError.
func (c *Calculator) Relative(portfolio, benchmark []float64) (*BenchmarkMetrics, error) {
	if benchmark == nil {
		return nil, &domain.BenchmarkRequiredError{Metric: "beta"}
	}
	if len(portfolio) != len(benchmark) {
		return nil, domain.NewValidationError("benchmark",
			"length %d does not match portfolio length %d", len(benchmark), len(portfolio))
	}
	if err := requireObservations(portfolio); err != nil {
		return nil, err
	}

	p := float64(c.cfg.PeriodsPerYear)
	out := &BenchmarkMetrics{}

	benchStd := formulas.StdDev(benchmark)
	if !formulas.IsZeroDispersion(benchStd, formulas.Mean(benchmark)) {
		beta := formulas.Covariance(portfolio, benchmark) / formulas.Variance(benchmark)
		out.Beta = &beta
	}

	active := make([]float64, len(portfolio))
	floats.SubTo(active, portfolio, benchmark)
	activeMean := formulas.Mean(active)
	activeStd := formulas.StdDev(active)
	out.TrackingError = activeStd * math.Sqrt(p)

	if !formulas.IsZeroDispersion(activeStd, activeMean) {
		ir := activeMean * p / out.TrackingError
		out.InformationRatio = &ir
	}
	return out, nil
}

// Beta is Cov(p, b) / Var(b), nil when the benchmark has no variance
func (c *Calculator) Beta(portfolio, benchmark []float64) (*float64, error) {
	rel, err := c.Relative(portfolio, benchmark)
	if err != nil {
		return nil, relabel(err, "beta")
	}
	return rel.Beta, nil
}

// TrackingError is the annualized standard deviation of active returns
func (c *Calculator) TrackingError(portfolio, benchmark []float64) (float64, error) {
	rel, err := c.Relative(portfolio, benchmark)
	if err != nil {
		return 0, relabel(err, "tracking_error")
	}
	return rel.TrackingError, nil
}

// InformationRatio is annualized active return over tracking error
func (c *Calculator) InformationRatio(portfolio, benchmark []float64) (*float64, error) {
	rel, err := c.Relative(portfolio, benchmark)
	if err != nil {
		return nil, relabel(err, "information_ratio")
	}
	return rel.InformationRatio, nil
}

// RiskContributions returns each weight's fractional share of portfolio
// variance: w_i (Σw)_i / wᵀΣw. The shares sum to 1 unless the variance is zero.
func (c *Calculator) RiskContributions(weights []float64, sigma mat.Symmetric) []float64 {
	n := len(weights)
	w := mat.NewVecDense(n, append([]float64(nil), weights...))
	var sw mat.VecDense
	sw.MulVec(sigma, w)

	variance := mat.Dot(w, &sw)
	out := make([]float64, n)
	if variance <= 0 {
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = weights[i] * sw.AtVec(i) / variance
	}
	return out
}

// DiversificationRatio is Σ w_i σ_i / σ_p, nil when portfolio variance is zero
func (c *Calculator) DiversificationRatio(weights []float64, sigma mat.Symmetric) *float64 {
	n := len(weights)
	w := mat.NewVecDense(n, append([]float64(nil), weights...))
	variance := mat.Inner(w, sigma, w)
	if variance <= 0 {
		return nil
	}

	var weighted float64
	for i := 0; i < n; i++ {
		weighted += weights[i] * math.Sqrt(math.Max(sigma.At(i, i), 0))
	}
	ratio := weighted / math.Sqrt(variance)
	return &ratio
}

// PortfolioReturns combines per-asset return series with fixed weights:
// r_p,t = Σ w_i r_i,t
func PortfolioReturns(returns [][]float64, weights []float64) []float64 {
	if len(returns) == 0 {
		return nil
	}
	out := make([]float64, len(returns[0]))
	for i, series := range returns {
		floats.AddScaled(out, weights[i], series)
	}
	return out
}

func (c *Calculator) sortinoThreshold(riskFreeRate float64) float64 {
	if c.cfg.SortinoUsesRiskFree {
		return riskFreeRate / float64(c.cfg.PeriodsPerYear)
	}
	return 0
}

func requireObservations(returns []float64) error {
	if len(returns) < MinObservations {
		return &domain.InsufficientDataError{
			Observations: len(returns),
			Required:     MinObservations,
		}
	}
	return nil
}

func validateAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return domain.NewValidationError("alpha", "must be in (0, 1), got %g", alpha)
	}
	return nil
}

func relabel(err error, metric string) error {
	if _, ok := err.(*domain.BenchmarkRequiredError); ok {
		return &domain.BenchmarkRequiredError{Metric: metric}
	}
	return err
}
