// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used on every wire surface.
const DateLayout = "2006-01-02"

// ReturnConvention selects how prices are turned into returns
type ReturnConvention string

const (
	// ReturnSimple is p_t / p_{t-1} - 1
	ReturnSimple ReturnConvention = "simple"
	// ReturnLog is ln(p_t / p_{t-1})
	ReturnLog ReturnConvention = "log"
)

// Valid reports whether the convention is supported
func (c ReturnConvention) Valid() bool {
	return c == ReturnSimple || c == ReturnLog
}

// Strategy names an optimization objective
type Strategy string

const (
	// StrategyNone computes analytics for the supplied weights only
	StrategyNone Strategy = "none"
	// StrategyMeanVariance minimizes variance for a target return
	StrategyMeanVariance Strategy = "mean_variance"
	// StrategyMaxSharpe maximizes the Sharpe ratio
	StrategyMaxSharpe Strategy = "max_sharpe"
	// StrategyMinVariance minimizes variance with no return constraint
	StrategyMinVariance Strategy = "min_variance"
	// StrategyRiskParity equalizes risk contributions
	StrategyRiskParity Strategy = "risk_parity"
)

// Strategies lists every supported strategy
var Strategies = []Strategy{
	StrategyNone,
	StrategyMeanVariance,
	StrategyMaxSharpe,
	StrategyMinVariance,
	StrategyRiskParity,
}

// ParseStrategy normalizes a strategy name. The empty string means none.
func ParseStrategy(name string) (Strategy, bool) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		return StrategyNone, true
	}
	for _, known := range Strategies {
		if s == known {
			return s, true
		}
	}
	return s, false
}

// Bounds constrains each optimized weight to [MinWeight, MaxWeight]
type Bounds struct {
	MinWeight float64 `json:"min_weight"`
	MaxWeight float64 `json:"max_weight"`
}

// DefaultBounds is the long-only, unconstrained box
func DefaultBounds() Bounds {
	return Bounds{MinWeight: 0, MaxWeight: 1}
}

// PricePoint is a single dated close
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is an ordered, date-indexed sequence of closes for one symbol
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// ReturnSeries is a return series aligned to a shared calendar
type ReturnSeries struct {
	Symbol string      `json:"symbol"`
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// PortfolioRequest is the input to compute_analytics
type PortfolioRequest struct {
	Symbols          []string
	Weights          []float64
	StartDate        time.Time
	EndDate          time.Time
	Strategy         Strategy
	RiskFreeRate     float64
	Benchmark        string
	TargetReturn     *float64 // Annualized, required by mean_variance
	Bounds           *Bounds
	ReturnConvention ReturnConvention
}

// OptimizeRequest is the input to optimize
type OptimizeRequest struct {
	Symbols          []string
	StartDate        time.Time
	EndDate          time.Time
	Strategy         Strategy
	RiskFreeRate     float64
	TargetReturn     *float64
	Bounds           *Bounds
	ReturnConvention ReturnConvention
}

// FrontierRequest is the input to the efficient frontier sweep
type FrontierRequest struct {
	Symbols          []string
	StartDate        time.Time
	EndDate          time.Time
	Points           int
	RiskFreeRate     float64
	Bounds           *Bounds
	ReturnConvention ReturnConvention
}

// TailRisk holds VaR and CVaR at one tail probability
type TailRisk struct {
	Alpha float64 `json:"alpha"`
	VaR   float64 `json:"var"`
	CVaR  float64 `json:"cvar"`
}

// Drawdown summarizes the drawdown profile of the portfolio
type Drawdown struct {
	Max        float64 `json:"max"`
	PeakDate   string  `json:"peak_date"`
	TroughDate string  `json:"trough_date"`
	Average    float64 `json:"average"`
	Frequency  float64 `json:"frequency"`
}

// CovarianceSummary describes the periodic covariance matrix of the window
type CovarianceSummary struct {
	Matrix             [][]float64 `json:"matrix"`
	Volatilities       []float64   `json:"volatilities"` // Annualized
	AverageCorrelation float64     `json:"average_correlation"`
	ConditionNumber    *float64    `json:"condition_number"`
	Method             string      `json:"method"`
}

// AssetContribution is one asset's share of portfolio risk
type AssetContribution struct {
	Symbol       string  `json:"symbol"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // Fraction of portfolio variance
}

// OptimizationResult is an optimized allocation. Return and volatility are annualized.
type OptimizationResult struct {
	Strategy       Strategy  `json:"strategy"`
	Symbols        []string  `json:"symbols"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         *float64  `json:"sharpe"`
	Iterations     int       `json:"iterations"`
}

// FrontierPoint is one solved point of the efficient frontier
type FrontierPoint struct {
	TargetReturn   float64   `json:"target_return"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         *float64  `json:"sharpe"`
	Weights        []float64 `json:"weights"`
}

// Frontier is the efficient frontier for a universe of symbols
type Frontier struct {
	Symbols   []string        `json:"symbols"`
	Requested int             `json:"requested"`
	Points    []FrontierPoint `json:"points"`
}

// AnalyticsResult is the immutable output of compute_analytics.
// Nil ratio pointers are the "undefined" sentinel (zero variance, no
// downside, no drawdown, no benchmark).
type AnalyticsResult struct {
	Symbols          []string         `json:"symbols"`
	Weights          []float64        `json:"weights"` // Normalized to sum to 1
	StartDate        string           `json:"start_date"`
	EndDate          string           `json:"end_date"`
	Observations     int              `json:"observations"`
	ReturnConvention ReturnConvention `json:"return_convention"`
	Strategy         Strategy         `json:"strategy"`
	RiskFreeRate     float64          `json:"risk_free_rate"`
	PeriodsPerYear   int              `json:"periods_per_year"`

	MeanReturn           float64 `json:"mean_return"` // Periodic
	Volatility           float64 `json:"volatility"`  // Periodic, N-1
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	TotalReturn          float64 `json:"total_return"`
	CAGR                 float64 `json:"cagr"`

	Sharpe   *float64   `json:"sharpe"`
	Sortino  *float64   `json:"sortino"`
	Calmar   *float64   `json:"calmar"`
	Drawdown Drawdown   `json:"drawdown"`
	TailRisk []TailRisk `json:"tail_risk"`

	Benchmark        string   `json:"benchmark,omitempty"`
	Beta             *float64 `json:"beta"`
	TrackingError    *float64 `json:"tracking_error"`
	InformationRatio *float64 `json:"information_ratio"`

	DiversificationRatio *float64            `json:"diversification_ratio"`
	RiskContributions    []AssetContribution `json:"risk_contributions"`
	RollingVolatility    []float64           `json:"rolling_volatility,omitempty"`
	Covariance           CovarianceSummary   `json:"covariance"`

	Optimization *OptimizationResult `json:"optimization,omitempty"`
}

// Portfolio is a persisted portfolio definition
type Portfolio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Symbols     []string  `json:"symbols"`
	Weights     []float64 `json:"weights"`
	Strategy    string    `json:"strategy"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BacktestResult is a buy-and-hold value path
type BacktestResult struct {
	Symbols          []string  `json:"symbols"`
	Weights          []float64 `json:"weights"`
	Dates            []string  `json:"dates"`
	Values           []float64 `json:"values"`
	InitialValue     float64   `json:"initial_value"`
	FinalValue       float64   `json:"final_value"`
	MaxValue         float64   `json:"max_value"`
	MinValue         float64   `json:"min_value"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
}

// FormatDate renders a date in DateLayout
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a DateLayout date in UTC
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
