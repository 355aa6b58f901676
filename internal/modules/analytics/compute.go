package analytics

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
)

// computeAnalytics runs the pipeline for a normalized request
func (s *Service) computeAnalytics(ctx context.Context, req domain.PortfolioRequest) (*domain.AnalyticsResult, error) {
	est, err := s.estimate(ctx, req.Symbols, req.Benchmark, req.StartDate, req.EndDate, req.ReturnConvention)
	if err != nil {
		return nil, err
	}
	sigma := s.covariance(est)

	portfolio := risk.PortfolioReturns(est.Returns, req.Weights)
	m, err := s.calculator.Compute(portfolio, req.RiskFreeRate, req.ReturnConvention)
	if err != nil {
		return nil, err
	}

	res := &domain.AnalyticsResult{
		Symbols:          req.Symbols,
		Weights:          req.Weights,
		StartDate:        domain.FormatDate(est.PriceDates[0]),
		EndDate:          domain.FormatDate(est.PriceDates[len(est.PriceDates)-1]),
		Observations:     m.Observations,
		ReturnConvention: req.ReturnConvention,
		Strategy:         req.Strategy,
		RiskFreeRate:     req.RiskFreeRate,
		PeriodsPerYear:   s.calculator.PeriodsPerYear(),

		MeanReturn:           m.Mean,
		Volatility:           m.Volatility,
		AnnualizedReturn:     m.AnnualizedReturn,
		AnnualizedVolatility: m.AnnualizedVolatility,
		TotalReturn:          m.TotalReturn,
		CAGR:                 m.CAGR,

		Sharpe:  m.Sharpe,
		Sortino: m.Sortino,
		Calmar:  m.Calmar,
		Drawdown: domain.Drawdown{
			Max:       m.Drawdown.MaxDrawdown,
			Average:   m.Drawdown.Average,
			Frequency: m.Drawdown.Frequency,
		},
		TailRisk:          m.TailRisk,
		RollingVolatility: m.RollingVolatility,

		DiversificationRatio: s.calculator.DiversificationRatio(req.Weights, sigma),
		Covariance:           s.covarianceSummary(est, sigma),
	}
	if m.Drawdown.MaxDrawdown < 0 {
		res.Drawdown.PeakDate = domain.FormatDate(est.PriceDates[m.Drawdown.PeakIndex])
		res.Drawdown.TroughDate = domain.FormatDate(est.PriceDates[m.Drawdown.TroughIndex])
	}

	contributions := s.calculator.RiskContributions(req.Weights, sigma)
	res.RiskContributions = make([]domain.AssetContribution, len(req.Symbols))
	for i, symbol := range req.Symbols {
		res.RiskContributions[i] = domain.AssetContribution{
			Symbol:       symbol,
			Weight:       req.Weights[i],
			Contribution: contributions[i],
		}
	}

	if req.Benchmark != "" {
		rel, err := s.calculator.Relative(portfolio, est.BenchmarkReturns)
		if err != nil {
			return nil, err
		}
		te := rel.TrackingError
		res.Benchmark = req.Benchmark
		res.Beta = rel.Beta
		res.TrackingError = &te
		res.InformationRatio = rel.InformationRatio
	}

	if req.Strategy != domain.StrategyNone {
		opt, err := s.optimizer.Optimize(ctx, optimization.Problem{
			Symbols:      req.Symbols,
			Mu:           est.Mean,
			Sigma:        sigma,
			Bounds:       *req.Bounds,
			Strategy:     req.Strategy,
			TargetReturn: req.TargetReturn,
			RiskFreeRate: req.RiskFreeRate,
		})
		if err != nil {
			return nil, err
		}
		res.Optimization = opt
	}

	return res, nil
}

// covarianceSummary reports the matrix with annualized volatilities, the
// mean off-diagonal correlation and the spectral condition number.
func (s *Service) covarianceSummary(est *returns.Estimate, sigma *mat.SymDense) domain.CovarianceSummary {
	n := sigma.SymmetricDim()
	periods := float64(s.calculator.PeriodsPerYear())

	out := domain.CovarianceSummary{
		Matrix:       make([][]float64, n),
		Volatilities: make([]float64, n),
		Method:       s.cfg.CovarianceMethod,
	}
	std := make([]float64, n)
	for i := 0; i < n; i++ {
		out.Matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out.Matrix[i][j] = sigma.At(i, j)
		}
		std[i] = math.Sqrt(math.Max(sigma.At(i, i), 0))
		out.Volatilities[i] = std[i] * math.Sqrt(periods)
	}

	// Pairs involving a constant series have no correlation and are skipped
	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if std[i] == 0 || std[j] == 0 {
				continue
			}
			sum += sigma.At(i, j) / (std[i] * std[j])
			pairs++
		}
	}
	if pairs > 0 {
		out.AverageCorrelation = sum / float64(pairs)
	}

	if d, err := optimization.Diagnose(sigma, math.Inf(1)); err == nil && !math.IsInf(d.Condition, 0) {
		c := d.Condition
		out.ConditionNumber = &c
	} else if err != nil {
		s.log.Debug().Err(err).Strs("symbols", est.Symbols).Msg("Covariance diagnostics unavailable")
	}
	return out
}
