package formulas

import (
	"math"
)

// SharpeRatio calculates the annualized Sharpe ratio.
//
//	Sharpe = (mean(r) - rf/P) / std(r) * sqrt(P)
//
// riskFreeRate is annual, P is periodsPerYear and std uses the N-1
// denominator. Returns nil when there are fewer than two observations or
// the series has no dispersion.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	mean := Mean(returns)
	std := StdDev(returns)
	if IsZeroDispersion(std, mean) {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (mean - periodicRiskFree) / std * math.Sqrt(float64(periodsPerYear))
	return &sharpe
}

// DownsideDeviation is sqrt(sum((r - threshold)^2) / n) over the n returns
// strictly below threshold. ok is false when nothing falls below it.
func DownsideDeviation(returns []float64, threshold float64) (dd float64, ok bool) {
	var squared float64
	count := 0
	for _, r := range returns {
		if r < threshold {
			d := r - threshold
			squared += d * d
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return math.Sqrt(squared / float64(count)), true
}

// SortinoRatio calculates the annualized Sortino ratio.
//
//	Sortino = (mean(r) - rf/P) / DownsideDeviation(r, threshold) * sqrt(P)
//
// threshold is periodic (0, or rf/P when the caller measures downside
// against the risk-free rate). Returns nil when there are no downside
// observations or the downside deviation is zero.
func SortinoRatio(returns []float64, riskFreeRate, threshold float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	dd, ok := DownsideDeviation(returns, threshold)
	if !ok || dd <= zeroTolerance {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sortino := (Mean(returns) - periodicRiskFree) / dd * math.Sqrt(float64(periodsPerYear))
	return &sortino
}

// CalmarRatio is annualized return over the magnitude of the maximum
// drawdown. Returns nil when there was no drawdown.
func CalmarRatio(annualReturn, maxDrawdown float64) *float64 {
	if math.Abs(maxDrawdown) <= zeroTolerance {
		return nil
	}
	calmar := annualReturn / math.Abs(maxDrawdown)
	return &calmar
}
