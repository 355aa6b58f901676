// Package formulas holds the pure numeric building blocks used by the
// analytics engine: moments, return transforms, ratios, drawdowns and tail risk.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// zeroTolerance is the scale below which a dispersion is treated as zero.
const zeroTolerance = 1e-14

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (N-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance (N-1 denominator)
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// IsZeroDispersion reports whether a standard deviation is numerically zero
// relative to the location of the data it was measured on.
func IsZeroDispersion(std, location float64) bool {
	return std <= zeroTolerance*math.Max(1, math.Abs(location))
}

// SimpleReturns converts prices to simple returns
// Returns[i] = Price[i+1] / Price[i] - 1
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = prices[i]/prices[i-1] - 1
	}
	return returns
}

// LogReturns converts prices to continuously compounded returns
// Returns[i] = ln(Price[i+1] / Price[i])
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return returns
}

// GrowthFactor converts a single period return into the multiplier applied
// to wealth over that period.
func GrowthFactor(r float64, logReturn bool) float64 {
	if logReturn {
		return math.Exp(r)
	}
	return 1 + r
}

// TotalReturn compounds a return series into a single holding period return.
func TotalReturn(returns []float64, logReturn bool) float64 {
	growth := 1.0
	for _, r := range returns {
		growth *= GrowthFactor(r, logReturn)
	}
	return growth - 1
}

// AnnualizedReturn is the arithmetic annualization mean(r) * periodsPerYear.
func AnnualizedReturn(returns []float64, periodsPerYear int) float64 {
	return Mean(returns) * float64(periodsPerYear)
}

// AnnualizedVolatility scales the sample standard deviation by sqrt(periodsPerYear).
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}

// CAGR calculates the compound annual growth rate of a return series.
//
// Formula: (prod(growth))^(periodsPerYear/N) - 1
//
// Series shorter than one year are not extrapolated: the plain
// holding period return is reported instead.
func CAGR(returns []float64, periodsPerYear int, logReturn bool) float64 {
	if len(returns) == 0 {
		return 0
	}

	total := TotalReturn(returns, logReturn)
	n := float64(len(returns))
	if n < float64(periodsPerYear) {
		return total
	}
	return math.Pow(1+total, float64(periodsPerYear)/n) - 1
}
