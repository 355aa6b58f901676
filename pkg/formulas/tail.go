package formulas

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// HistoricalVaR returns the alpha-quantile of the empirical return
// distribution (alpha = 0.05 for 95% VaR). The value is a return, so
// losses are negative. Returns NaN for an empty series.
func HistoricalVaR(returns []float64, alpha float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}
	sorted := sortedCopy(returns)
	return stat.Quantile(alpha, stat.Empirical, sorted, nil)
}

// HistoricalCVaR is the mean of the returns at or below HistoricalVaR.
// The VaR observation itself always belongs to the tail, so the mean is
// taken over at least one value.
func HistoricalCVaR(returns []float64, alpha float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}

	sorted := sortedCopy(returns)
	threshold := stat.Quantile(alpha, stat.Empirical, sorted, nil)

	var sum float64
	count := 0
	for _, r := range sorted {
		if r > threshold {
			break
		}
		sum += r
		count++
	}
	return sum / float64(count)
}

// RollingVolatility returns the annualized rolling standard deviation of
// returns over window periods. The first window-1 entries are zero, as
// produced by TA-Lib. TA-Lib uses the population (N) denominator.
func RollingVolatility(returns []float64, window, periodsPerYear int) []float64 {
	if window < 2 || len(returns) < window {
		return nil
	}

	std := talib.StdDev(returns, window, 1)
	scale := math.Sqrt(float64(periodsPerYear))
	out := make([]float64, len(std))
	for i, v := range std {
		out[i] = v * scale
	}
	return out
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}
