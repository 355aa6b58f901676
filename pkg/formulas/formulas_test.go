package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Equal-weight portfolio of prices [100,101,102,101] and [50,49,51,52].
var referencePortfolio = []float64{
	0.5*(101.0/100-1) + 0.5*(49.0/50-1),
	0.5*(102.0/101-1) + 0.5*(51.0/49-1),
	0.5*(101.0/102-1) + 0.5*(52.0/51-1),
}

func TestSimpleReturns(t *testing.T) {
	returns := SimpleReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)
	assert.Nil(t, SimpleReturns([]float64{100}))
}

func TestLogReturns(t *testing.T) {
	returns := LogReturns([]float64{100, 110})

	require.Len(t, returns, 1)
	assert.InDelta(t, math.Log(1.1), returns[0], 1e-12)
}

func TestMeanAndStdDev_ReferencePortfolio(t *testing.T) {
	assert.InDelta(t, 0.0084202063663749351, Mean(referencePortfolio), 1e-12)
	assert.InDelta(t, 0.015482104916665315, StdDev(referencePortfolio), 1e-12)
	assert.Equal(t, 0.0, StdDev([]float64{0.01}))
}

func TestSharpeRatio(t *testing.T) {
	sharpe := SharpeRatio(referencePortfolio, 0.02, 252)
	require.NotNil(t, sharpe)
	assert.InDelta(t, 8.5522447584244254, *sharpe, 1e-8)

	t.Run("zero variance is nil", func(t *testing.T) {
		assert.Nil(t, SharpeRatio([]float64{0.01, 0.01, 0.01, 0.01}, 0.02, 252))
	})

	t.Run("too short is nil", func(t *testing.T) {
		assert.Nil(t, SharpeRatio([]float64{0.01}, 0.02, 252))
	})
}

func TestSortinoRatio(t *testing.T) {
	sortino := SortinoRatio(referencePortfolio, 0.02, 0, 252)
	require.NotNil(t, sortino)
	assert.InDelta(t, 26.481350124585568, *sortino, 1e-8)

	t.Run("no downside is nil", func(t *testing.T) {
		assert.Nil(t, SortinoRatio([]float64{0.01, 0.02, 0.03}, 0.02, 0, 252))
	})

	t.Run("threshold at risk free counts small gains as downside", func(t *testing.T) {
		returns := []float64{0.00001, 0.02, 0.03}
		assert.Nil(t, SortinoRatio(returns, 0.02, 0, 252))
		assert.NotNil(t, SortinoRatio(returns, 0.02, 0.02/252, 252))
	})
}

func TestCalculateDrawdown(t *testing.T) {
	m := CalculateDrawdown(referencePortfolio, false)

	assert.InDelta(t, -0.005, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 0, m.PeakIndex)
	assert.Equal(t, 1, m.TroughIndex)
	assert.Len(t, m.Curve, 4)
	assert.InDelta(t, 0.25, m.Frequency, 1e-12)
	assert.InDelta(t, -0.005, m.Average, 1e-12)
}

func TestCalculateDrawdown_RecoveryAndSecondDip(t *testing.T) {
	// 1 -> 1.1 -> 0.88 -> 1.1 -> 0.99
	m := CalculateDrawdown([]float64{0.10, -0.20, 0.25, -0.10}, false)

	assert.InDelta(t, -0.20, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 1, m.PeakIndex)
	assert.Equal(t, 2, m.TroughIndex)
}

func TestCalculateDrawdown_LogReturns(t *testing.T) {
	m := CalculateDrawdown([]float64{math.Log(0.5), math.Log(2)}, true)

	assert.InDelta(t, -0.5, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 1.0, m.Curve[2], 1e-12)
}

func TestCalmarRatio(t *testing.T) {
	calmar := CalmarRatio(0.10, -0.25)
	require.NotNil(t, calmar)
	assert.InDelta(t, 0.4, *calmar, 1e-12)
	assert.Nil(t, CalmarRatio(0.10, 0))
}

func TestHistoricalVaRAndCVaR(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-50) / 1000 // -0.050 .. 0.049
	}

	// Empirical quantile at 5% of 100 observations is the 5th smallest.
	assert.InDelta(t, -0.046, HistoricalVaR(returns, 0.05), 1e-12)
	assert.InDelta(t, -0.048, HistoricalCVaR(returns, 0.05), 1e-12)

	assert.LessOrEqual(t, HistoricalCVaR(returns, 0.05), HistoricalVaR(returns, 0.05))
	assert.True(t, math.IsNaN(HistoricalVaR(nil, 0.05)))
}

func TestHistoricalVaR_DoesNotMutateInput(t *testing.T) {
	returns := []float64{0.03, -0.01, 0.02}
	HistoricalVaR(returns, 0.05)
	assert.Equal(t, []float64{0.03, -0.01, 0.02}, returns)
}

func TestRollingVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01, 0.01}
	vol := RollingVolatility(returns, 2, 252)

	require.Len(t, vol, 5)
	assert.Equal(t, 0.0, vol[0])
	// population std of {0.01, -0.01} is 0.01
	assert.InDelta(t, 0.01*math.Sqrt(252), vol[1], 1e-9)
	assert.Nil(t, RollingVolatility(returns, 10, 252))
}

func TestTotalReturnAndCAGR(t *testing.T) {
	assert.InDelta(t, 0.025233001616488338, TotalReturn(referencePortfolio, false), 1e-12)

	daily := make([]float64, 252)
	for i := range daily {
		daily[i] = 0.001
	}
	assert.InDelta(t, math.Pow(1.001, 252)-1, CAGR(daily, 252, false), 1e-12)
	assert.InDelta(t, TotalReturn(referencePortfolio, false), CAGR(referencePortfolio, 252, false), 1e-12)
}
