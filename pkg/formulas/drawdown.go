package formulas

// DrawdownMetrics represents drawdown analysis of an equity curve.
// Indices refer to positions on the curve, where index 0 is the starting
// value before the first return is applied.
type DrawdownMetrics struct {
	MaxDrawdown float64 // Most negative (cum - peak) / peak, 0 when the curve never falls
	PeakIndex   int     // Curve index of the peak preceding the deepest trough
	TroughIndex int     // Curve index of the deepest trough
	Average     float64 // Mean of the strictly negative drawdowns, 0 if none
	Frequency   float64 // Share of curve points spent below a prior peak
	Curve       []float64
}

// EquityCurve compounds a return series onto a starting value of 1.
// The curve has len(returns)+1 points.
func EquityCurve(returns []float64, logReturn bool) []float64 {
	curve := make([]float64, len(returns)+1)
	curve[0] = 1
	for i, r := range returns {
		curve[i+1] = curve[i] * GrowthFactor(r, logReturn)
	}
	return curve
}

// CalculateDrawdown walks the equity curve tracking the running peak.
//
//	drawdown_t = (cum_t - peak_t) / peak_t
//
// The maximum drawdown is the minimum (most negative) drawdown_t.
func CalculateDrawdown(returns []float64, logReturn bool) DrawdownMetrics {
	curve := EquityCurve(returns, logReturn)

	m := DrawdownMetrics{Curve: curve}
	peak := curve[0]
	peakIndex := 0
	underwater := 0
	var negativeSum float64

	for i, value := range curve {
		if value > peak {
			peak = value
			peakIndex = i
		}
		dd := 0.0
		if peak > 0 {
			dd = (value - peak) / peak
		}
		if dd < 0 {
			underwater++
			negativeSum += dd
		}
		if dd < m.MaxDrawdown {
			m.MaxDrawdown = dd
			m.PeakIndex = peakIndex
			m.TroughIndex = i
		}
	}

	if underwater > 0 {
		m.Average = negativeSum / float64(underwater)
	}
	m.Frequency = float64(underwater) / float64(len(curve))
	return m
}
