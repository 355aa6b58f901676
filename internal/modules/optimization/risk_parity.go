package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// riskParityTolerance is the largest relative gap allowed between an
// asset's risk contribution and its budget 1/N.
const riskParityTolerance = 1e-10

// RiskParityResult is an equal risk contribution allocation
type RiskParityResult struct {
	Weights    []float64
	Iterations int
	Residual   float64
}

// solveRiskParity finds long-only weights whose contributions
// w_i (Σw)_i / wᵀΣw all equal 1/N. It runs cyclical coordinate descent on
//
//	½ xᵀΣx - Σ b_i ln x_i
//
// whose minimizer satisfies x_i (Σx)_i = b_i, then normalizes x to sum to 1.
// A quasi-Newton pass in log coordinates supplies the starting point.
func solveRiskParity(sigma mat.Symmetric, maxIter int) (RiskParityResult, error) {
	s := normalized(sigma)
	n := s.SymmetricDim()
	budget := 1 / float64(n)

	for i := 0; i < n; i++ {
		if s.At(i, i) <= 0 {
			return RiskParityResult{}, &domain.IllConditionedCovarianceError{
				Condition: math.Inf(1),
				Reason:    fmt.Sprintf("asset %d has zero variance, risk contributions are undefined", i),
			}
		}
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = 1 / math.Sqrt(s.At(i, i))
	}
	if warm, ok := logBarrierStart(s, x, budget, maxIter); ok {
		x = warm
	}

	residual := math.Inf(1)
	for iter := 1; iter <= maxIter; iter++ {
		for i := 0; i < n; i++ {
			var c float64
			for j := 0; j < n; j++ {
				if j != i {
					c += s.At(i, j) * x[j]
				}
			}
			sii := s.At(i, i)
			x[i] = (-c + math.Sqrt(c*c+4*sii*budget)) / (2 * sii)
		}

		residual = contributionResidual(s, x, budget)
		if residual < riskParityTolerance {
			return RiskParityResult{Weights: normalize(x), Iterations: iter, Residual: residual}, nil
		}
	}

	return RiskParityResult{}, &domain.OptimizationNonConvergenceError{
		Strategy:   domain.StrategyRiskParity,
		Iterations: maxIter,
		Residual:   residual,
	}
}

// logBarrierStart minimizes ½ xᵀΣx - b Σ y_i over y = ln x with L-BFGS.
// It reports false when the search produces no finite point.
func logBarrierStart(s *mat.SymDense, x0 []float64, budget float64, maxIter int) ([]float64, bool) {
	n := len(x0)
	x := make([]float64, n)
	sx := mat.NewVecDense(n, nil)
	eval := func(y []float64) {
		for i, v := range y {
			x[i] = math.Exp(v)
		}
		sx.MulVec(s, mat.NewVecDense(n, x))
	}

	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			eval(y)
			return 0.5*floats.Dot(x, sx.RawVector().Data) - budget*floats.Sum(y)
		},
		Grad: func(grad, y []float64) {
			eval(y)
			for i := range grad {
				grad[i] = x[i]*sx.AtVec(i) - budget
			}
		},
	}

	y0 := make([]float64, n)
	for i, v := range x0 {
		y0[i] = math.Log(v)
	}
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: 1e-9,
	}
	// A line search failure near the optimum still leaves a usable point
	result, _ := optimize.Minimize(problem, y0, settings, &optimize.LBFGS{})
	if result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, false
	}

	out := make([]float64, n)
	for i, v := range result.X {
		out[i] = math.Exp(v)
		if !(out[i] > 0) || math.IsInf(out[i], 0) {
			return nil, false
		}
	}
	return out, true
}

// contributionResidual is max_i |rc_i - b| / b with rc_i the fractional
// risk contribution of x_i.
func contributionResidual(sigma mat.Symmetric, x []float64, budget float64) float64 {
	n := len(x)
	xv := mat.NewVecDense(n, x)
	var sx mat.VecDense
	sx.MulVec(sigma, xv)
	variance := mat.Dot(xv, &sx)
	if variance <= 0 {
		return math.Inf(1)
	}

	worst := 0.0
	for i := 0; i < n; i++ {
		rc := x[i] * sx.AtVec(i) / variance
		worst = math.Max(worst, math.Abs(rc-budget)/budget)
	}
	return worst
}

func normalize(x []float64) []float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / sum
	}
	return out
}
