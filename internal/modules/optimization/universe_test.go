package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// randomUniverse draws obs daily returns for n assets driven by one market
// factor and returns their sample means and sample covariance.
func randomUniverse(seed int64, n, obs int) ([]float64, *mat.SymDense) {
	rng := rand.New(rand.NewSource(seed))
	beta := make([]float64, n)
	drift := make([]float64, n)
	noise := make([]float64, n)
	for j := 0; j < n; j++ {
		beta[j] = 0.5 + rng.Float64()
		drift[j] = 0.0002 + 0.0008*rng.Float64()
		noise[j] = 0.005 + 0.015*rng.Float64()
	}

	data := mat.NewDense(obs, n, nil)
	for i := 0; i < obs; i++ {
		market := 0.01 * rng.NormFloat64()
		for j := 0; j < n; j++ {
			data.Set(i, j, drift[j]+beta[j]*market+noise[j]*rng.NormFloat64())
		}
	}

	mu := make([]float64, n)
	for j := 0; j < n; j++ {
		mu[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	var sigma mat.SymDense
	stat.CovarianceMatrix(&sigma, data, nil)
	return mu, &sigma
}

func universeBounds(seed int64) domain.Bounds {
	if seed%2 == 0 {
		return domain.DefaultBounds()
	}
	return domain.Bounds{MinWeight: 0.02, MaxWeight: 0.35}
}

func annualSharpe(mu []float64, sigma mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return floats.Dot(mu, w) * periods / math.Sqrt(mat.Inner(v, sigma, v)*periods)
}

func TestOptimize_RandomUniverses(t *testing.T) {
	engine := newTestEngine(Config{})
	ctx := context.Background()

	for seed := int64(1); seed <= 20; seed++ {
		n := 5 + int(seed%4)
		mu, sigma := randomUniverse(seed, n, 60)
		bounds := universeBounds(seed)
		rmax := floats.Dot(mu, extremeVertex(mu, bounds.MinWeight, bounds.MaxWeight, true)) * periods

		t.Run(fmt.Sprintf("seed=%d/n=%d", seed, n), func(t *testing.T) {
			base := Problem{Mu: mu, Sigma: sigma, Bounds: bounds}

			minVar := base
			minVar.Strategy = domain.StrategyMinVariance
			mv, err := engine.Optimize(ctx, minVar)
			require.NoError(t, err)
			assertFullyInvested(t, mv.Weights, bounds)

			sharpe := base
			sharpe.Strategy = domain.StrategyMaxSharpe
			ms, err := engine.Optimize(ctx, sharpe)
			require.NoError(t, err)
			assertFullyInvested(t, ms.Weights, bounds)
			require.NotNil(t, ms.Sharpe)
			if *ms.Sharpe > 0 {
				equal := make([]float64, n)
				for i := range equal {
					equal[i] = 1 / float64(n)
				}
				assert.GreaterOrEqual(t, *ms.Sharpe, annualSharpe(mu, sigma, equal)-1e-7)
				assert.GreaterOrEqual(t, *ms.Sharpe, annualSharpe(mu, sigma, mv.Weights)-1e-7)
			}

			for _, target := range []float64{rmax, (mv.ExpectedReturn + rmax) / 2} {
				target := target
				p := base
				p.Strategy = domain.StrategyMeanVariance
				p.TargetReturn = &target
				res, err := engine.Optimize(ctx, p)
				require.NoError(t, err, "target %g", target)
				assertFullyInvested(t, res.Weights, bounds)
				assert.InDelta(t, target, res.ExpectedReturn, 1e-8)
				assert.GreaterOrEqual(t, res.Volatility, mv.Volatility-1e-9)
			}

			frontier, err := engine.Frontier(ctx, base, 50)
			require.NoError(t, err)
			require.Len(t, frontier.Points, 50)
			for _, p := range frontier.Points {
				assertFullyInvested(t, p.Weights, bounds)
				assert.InDelta(t, p.TargetReturn, p.ExpectedReturn, 1e-8)
			}
			assert.InDelta(t, rmax, frontier.Points[49].ExpectedReturn, 1e-8)
		})
	}
}

func TestOptimize_MeanVariance_TiedHighestReturns(t *testing.T) {
	mu, sigma := periodic([]float64{0.10, 0.10, 0.05}, []float64{
		0.04, 0, 0,
		0, 0.01, 0,
		0, 0, 0.02,
	})
	target := 0.10

	res, err := newTestEngine(Config{}).Optimize(context.Background(), Problem{
		Mu:           mu,
		Sigma:        sigma,
		Bounds:       domain.DefaultBounds(),
		Strategy:     domain.StrategyMeanVariance,
		TargetReturn: &target,
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, 0.8, 0}, res.Weights, 1e-6)
	assert.InDelta(t, target, res.ExpectedReturn, 1e-10)
}

func TestFrontier_SolverFailureIsReturned(t *testing.T) {
	mu, sigma := periodic([]float64{0.12, 0.08, 0.10}, []float64{
		0.04, 0.01, 0.005,
		0.01, 0.03, 0.008,
		0.005, 0.008, 0.025,
	})
	engine := newTestEngine(Config{})
	p := Problem{Mu: mu, Sigma: sigma, Bounds: domain.DefaultBounds(), Strategy: domain.StrategyMeanVariance}

	starved := newMeanVariance(mu, sigma, p.Bounds, 1)
	inside := (starved.rmin + starved.rmax) / 2

	_, err := engine.sweep(context.Background(), p, starved, []float64{inside})
	var nonConv *domain.OptimizationNonConvergenceError
	require.ErrorAs(t, err, &nonConv)
	assert.Equal(t, domain.StrategyMeanVariance, nonConv.Strategy)

	points, err := engine.sweep(context.Background(), p, starved, []float64{2 * starved.rmax})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestQP_PolishLandsOnActiveBounds(t *testing.T) {
	// min ½(w1² + w2² + w3²) + w1 s.t. Σw = 1, 0 ≤ w ≤ 1 puts w1 at 0
	qp := &qpProblem{
		H:  mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		c:  []float64{1, 0, 0},
		A:  mat.NewDense(1, 3, []float64{1, 1, 1}),
		b:  []float64{1},
		lo: 0,
		hi: 1,
	}
	w, _, ok := qp.solve([]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, 100)
	require.True(t, ok)
	assert.Equal(t, 0.0, w[0])
	assert.InDelta(t, 0.5, w[1], 1e-12)
	assert.InDelta(t, 0.5, w[2], 1e-12)
}

func TestPinned(t *testing.T) {
	w, ok := pinned(4, 1, 0.25, 0.5)
	require.True(t, ok)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, w)

	w, ok = pinned(2, 1, 0, 0.5)
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.5}, w)

	_, ok = pinned(3, 1, 0, 1)
	assert.False(t, ok)
}
