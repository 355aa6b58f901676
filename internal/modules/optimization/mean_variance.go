package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
)

const (
	// tieBreak is the weight of ‖w - 1/N‖² relative to the normalized
	// covariance. It only decides between allocations of equal variance.
	tieBreak = 1e-10
	// goldenTolerance is the relative width at which the max Sharpe search stops
	goldenTolerance = 1e-9
	invPhi          = 0.6180339887498949
)

// meanVariance solves the Markowitz problems on one normalized covariance
type meanVariance struct {
	mu      []float64
	sigma   *mat.SymDense // Normalized, see normalized()
	lo, hi  float64
	maxIter int

	muScale    float64
	rmin, rmax float64
	wmin, wmax []float64
}

func newMeanVariance(mu []float64, sigma mat.Symmetric, bounds domain.Bounds, maxIter int) *meanVariance {
	mv := &meanVariance{
		mu:      mu,
		sigma:   normalized(sigma),
		lo:      bounds.MinWeight,
		hi:      bounds.MaxWeight,
		maxIter: maxIter,
		muScale: floats.Norm(mu, math.Inf(1)),
	}
	mv.wmin = extremeVertex(mu, mv.lo, mv.hi, false)
	mv.wmax = extremeVertex(mu, mv.lo, mv.hi, true)
	mv.rmin = floats.Dot(mu, mv.wmin)
	mv.rmax = floats.Dot(mu, mv.wmax)
	return mv
}

// hessian is Σ/s + δI
func (mv *meanVariance) hessian() *mat.SymDense {
	n := len(mv.mu)
	h := mat.NewSymDense(n, nil)
	h.CopySym(mv.sigma)
	for i := 0; i < n; i++ {
		h.SetSym(i, i, h.At(i, i)+tieBreak)
	}
	return h
}

// returnTolerance is the slack on targets at the edge of [rmin, rmax]
func (mv *meanVariance) returnTolerance() float64 {
	return 1e-9*math.Max(math.Abs(mv.rmin), math.Abs(mv.rmax)) + 1e-15
}

// minVariance solves the QP with only the budget constraint
func (mv *meanVariance) minVariance() ([]float64, int, error) {
	n := len(mv.mu)
	if w, ok := pinned(n, 1, mv.lo, mv.hi); ok {
		return w, 0, nil
	}

	a := mat.NewDense(1, n, nil)
	start := make([]float64, n)
	for i := 0; i < n; i++ {
		a.Set(0, i, 1)
		start[i] = 1 / float64(n)
	}

	qp := &qpProblem{H: mv.hessian(), A: a, b: []float64{1}, lo: mv.lo, hi: mv.hi}
	w, iters, ok := qp.solve(start, mv.maxIter)
	if !ok {
		return nil, iters, &domain.OptimizationNonConvergenceError{
			Strategy:   domain.StrategyMinVariance,
			Iterations: iters,
		}
	}
	return w, iters, nil
}

// target solves min wᵀΣw subject to μᵀw = t (periodic)
func (mv *meanVariance) target(t float64) ([]float64, int, error) {
	n := len(mv.mu)
	tol := mv.returnTolerance()
	if t < mv.rmin-tol || t > mv.rmax+tol {
		return nil, 0, &domain.InfeasibleConstraintError{
			Constraint: "target_return",
			Reason: fmt.Sprintf("periodic target %.6g outside achievable range [%.6g, %.6g]",
				t, mv.rmin, mv.rmax),
		}
	}
	t = math.Min(mv.rmax, math.Max(mv.rmin, t))

	// Every feasible allocation earns the same return: the target row
	// would duplicate the budget row.
	if mv.rmax-mv.rmin <= tol {
		return mv.minVariance()
	}
	// At either end of the range the feasible set is a face of the box
	// with no interior.
	if t >= mv.rmax-tol {
		return mv.edge(true)
	}
	if t <= mv.rmin+tol {
		return mv.edge(false)
	}

	theta := (t - mv.rmin) / (mv.rmax - mv.rmin)
	start := make([]float64, n)
	for i := 0; i < n; i++ {
		start[i] = (1-theta)*mv.wmin[i] + theta*mv.wmax[i]
	}

	a := mat.NewDense(2, n, nil)
	for i := 0; i < n; i++ {
		a.Set(0, i, 1)
		a.Set(1, i, mv.mu[i]/mv.muScale)
	}
	b := []float64{1, t / mv.muScale}

	qp := &qpProblem{H: mv.hessian(), A: a, b: b, lo: mv.lo, hi: mv.hi}
	w, iters, ok := qp.solve(start, mv.maxIter)
	if !ok {
		return nil, iters, &domain.OptimizationNonConvergenceError{
			Strategy:   domain.StrategyMeanVariance,
			Iterations: iters,
		}
	}
	return w, iters, nil
}

// edge solves the min variance allocation earning rmax (or rmin). Assets
// above the marginal return sit at hi, those below at lo; only the budget
// left to the assets tied with the marginal one can move.
func (mv *meanVariance) edge(maximize bool) ([]float64, int, error) {
	vertex := mv.wmin
	if maximize {
		vertex = mv.wmax
	}

	level := math.NaN()
	for i, w := range vertex {
		if w <= mv.lo {
			continue
		}
		if math.IsNaN(level) || (maximize && mv.mu[i] < level) || (!maximize && mv.mu[i] > level) {
			level = mv.mu[i]
		}
	}

	var group, rest []int
	budget := 0.0
	for i, m := range mv.mu {
		if !math.IsNaN(level) && math.Abs(m-level) <= 1e-12*mv.muScale {
			group = append(group, i)
			budget += vertex[i]
		} else {
			rest = append(rest, i)
		}
	}

	out := make([]float64, len(vertex))
	copy(out, vertex)
	k := len(group)
	if k <= 1 {
		return out, 0, nil
	}
	if w, ok := pinned(k, budget, mv.lo, mv.hi); ok {
		for j, i := range group {
			out[i] = w[j]
		}
		return out, 0, nil
	}

	h := mv.hessian()
	hg := mat.NewSymDense(k, nil)
	c := make([]float64, k)
	a := mat.NewDense(1, k, nil)
	start := make([]float64, k)
	for r, i := range group {
		for col, j := range group[r:] {
			hg.SetSym(r, r+col, h.At(i, j))
		}
		for _, j := range rest {
			c[r] += h.At(i, j) * vertex[j]
		}
		a.Set(0, r, 1)
		start[r] = budget / float64(k)
	}

	qp := &qpProblem{H: hg, c: c, A: a, b: []float64{budget}, lo: mv.lo, hi: mv.hi}
	w, iters, ok := qp.solve(start, mv.maxIter)
	if !ok {
		return nil, iters, &domain.OptimizationNonConvergenceError{
			Strategy:   domain.StrategyMeanVariance,
			Iterations: iters,
		}
	}
	for j, i := range group {
		out[i] = w[j]
	}
	return out, iters, nil
}

// maxSharpe maximizes (μᵀw - rf)/σ(w) by a golden-section search over the
// target return of the efficient frontier, on which the ratio is unimodal.
// rf is periodic. Without any excess return it falls back to min variance.
func (mv *meanVariance) maxSharpe(ctx context.Context, rf float64) ([]float64, int, error) {
	wmv, iters, err := mv.minVariance()
	if err != nil {
		return nil, iters, err
	}
	tol := mv.returnTolerance()
	if mv.rmax <= rf+tol {
		return wmv, iters, nil
	}

	evals := iters
	eval := func(t float64) (frontierSample, error) {
		w, n, err := mv.target(t)
		evals += n
		if err != nil {
			return frontierSample{}, err
		}
		return mv.sample(t, w, rf), nil
	}

	// Below the min variance return the frontier is inefficient
	a := math.Max(floats.Dot(mv.mu, wmv), rf)
	b := mv.rmax

	best, err := eval(b)
	if err != nil {
		return nil, evals, err
	}
	if b-a > tol {
		if edge, err := eval(a); err == nil && edge.sharpe > best.sharpe {
			best = edge
		}

		c := b - invPhi*(b-a)
		d := a + invPhi*(b-a)
		pc, err := eval(c)
		if err != nil {
			return nil, evals, err
		}
		pd, err := eval(d)
		if err != nil {
			return nil, evals, err
		}

		width := goldenTolerance*math.Max(math.Abs(a), math.Abs(b)) + tol
		for b-a > width {
			if err := ctx.Err(); err != nil {
				return nil, evals, err
			}
			if pc.sharpe >= pd.sharpe {
				b, pd = d, pc
				d = c
				c = b - invPhi*(b-a)
				if pc, err = eval(c); err != nil {
					return nil, evals, err
				}
			} else {
				a, pc = c, pd
				c = d
				d = a + invPhi*(b-a)
				if pd, err = eval(d); err != nil {
					return nil, evals, err
				}
			}
		}
		for _, p := range []frontierSample{pc, pd} {
			if p.sharpe > best.sharpe {
				best = p
			}
		}
	}

	if !(best.sharpe > 0) {
		return wmv, evals, nil
	}
	return best.w, evals, nil
}

// frontierSample is a solved frontier point scored by its periodic Sharpe ratio
type frontierSample struct {
	t      float64
	w      []float64
	sharpe float64
}

func (mv *meanVariance) sample(t float64, w []float64, rf float64) frontierSample {
	v := mat.NewVecDense(len(w), w)
	ret := floats.Dot(mv.mu, w)
	vol := math.Sqrt(math.Max(mat.Inner(v, mv.sigma, v), 0))

	s := math.Inf(-1)
	switch {
	case vol > 0:
		s = (ret - rf) / vol
	case ret > rf:
		s = math.Inf(1)
	}
	return frontierSample{t: t, w: w, sharpe: s}
}

// extremeVertex returns the allocation inside {lo ≤ w ≤ hi, Σw = 1} with
// the lowest (or highest) μᵀw: everything starts at lo and the remaining
// budget fills assets in order of return.
func extremeVertex(mu []float64, lo, hi float64, maximize bool) []float64 {
	n := len(mu)
	w := make([]float64, n)
	order := make([]int, n)
	for i := range w {
		w[i] = lo
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if maximize {
			return mu[order[a]] > mu[order[b]]
		}
		return mu[order[a]] < mu[order[b]]
	})

	budget := 1 - float64(n)*lo
	for _, i := range order {
		if budget <= 0 {
			break
		}
		add := math.Min(hi-lo, budget)
		w[i] += add
		budget -= add
	}
	return w
}
