package optimization

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// ipmTolerance bounds the complementarity gap and both KKT residuals at convergence
	ipmTolerance = 1e-12
	// ipmLooseTolerance is accepted once the iterates stop improving
	ipmLooseTolerance = 1e-8
	// fractionToBoundary keeps every iterate strictly inside the box
	fractionToBoundary = 0.995
	// stallIterations ends the solve when the merit has not dropped tenfold for this long
	stallIterations = 30
	// activeSlack treats a weight this close to a bound as resting on it
	activeSlack = 1e-9
	// minSlack keeps the barrier terms finite once a weight reaches its bound in floating point
	minSlack = 1e-30
	// polishRcond drops singular values of the reduced KKT matrix below this fraction of the largest
	polishRcond = 1e-14
)

// qpProblem is
//
//	minimize  ½ wᵀHw + cᵀw
//	s.t.      A w = b,  lo ≤ w_i ≤ hi
//
// with H positive definite and A of full row rank.
type qpProblem struct {
	H      *mat.SymDense
	c      []float64 // nil for none
	A      *mat.Dense
	b      []float64
	lo, hi float64
}

// ipmState holds the primal and dual iterates. zl and zu are the
// multipliers of the lower and upper bounds.
type ipmState struct {
	w, y, zl, zu []float64
	l, u         []float64 // w - lo and hi - w
	rd, rp       []float64 // dual and primal residuals
}

// solve runs a primal-dual interior point method (Mehrotra predictor-corrector)
// from w0 pulled into the interior of the box. The equality constraints
// need not hold at w0. The box must have an interior: callers resolve
// pinned boxes before calling. The result is snapped onto the bounds it
// rests on when that does not raise the objective.
// Returns the solution, the number of Newton steps and whether it converged.
func (qp *qpProblem) solve(w0 []float64, maxIter int) ([]float64, int, bool) {
	n := len(w0)
	m, _ := qp.A.Dims()
	width := qp.hi - qp.lo

	s := &ipmState{
		w:  make([]float64, n),
		y:  make([]float64, m),
		zl: make([]float64, n),
		zu: make([]float64, n),
		l:  make([]float64, n),
		u:  make([]float64, n),
		rd: make([]float64, n),
		rp: make([]float64, m),
	}
	margin := 0.01 * width
	for i, v := range w0 {
		s.w[i] = math.Min(qp.hi-margin, math.Max(qp.lo+margin, v))
		s.zl[i] = 1
		s.zu[i] = 1
	}

	dir := newDirection(n, m)
	aff := newDirection(n, m)
	cl := make([]float64, n)
	cu := make([]float64, n)

	best := math.Inf(1)
	improved := 0
	steps := 0
	for steps < maxIter {
		merit, gap := qp.measure(s)
		if merit <= ipmTolerance {
			return qp.polish(s.w), steps, true
		}
		if merit < best/10 {
			best, improved = merit, steps
		}
		if steps-improved > stallIterations {
			break
		}

		lu, ok := qp.factorize(s)
		if !ok {
			break
		}

		// Predictor: pure Newton step toward zero complementarity
		for i := 0; i < n; i++ {
			cl[i] = -s.l[i] * s.zl[i]
			cu[i] = -s.u[i] * s.zu[i]
		}
		if !qp.direction(lu, s, cl, cu, aff) {
			break
		}
		alphaAff := maxStep(s, aff)
		gapAff := 0.0
		for i := 0; i < n; i++ {
			gapAff += (s.l[i] + alphaAff*aff.dw[i]) * (s.zl[i] + alphaAff*aff.dzl[i])
			gapAff += (s.u[i] - alphaAff*aff.dw[i]) * (s.zu[i] + alphaAff*aff.dzu[i])
		}
		gapAff /= float64(2 * n)
		sigma := math.Min(1, math.Pow(math.Max(gapAff, 0)/gap, 3))

		// Corrector: centered step with the second order term of the predictor
		for i := 0; i < n; i++ {
			cl[i] = sigma*gap - s.l[i]*s.zl[i] - aff.dw[i]*aff.dzl[i]
			cu[i] = sigma*gap - s.u[i]*s.zu[i] + aff.dw[i]*aff.dzu[i]
		}
		if !qp.direction(lu, s, cl, cu, dir) {
			break
		}

		alpha := math.Min(1, fractionToBoundary*maxStep(s, dir))
		floats.AddScaled(s.w, alpha, dir.dw)
		floats.AddScaled(s.y, alpha, dir.dy)
		floats.AddScaled(s.zl, alpha, dir.dzl)
		floats.AddScaled(s.zu, alpha, dir.dzu)
		steps++
	}

	merit, _ := qp.measure(s)
	if merit <= ipmLooseTolerance {
		return qp.polish(s.w), steps, true
	}
	qp.clamp(s.w)
	return s.w, steps, false
}

// measure refreshes slacks and residuals and returns the largest of the
// KKT residuals and the average complementarity, plus that average alone.
func (qp *qpProblem) measure(s *ipmState) (float64, float64) {
	n := len(s.w)
	for i, v := range s.w {
		s.l[i] = math.Max(v-qp.lo, minSlack)
		s.u[i] = math.Max(qp.hi-v, minSlack)
	}

	// rd = Hw + c - Aᵀy - zl + zu
	rd := mat.NewVecDense(n, s.rd)
	rd.MulVec(qp.H, mat.NewVecDense(n, s.w))
	if qp.c != nil {
		floats.Add(s.rd, qp.c)
	}
	var aty mat.VecDense
	aty.MulVec(qp.A.T(), mat.NewVecDense(len(s.y), s.y))
	for i := 0; i < n; i++ {
		s.rd[i] += -aty.AtVec(i) - s.zl[i] + s.zu[i]
	}

	// rp = Aw - b
	rp := mat.NewVecDense(len(s.rp), s.rp)
	rp.MulVec(qp.A, mat.NewVecDense(n, s.w))
	floats.Sub(s.rp, qp.b)

	gap := (floats.Dot(s.l, s.zl) + floats.Dot(s.u, s.zu)) / float64(2*n)
	merit := math.Max(gap, math.Max(floats.Norm(s.rd, math.Inf(1)), floats.Norm(s.rp, math.Inf(1))))
	return merit, gap
}

// factorize builds and factors the reduced Newton matrix
//
//	[H + D  -Aᵀ]
//	[A       0 ]
//
// with D = diag(zl/l + zu/u).
func (qp *qpProblem) factorize(s *ipmState) (*mat.LU, bool) {
	n := len(s.w)
	m := len(s.y)

	k := mat.NewDense(n+m, n+m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k.Set(i, j, qp.H.At(i, j))
		}
		k.Set(i, i, k.At(i, i)+s.zl[i]/s.l[i]+s.zu[i]/s.u[i])
		for r := 0; r < m; r++ {
			a := qp.A.At(r, i)
			k.Set(i, n+r, -a)
			k.Set(n+r, i, a)
		}
	}
	for i := 0; i < n+m; i++ {
		for j := 0; j < n+m; j++ {
			if v := k.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, false
			}
		}
	}

	var lu mat.LU
	lu.Factorize(k)
	return &lu, true
}

// direction is one Newton step of the primal-dual system
type direction struct {
	dw, dy, dzl, dzu []float64
}

func newDirection(n, m int) *direction {
	return &direction{
		dw:  make([]float64, n),
		dy:  make([]float64, m),
		dzl: make([]float64, n),
		dzu: make([]float64, n),
	}
}

// direction solves for the step whose complementarity products move by
// cl (lower bounds) and cu (upper bounds). It reports false when the
// system could not be solved.
func (qp *qpProblem) direction(lu *mat.LU, s *ipmState, cl, cu []float64, d *direction) bool {
	n := len(s.w)
	m := len(s.y)

	rhs := mat.NewVecDense(n+m, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, -s.rd[i]+cl[i]/s.l[i]-cu[i]/s.u[i])
	}
	for r := 0; r < m; r++ {
		rhs.SetVec(n+r, -s.rp[r])
	}

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return false
		}
	}

	for i := 0; i < n; i++ {
		dw := x.AtVec(i)
		d.dw[i] = dw
		d.dzl[i] = (cl[i] - s.zl[i]*dw) / s.l[i]
		d.dzu[i] = (cu[i] + s.zu[i]*dw) / s.u[i]
	}
	for r := 0; r < m; r++ {
		d.dy[r] = x.AtVec(n + r)
	}
	return finite(d.dw) && finite(d.dy) && finite(d.dzl) && finite(d.dzu)
}

// maxStep is the largest step in (0, 1] that keeps slacks and multipliers non-negative
func maxStep(s *ipmState, d *direction) float64 {
	alpha := 1.0
	for i := range s.w {
		if d.dw[i] < 0 {
			alpha = math.Min(alpha, -s.l[i]/d.dw[i])
		}
		if d.dw[i] > 0 {
			alpha = math.Min(alpha, s.u[i]/d.dw[i])
		}
		if d.dzl[i] < 0 {
			alpha = math.Min(alpha, -s.zl[i]/d.dzl[i])
		}
		if d.dzu[i] < 0 {
			alpha = math.Min(alpha, -s.zu[i]/d.dzu[i])
		}
	}
	return alpha
}

// polish fixes the weights resting on a bound and solves the equality
// constrained problem over the rest exactly. The polished point replaces
// w only if it is feasible and no worse.
func (qp *qpProblem) polish(w []float64) []float64 {
	n := len(w)
	m, _ := qp.A.Dims()

	out := make([]float64, n)
	fixed := make([]bool, n)
	var freeIdx []int
	for i, v := range w {
		switch {
		case v-qp.lo <= activeSlack:
			out[i], fixed[i] = qp.lo, true
		case qp.hi-v <= activeSlack:
			out[i], fixed[i] = qp.hi, true
		default:
			freeIdx = append(freeIdx, i)
		}
	}

	if k := len(freeIdx); k > 0 {
		kkt := mat.NewDense(k+m, k+m, nil)
		rhs := mat.NewVecDense(k+m, nil)
		for r, i := range freeIdx {
			var g float64
			if qp.c != nil {
				g = qp.c[i]
			}
			for j := 0; j < n; j++ {
				if fixed[j] {
					g += qp.H.At(i, j) * out[j]
				}
			}
			rhs.SetVec(r, -g)
			for col, j := range freeIdx {
				kkt.Set(r, col, qp.H.At(i, j))
			}
			for e := 0; e < m; e++ {
				kkt.Set(r, k+e, qp.A.At(e, i))
				kkt.Set(k+e, r, qp.A.At(e, i))
			}
		}
		for e := 0; e < m; e++ {
			v := qp.b[e]
			for j := 0; j < n; j++ {
				if fixed[j] {
					v -= qp.A.At(e, j) * out[j]
				}
			}
			rhs.SetVec(k+e, v)
		}

		var svd mat.SVD
		if !svd.Factorize(kkt, mat.SVDThin) {
			return w
		}
		rank := svd.Rank(polishRcond)
		if rank == 0 {
			return w
		}
		var x mat.VecDense
		svd.SolveVecTo(&x, rhs, rank)
		for r, i := range freeIdx {
			out[i] = x.AtVec(r)
		}
	}

	if !qp.feasible(out) {
		return w
	}
	f := qp.objective(w)
	if qp.objective(out) > f+1e-12*math.Max(1, math.Abs(f)) {
		return w
	}
	qp.clamp(out)
	return out
}

// feasible reports whether w satisfies the box and the equalities up to rounding
func (qp *qpProblem) feasible(w []float64) bool {
	const slack = 1e-12
	for _, v := range w {
		if math.IsNaN(v) || v < qp.lo-slack || v > qp.hi+slack {
			return false
		}
	}
	var aw mat.VecDense
	aw.MulVec(qp.A, mat.NewVecDense(len(w), w))
	for e, target := range qp.b {
		if math.Abs(aw.AtVec(e)-target) > 1e-11*math.Max(1, math.Abs(target)) {
			return false
		}
	}
	return true
}

func (qp *qpProblem) objective(w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	f := 0.5 * mat.Inner(v, qp.H, v)
	if qp.c != nil {
		f += floats.Dot(qp.c, w)
	}
	return f
}

func (qp *qpProblem) clamp(w []float64) {
	for i := range w {
		w[i] = math.Min(qp.hi, math.Max(qp.lo, w[i]))
	}
}

// pinned returns the only allocation of budget over k weights in [lo, hi]
// when the box leaves no room to move
func pinned(k int, budget, lo, hi float64) ([]float64, bool) {
	const slack = 1e-12
	if budget > float64(k)*lo+slack && budget < float64(k)*hi-slack {
		return nil, false
	}
	w := make([]float64, k)
	for i := range w {
		w[i] = budget / float64(k)
	}
	return w, true
}

func finite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
