package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-engine/internal/domain"
)

const (
	// psdTolerance is how far below zero, relative to the largest
	// eigenvalue, the smallest eigenvalue may fall before Σ is rejected.
	psdTolerance = 1e-10
	// nullTolerance marks eigenvalues at or below λmax·N·nullTolerance as
	// exact degeneracies (collinear assets) rather than near-singularities.
	nullTolerance = 1e-14
)

// Diagnostics describes the spectrum of a covariance matrix
type Diagnostics struct {
	MinEigenvalue float64
	MaxEigenvalue float64
	Rank          int     // Eigenvalues above the null tolerance
	Condition     float64 // λmax over the smallest non-null eigenvalue, 1 for a zero matrix
}

// Degenerate reports whether Σ has exact null directions. The solver
// resolves them toward equal weights.
func (d Diagnostics) Degenerate(n int) bool {
	return d.Rank < n
}

// Diagnose checks that sigma is finite and positive semi-definite and
// measures its conditioning. Exactly singular directions are tolerated;
// a spectrum whose non-null part spans more than maxCondition is an
// IllConditionedCovarianceError.
func Diagnose(sigma mat.Symmetric, maxCondition float64) (Diagnostics, error) {
	n := sigma.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := sigma.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Diagnostics{}, &domain.IllConditionedCovarianceError{
					Condition: math.Inf(1),
					Threshold: maxCondition,
					Reason:    "covariance has non-finite entries",
				}
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sigma, false) {
		return Diagnostics{}, &domain.IllConditionedCovarianceError{
			Condition: math.Inf(1),
			Threshold: maxCondition,
			Reason:    "eigen decomposition failed",
		}
	}
	values := eig.Values(nil) // ascending

	d := Diagnostics{
		MinEigenvalue: values[0],
		MaxEigenvalue: values[n-1],
		Condition:     1,
	}

	scale := math.Max(math.Abs(d.MinEigenvalue), math.Abs(d.MaxEigenvalue))
	if scale == 0 {
		return d, nil
	}
	if d.MinEigenvalue < -psdTolerance*scale {
		return d, &domain.IllConditionedCovarianceError{
			Condition:     math.Inf(1),
			Threshold:     maxCondition,
			MinEigenvalue: d.MinEigenvalue,
			Reason:        "covariance is not positive semi-definite",
		}
	}

	null := d.MaxEigenvalue * float64(n) * nullTolerance
	smallest := d.MaxEigenvalue
	for _, v := range values {
		if v > null {
			d.Rank++
			if v < smallest {
				smallest = v
			}
		}
	}
	d.Condition = d.MaxEigenvalue / smallest

	if d.Condition > maxCondition {
		return d, &domain.IllConditionedCovarianceError{
			Condition:     d.Condition,
			Threshold:     maxCondition,
			MinEigenvalue: d.MinEigenvalue,
			Reason:        "condition number exceeds threshold",
		}
	}
	return d, nil
}

// normalized returns Σ/s with s = trace(Σ)/N, so the average variance is 1.
// All objectives used here are invariant to a positive rescaling of Σ.
func normalized(sigma mat.Symmetric) *mat.SymDense {
	n := sigma.SymmetricDim()
	var trace float64
	for i := 0; i < n; i++ {
		trace += sigma.At(i, i)
	}
	s := trace / float64(n)
	if s <= 0 {
		s = 1
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, sigma.At(i, j)/s)
		}
	}
	return out
}

// SymFromRows builds a symmetric matrix from row slices, averaging the
// two triangles.
func SymFromRows(rows [][]float64) *mat.SymDense {
	n := len(rows)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (rows[i][j]+rows[j][i])/2)
		}
	}
	return out
}
