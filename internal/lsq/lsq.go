// Package lsq provides the constrained linear solvers used by the template
// fitter: plain least squares, non-negative least squares (Lawson-Hanson),
// and bounded-variable least squares, plus Gram-matrix covariance with an
// explicit degenerate tag.
//
// All solvers take the design matrix in standard orientation: one row per
// observation, one column per parameter.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const eps = 2.220446049250313e-16

// LeastSquares solves min ||A*x - b||_2 with no constraints via QR
// factorization. Rank-deficient systems fall back to a ridge-stabilized
// normal-equation solve so that duplicate columns still yield a usable
// (non-unique) solution instead of an error.
func LeastSquares(a *mat.Dense, b []float64) ([]float64, error) {
	m, _ := a.Dims()
	if len(b) != m {
		return nil, fmt.Errorf("lsq: %d rows but %d data points", m, len(b))
	}
	return solve(a, b)
}

// solve runs the QR path and falls back to a ridge solve when the matrix is
// rank deficient or the triangular solve overflows.
func solve(a *mat.Dense, b []float64) ([]float64, error) {
	m, n := a.Dims()
	if m < n {
		return nil, fmt.Errorf("lsq: underdetermined system (%d rows, %d columns)", m, n)
	}

	bv := mat.NewVecDense(m, nil)
	for i, v := range b {
		bv.SetVec(i, v)
	}

	var qr mat.QR
	qr.Factorize(a)

	var x mat.VecDense
	err := qr.SolveVecTo(&x, false, bv)
	if err == nil && vecFinite(&x) {
		return vecSlice(&x), nil
	}
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return nil, fmt.Errorf("lsq: qr solve: %w", err)
	}

	return ridgeSolve(a, bv)
}

// ridgeSolve solves the normal equations with a small Tikhonov term scaled
// to the Gram diagonal. The fitted values match the unregularized optimum to
// working precision while keeping degenerate column combinations finite.
func ridgeSolve(a *mat.Dense, bv *mat.VecDense) ([]float64, error) {
	_, n := a.Dims()

	var gram mat.Dense
	gram.Mul(a.T(), a)

	var trace float64
	for i := 0; i < n; i++ {
		trace += gram.At(i, i)
	}
	lambda := 1e-10 * trace / float64(n)
	if lambda <= 0 || math.IsNaN(lambda) {
		lambda = 1e-12
	}
	for i := 0; i < n; i++ {
		gram.Set(i, i, gram.At(i, i)+lambda)
	}

	var atb mat.VecDense
	atb.MulVec(a.T(), bv)

	var x mat.VecDense
	if err := x.SolveVec(&gram, &atb); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || !vecFinite(&x) {
			return nil, fmt.Errorf("lsq: degenerate system: %w", err)
		}
	}
	if !vecFinite(&x) {
		return nil, errors.New("lsq: degenerate system: non-finite solution")
	}
	return vecSlice(&x), nil
}

// Residual returns b - A*x.
func Residual(a *mat.Dense, x, b []float64) []float64 {
	m, n := a.Dims()
	out := make([]float64, m)
	for i := 0; i < m; i++ {
		s := b[i]
		for j := 0; j < n; j++ {
			s -= a.At(i, j) * x[j]
		}
		out[i] = s
	}
	return out
}

// gradient returns Aᵀ*(b - A*x), the negative objective gradient.
func gradient(a *mat.Dense, x, b []float64) []float64 {
	m, n := a.Dims()
	r := Residual(a, x, b)
	out := make([]float64, n)
	for j := 0; j < n; j++ {
		var s float64
		for i := 0; i < m; i++ {
			s += a.At(i, j) * r[i]
		}
		out[j] = s
	}
	return out
}

// subColumns extracts the given columns into a fresh matrix.
func subColumns(a *mat.Dense, cols []int) *mat.Dense {
	m, _ := a.Dims()
	out := mat.NewDense(m, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < m; i++ {
			out.Set(i, k, a.At(i, j))
		}
	}
	return out
}

// norm1 returns the maximum absolute column sum.
func norm1(a *mat.Dense) float64 {
	m, n := a.Dims()
	var best float64
	for j := 0; j < n; j++ {
		var s float64
		for i := 0; i < m; i++ {
			s += math.Abs(a.At(i, j))
		}
		if s > best {
			best = s
		}
	}
	return best
}

func vecFinite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
