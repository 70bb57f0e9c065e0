package lsq

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Covariance is the coefficient covariance of a weighted linear fit.
// Degenerate marks a singular Gram matrix; the Matrix is then all zeros and
// the fit itself remains valid.
type Covariance struct {
	Matrix     [][]float64 `json:"matrix"`
	Degenerate bool        `json:"degenerate,omitempty"`
}

// GramCovariance computes inv(AᵀA) for the design matrix A. A Gram matrix
// that cannot be inverted to finite values yields a zero matrix tagged
// Degenerate rather than an error.
func GramCovariance(a *mat.Dense) Covariance {
	_, n := a.Dims()

	var gram mat.Dense
	gram.Mul(a.T(), a)

	var inv mat.Dense
	if err := inv.Inverse(&gram); err != nil {
		// An exactly singular Gram matrix reports an infinite condition
		// number and leaves no usable inverse. A finite condition number
		// means ill-conditioned but computed: keep it if finite.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return zeroCovariance(n)
		}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			v := inv.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return zeroCovariance(n)
			}
			out[i][j] = v
		}
	}
	return Covariance{Matrix: out}
}

// ExpandCovariance re-inserts zero rows/columns for parameters that were
// dropped before the solve. keep[i] reports whether full parameter i was
// kept; the reduced matrix dimension must equal the number of kept entries.
func ExpandCovariance(reduced Covariance, keep []bool) Covariance {
	n := len(keep)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	if !reduced.Degenerate {
		ri := 0
		for i := 0; i < n; i++ {
			if !keep[i] {
				continue
			}
			rj := 0
			for j := 0; j < n; j++ {
				if !keep[j] {
					continue
				}
				out[i][j] = reduced.Matrix[ri][rj]
				rj++
			}
			ri++
		}
	}
	return Covariance{Matrix: out, Degenerate: reduced.Degenerate}
}

func zeroCovariance(n int) Covariance {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return Covariance{Matrix: out, Degenerate: true}
}
