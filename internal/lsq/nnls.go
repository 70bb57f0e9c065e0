package lsq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NNLS solves min ||A*x - b||_2 subject to x >= 0 using the Lawson-Hanson
// active-set algorithm:
//
//  1. Start with every coefficient clamped at zero.
//  2. Move the coefficient with the largest positive gradient into the
//     passive (free) set and solve the unconstrained subproblem over it.
//  3. If the subproblem solution goes negative, step only as far as the
//     first coefficient to hit zero and clamp it again.
//  4. Stop when no clamped coefficient has a positive gradient.
func NNLS(a *mat.Dense, b []float64) ([]float64, error) {
	m, n := a.Dims()
	if len(b) != m {
		return nil, fmt.Errorf("nnls: %d rows but %d data points", m, len(b))
	}

	x := make([]float64, n)
	passive := make([]bool, n)
	tol := 10 * eps * norm1(a) * float64(maxInt(m, n))

	maxIter := 3 * n
	if maxIter < 30 {
		maxIter = 30
	}

	for iter := 0; iter < maxIter; iter++ {
		w := gradient(a, x, b)

		// Most negative-gradient direction among clamped coefficients.
		j := -1
		wmax := tol
		for k := 0; k < n; k++ {
			if !passive[k] && w[k] > wmax {
				wmax = w[k]
				j = k
			}
		}
		if j < 0 {
			return x, nil
		}
		passive[j] = true

		// Inner loop: restore feasibility of the passive set.
		for inner := 0; inner < maxIter; inner++ {
			cols := passiveCols(passive)
			z, err := solve(subColumns(a, cols), b)
			if err != nil {
				return nil, fmt.Errorf("nnls: subproblem: %w", err)
			}

			if minOf(z) > 0 {
				setFromCols(x, cols, z)
				break
			}

			// Step toward z until the first passive coefficient hits zero.
			alpha := 1.0
			for k, jj := range cols {
				if z[k] <= 0 {
					t := x[jj] / (x[jj] - z[k])
					if t < alpha {
						alpha = t
					}
				}
			}
			for k, jj := range cols {
				x[jj] += alpha * (z[k] - x[jj])
			}
			for k, jj := range cols {
				if z[k] <= 0 && x[jj] <= tol {
					x[jj] = 0
					passive[jj] = false
				}
			}
		}
	}
	return nil, fmt.Errorf("nnls: failed to converge after %d iterations", maxIter)
}

func passiveCols(passive []bool) []int {
	var cols []int
	for j, p := range passive {
		if p {
			cols = append(cols, j)
		}
	}
	return cols
}

func setFromCols(x []float64, cols []int, z []float64) {
	for i := range x {
		x[i] = 0
	}
	for k, j := range cols {
		x[j] = z[k]
	}
}

func minOf(z []float64) float64 {
	m := z[0]
	for _, v := range z[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
