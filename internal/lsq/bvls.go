package lsq

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bound state of a coefficient during the BVLS active-set iteration.
const (
	atLower = -1
	free    = 0
	atUpper = 1
)

// BVLS solves min ||A*x - b||_2 subject to lower <= x <= upper with a primal
// active-set method. Infinite bounds are allowed. Coefficients start on
// their nearest finite bound (or free when unbounded on both sides); each
// iteration solves the unconstrained subproblem over the free set, steps to
// the first bound crossing, and releases the bound with the worst
// Karush-Kuhn-Tucker violation until none remains.
func BVLS(a *mat.Dense, b, lower, upper []float64) ([]float64, error) {
	m, n := a.Dims()
	if len(b) != m {
		return nil, fmt.Errorf("bvls: %d rows but %d data points", m, len(b))
	}
	if len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("bvls: bounds length %d/%d, want %d", len(lower), len(upper), n)
	}
	for j := 0; j < n; j++ {
		if lower[j] > upper[j] {
			return nil, fmt.Errorf("bvls: lower[%d]=%g exceeds upper[%d]=%g", j, lower[j], j, upper[j])
		}
	}

	x := make([]float64, n)
	state := make([]int, n)
	for j := 0; j < n; j++ {
		switch {
		case !math.IsInf(lower[j], -1):
			x[j] = lower[j]
			state[j] = atLower
		case !math.IsInf(upper[j], 1):
			x[j] = upper[j]
			state[j] = atUpper
		default:
			x[j] = 0
			state[j] = free
		}
	}

	tol := 10 * eps * norm1(a) * float64(maxInt(m, n))
	maxIter := 10*n + 100

	for iter := 0; iter < maxIter; iter++ {
		moved, err := bvlsFreeStep(a, b, x, state, lower, upper)
		if err != nil {
			return nil, err
		}
		if moved {
			continue
		}

		// Free set is optimal; check the bound KKT conditions.
		w := gradient(a, x, b)
		worst := -1
		worstViol := tol
		for j := 0; j < n; j++ {
			var viol float64
			switch state[j] {
			case atLower:
				viol = w[j] // want to grow: positive gradient violates
			case atUpper:
				viol = -w[j]
			default:
				continue
			}
			if viol > worstViol {
				worstViol = viol
				worst = j
			}
		}
		if worst < 0 {
			return x, nil
		}
		state[worst] = free
	}
	return nil, fmt.Errorf("bvls: failed to converge after %d iterations", maxIter)
}

// bvlsFreeStep solves the unconstrained subproblem over the free
// coefficients with the bound ones fixed, then either accepts the solution
// (in bounds) or steps to the first bound crossing and clamps that
// coefficient. It reports whether any coefficient changed state.
func bvlsFreeStep(a *mat.Dense, b []float64, x []float64, state []int, lower, upper []float64) (bool, error) {
	m, n := a.Dims()

	var cols []int
	for j := 0; j < n; j++ {
		if state[j] == free {
			cols = append(cols, j)
		}
	}
	if len(cols) == 0 {
		return false, nil
	}

	// Right-hand side with the bound contribution removed.
	rhs := make([]float64, m)
	copy(rhs, b)
	for j := 0; j < n; j++ {
		if state[j] != free && x[j] != 0 {
			for i := 0; i < m; i++ {
				rhs[i] -= a.At(i, j) * x[j]
			}
		}
	}

	z, err := solve(subColumns(a, cols), rhs)
	if err != nil {
		return false, fmt.Errorf("bvls: subproblem: %w", err)
	}

	// Step fraction to the first bound crossing.
	alpha := 1.0
	crossing := -1
	crossState := free
	for k, j := range cols {
		d := z[k] - x[j]
		if d == 0 {
			continue
		}
		var t float64
		var s int
		if z[k] < lower[j] {
			t = (lower[j] - x[j]) / d
			s = atLower
		} else if z[k] > upper[j] {
			t = (upper[j] - x[j]) / d
			s = atUpper
		} else {
			continue
		}
		if t < alpha {
			alpha = t
			crossing = j
			crossState = s
		}
	}

	if crossing < 0 {
		// In-bounds optimum over the free set; a repeat solve would be a
		// fixed point, so hand control back to the KKT check.
		for k, j := range cols {
			x[j] = z[k]
		}
		return false, nil
	}

	for k, j := range cols {
		x[j] += alpha * (z[k] - x[j])
	}
	if crossState == atLower {
		x[crossing] = lower[crossing]
	} else {
		x[crossing] = upper[crossing]
	}
	state[crossing] = crossState
	return true, nil
}
