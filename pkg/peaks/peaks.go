// Package peaks provides 1D peak detection for sampled curves.
package peaks

import (
	"math"
	"sort"
)

// Indexes returns the indices of local maxima in y, in ascending order.
//
// A sample qualifies as a peak when it exceeds the detection threshold and
// the first-order difference changes sign from positive to negative across
// it. Flat plateau samples inherit the nearest non-zero difference on each
// side, so a plateau produces a single peak near its midpoint rather than
// none at all.
//
// thres is relative: the threshold is thres*(max(y)-min(y)) + min(y).
// minDist is the minimum index separation between reported peaks; when two
// candidates fall closer than minDist, the one with the larger y survives.
func Indexes(y []float64, thres float64, minDist int) []int {
	if len(y) < 3 {
		return nil
	}

	lo, hi := y[0], y[0]
	for _, v := range y[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	cut := thres*(hi-lo) + lo

	// First-order differences, with plateau gaps filled from the nearest
	// non-zero neighbor so strict sign tests still fire on flat tops.
	dy := make([]float64, len(y)-1)
	allZero := true
	for i := range dy {
		dy[i] = y[i+1] - y[i]
		if dy[i] != 0 {
			allZero = false
		}
	}
	if allZero {
		return nil
	}
	fillPlateaus(dy)

	var idx []int
	for i := 1; i < len(y)-1; i++ {
		if dy[i-1] > 0 && dy[i] < 0 && y[i] > cut {
			idx = append(idx, i)
		}
	}

	if len(idx) > 1 && minDist > 1 {
		idx = thin(y, idx, minDist)
	}
	return idx
}

// fillPlateaus replaces runs of zero differences. The left half of each run
// takes the value preceding the run, the right half the value following it.
// Runs touching either end of dy are filled entirely from the interior side.
func fillPlateaus(dy []float64) {
	n := len(dy)
	for i := 0; i < n; {
		if dy[i] != 0 {
			i++
			continue
		}
		j := i
		for j < n && dy[j] == 0 {
			j++
		}
		// Zero run covers [i, j).
		switch {
		case i == 0 && j == n:
			// Checked by the caller.
		case i == 0:
			for k := i; k < j; k++ {
				dy[k] = dy[j]
			}
		case j == n:
			for k := i; k < j; k++ {
				dy[k] = dy[i-1]
			}
		default:
			mid := i + (j-i)/2
			for k := i; k < mid; k++ {
				dy[k] = dy[i-1]
			}
			for k := mid; k < j; k++ {
				dy[k] = dy[j]
			}
		}
		i = j
	}
}

// thin enforces the minimum distance between peaks, keeping higher ones.
func thin(y []float64, idx []int, minDist int) []int {
	order := make([]int, len(idx))
	copy(order, idx)
	sort.Slice(order, func(a, b int) bool { return y[order[a]] > y[order[b]] })

	removed := make([]bool, len(y))
	isPeak := make([]bool, len(y))
	for _, p := range idx {
		isPeak[p] = true
	}
	for _, p := range order {
		if removed[p] {
			continue
		}
		lo := p - minDist
		if lo < 0 {
			lo = 0
		}
		hi := p + minDist
		if hi > len(y)-1 {
			hi = len(y) - 1
		}
		for k := lo; k <= hi; k++ {
			removed[k] = true
		}
		removed[p] = false
	}

	var out []int
	for i, peak := range isPeak {
		if peak && !removed[i] {
			out = append(out, i)
		}
	}
	return out
}

// ParabolaVertex fits y = c0*x^2 + c1*x + c2 through three samples at
// x = {x0, x1, x2} and returns the abscissa of the extremum, -c1/(2*c0).
// When the curvature is zero or non-finite it returns x1 unchanged.
func ParabolaVertex(x0, x1, x2, y0, y1, y2 float64) float64 {
	// Lagrange form of the quadratic through the three points.
	d0 := (x0 - x1) * (x0 - x2)
	d1 := (x1 - x0) * (x1 - x2)
	d2 := (x2 - x0) * (x2 - x1)
	if d0 == 0 || d1 == 0 || d2 == 0 {
		return x1
	}
	c0 := y0/d0 + y1/d1 + y2/d2
	c1 := -y0*(x1+x2)/d0 - y1*(x0+x2)/d1 - y2*(x0+x1)/d2
	if c0 == 0 || math.IsNaN(c0) || math.IsInf(c0, 0) || math.IsNaN(c1) || math.IsInf(c1, 0) {
		return x1
	}
	return -c1 / (2 * c0)
}
