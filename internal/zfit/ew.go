package zfit

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"grismfit/internal/spectra"
)

const ewDraws = 1000

// EquivalentWidths estimates rest-frame equivalent widths for every fitted
// emission line by sampling template coefficients from the fit covariance.
// Each draw divides the line flux by the summed continuum density at the
// line's rest wavelength. Keys are line template names; values are the
// 16th, 50th and 84th percentiles in Angstroms. A degenerate covariance
// yields an empty map.
func (e *Engine) EquivalentWidths(tfit *TemplateFit, draws int) (map[string][3]float64, error) {
	out := make(map[string][3]float64)
	if tfit == nil || tfit.Fit == nil || tfit.templates == nil {
		return out, nil
	}
	if tfit.Covar.Degenerate || len(tfit.Covar.Matrix) == 0 {
		return out, nil
	}
	if draws <= 0 {
		draws = ewDraws
	}

	set := tfit.templates
	ntemp := set.Len()
	nbg := tfit.nbg

	// Template-block mean and covariance in physical units.
	mu := make([]float64, ntemp)
	copy(mu, tfit.Fit.Coeffs[nbg:nbg+ntemp])

	// Only parameters with positive variance enter the multivariate
	// normal; the rest stay pinned at their fitted values.
	var free []int
	for i := 0; i < ntemp; i++ {
		if tfit.Covar.Matrix[nbg+i][nbg+i] > 0 {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return out, nil
	}

	nf := len(free)
	sym := mat.NewSymDense(nf, nil)
	var trace float64
	for a := 0; a < nf; a++ {
		trace += tfit.Covar.Matrix[nbg+free[a]][nbg+free[a]]
	}
	ridge := 1e-10 * trace / float64(nf)
	for a := 0; a < nf; a++ {
		for b := a; b < nf; b++ {
			v := tfit.Covar.Matrix[nbg+free[a]][nbg+free[b]]
			if a == b {
				v += ridge
			}
			sym.SetSym(a, b, v)
		}
	}

	muFree := make([]float64, nf)
	for a, i := range free {
		muFree[a] = mu[i]
	}
	normal, ok := distmv.NewNormal(muFree, sym, rand.NewSource(1))
	if !ok {
		return out, nil
	}

	// Rest-frame continuum density at each line center, per unit
	// continuum coefficient.
	type lineInfo struct {
		idx      int
		name     string
		center   float64
		area     float64
		contribs []float64
	}
	var lines []lineInfo
	var contIdx []int
	for i := 0; i < ntemp; i++ {
		if !set.At(i).IsLine() {
			contIdx = append(contIdx, i)
		}
	}
	for i := 0; i < ntemp; i++ {
		t := set.At(i)
		if !t.IsLine() {
			continue
		}
		if mu[i] == 0 && tfit.Covar.Matrix[nbg+i][nbg+i] <= 0 {
			continue
		}
		center := fluxCentroid(t)
		contribs := make([]float64, len(contIdx))
		for a, j := range contIdx {
			ct := set.At(j)
			contribs[a] = spectra.Interp([]float64{center}, ct.Wave, ct.Flux)[0]
		}
		lines = append(lines, lineInfo{idx: i, name: t.Name, center: center, area: t.Integral(), contribs: contribs})
	}
	if len(lines) == 0 {
		return out, nil
	}

	samples := make([][]float64, len(lines))
	x := make([]float64, nf)
	cur := make([]float64, ntemp)
	for d := 0; d < draws; d++ {
		normal.Rand(x)
		copy(cur, mu)
		for a, i := range free {
			cur[i] = x[a]
		}
		for li, line := range lines {
			var cont float64
			for a, j := range contIdx {
				cont += cur[j] * line.contribs[a]
			}
			if cont == 0 {
				continue
			}
			ew := cur[line.idx] * line.area / cont
			if math.IsNaN(ew) || math.IsInf(ew, 0) {
				continue
			}
			samples[li] = append(samples[li], ew)
		}
	}

	for li, line := range lines {
		s := samples[li]
		if len(s) == 0 {
			continue
		}
		sort.Float64s(s)
		out[line.name] = [3]float64{
			percentile(s, 0.16),
			percentile(s, 0.50),
			percentile(s, 0.84),
		}
	}
	return out, nil
}

// fluxCentroid returns the flux-weighted mean wavelength, the line center
// for symmetric profiles.
func fluxCentroid(t *spectra.Template) float64 {
	var num, den float64
	for i := range t.Wave {
		num += t.Wave[i] * t.Flux[i]
		den += t.Flux[i]
	}
	if den == 0 {
		return t.Wave[len(t.Wave)/2]
	}
	return num / den
}

// percentile interpolates linearly between order statistics, matching the
// numpy default.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := q * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
