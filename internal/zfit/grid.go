package zfit

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"grismfit/internal/lsq"
	"grismfit/internal/spectra"
	"grismfit/pkg/peaks"
)

// Prior is an external redshift prior as paired arrays, interpolated onto
// the fit grid before normalization.
type Prior struct {
	Z   []float64 `json:"z"`
	PDF []float64 `json:"pdf"`
}

// SearchParams configure a redshift grid search.
type SearchParams struct {
	// ZR is the redshift range. [0, 0] (or any range ending at or below
	// 0.01) selects the stellar zero-redshift mode: nnls forced, no zoom.
	ZR [2]float64
	// DZ holds the coarse and fine grid steps in dz/(1+z) units.
	DZ [2]float64

	Fitter        string
	FitBackground bool
	PolyOrder     int
	Zoom          bool
	Verbose       bool
	Prior         *Prior
}

// DefaultSearchParams mirror the common extragalactic search setup.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		ZR:            [2]float64{0.65, 1.6},
		DZ:            [2]float64{0.005, 0.0004},
		Fitter:        FitterNNLS,
		FitBackground: true,
		PolyOrder:     3,
		Zoom:          true,
		Verbose:       true,
	}
}

// LogZGrid builds a logarithmically spaced redshift grid over zr with step
// dz in dz/(1+z) units, start inclusive and stop exclusive.
func LogZGrid(zr [2]float64, dz float64) []float64 {
	start := math.Log(1 + zr[0])
	stop := math.Log(1 + zr[1])
	var out []float64
	for i := 0; ; i++ {
		v := start + float64(i)*dz
		if v >= stop {
			break
		}
		out = append(out, math.Exp(v)-1)
	}
	return out
}

// zoomGrid is the dense linear grid around a refined peak location.
func zoomGrid(zi, dzCoarse, dzFine float64) []float64 {
	start := zi - 2*dzCoarse
	stop := zi + 2*dzCoarse + dzFine/10
	var out []float64
	for i := 0; ; i++ {
		v := start + float64(i)*dzFine
		if v >= stop {
			break
		}
		out = append(out, v)
	}
	return out
}

// gridEval holds per-grid-point fit outputs, index-aligned with the grid.
type gridEval struct {
	chi2   []float64
	coeffs [][]float64
	covar  []lsq.Covariance
}

// FitRedshift runs the coarse-to-fine template grid search: polynomial
// anchor fit, coarse logarithmic grid, peak detection on the reversed
// chi-squared curve, dense zoom grids around each interior peak, merge, and
// posterior analysis.
func (e *Engine) FitRedshift(templates *spectra.Set, params SearchParams) (*Result, error) {
	if templates == nil || templates.Len() == 0 {
		return nil, fmt.Errorf("redshift fit: empty template set")
	}

	zr := params.ZR
	fitter := params.Fitter
	if fitter == "" {
		fitter = FitterNNLS
	}
	if zr[0] == 0 && zr[1] == 0 {
		zr[1] = 0.01
	}
	stars := zr[0] == 0 && zr[1] <= 0.01
	if stars {
		fitter = FitterNNLS
	}

	poly, err := e.FitAtZ(0, spectra.PolynomialTemplates(spectra.PolynomialWave(), params.PolyOrder),
		FitOptions{Fitter: FitterLstsq, FitBackground: true})
	if err != nil {
		return nil, fmt.Errorf("polynomial anchor: %w", err)
	}

	zgrid := LogZGrid(zr, params.DZ[0])
	if len(zgrid) == 0 {
		return nil, fmt.Errorf("redshift fit: empty grid for zr=[%g, %g] dz=%g", zr[0], zr[1], params.DZ[0])
	}
	e.log.Info("redshift search",
		zap.Float64("z0", zr[0]), zap.Float64("z1", zr[1]),
		zap.Int("points", len(zgrid)),
		zap.String("fitter", fitter), zap.Bool("stars", stars))

	opts := FitOptions{Fitter: fitter, FitBackground: params.FitBackground, Uncertainties: 2}
	ev, err := e.evalGrid(zgrid, templates, opts, "  ", params.Verbose)
	if err != nil {
		return nil, err
	}

	if !stars && params.Zoom && len(zgrid) > 2 {
		rev := reverseChi2(poly.Chi2, ev.chi2, e.group.DoF)
		peakIdx := peaks.Indexes(rev, 0.4, 8)
		var zoomPts []float64
		for _, ix := range peakIdx {
			if ix <= 0 || ix >= len(zgrid)-1 {
				continue
			}
			zi := peaks.ParabolaVertex(zgrid[ix-1], zgrid[ix], zgrid[ix+1],
				ev.chi2[ix-1], ev.chi2[ix], ev.chi2[ix+1])
			zoomPts = append(zoomPts, zoomGrid(zi, params.DZ[0], params.DZ[1])...)
		}
		e.log.Info("zoom", zap.Int("peaks", len(peakIdx)), zap.Int("points", len(zoomPts)))

		if len(zoomPts) > 0 {
			zev, err := e.evalGrid(zoomPts, templates, opts, "- ", params.Verbose)
			if err != nil {
				return nil, err
			}
			zgrid, ev = mergeGrids(zgrid, ev, zoomPts, zev)
		}
	}

	res := &Result{
		ZGrid:         zgrid,
		Chi2:          ev.chi2,
		Coeffs:        ev.coeffs,
		Covar:         ev.covar,
		NumExposures:  e.group.N,
		DoF:           e.group.DoF,
		Fitter:        fitter,
		PolyOrder:     params.PolyOrder,
		Chi2Poly:      poly.Chi2,
		Stars:         stars,
		NTemp:         templates.Len(),
		TemplateNames: templates.Names(),
		TemplateFWHM:  templateFWHMs(templates),
	}
	if err := Summarize(res, params.Prior); err != nil {
		return nil, err
	}

	izbest := minIndex(res.Chi2)
	nonzero := 0
	for _, c := range res.Coeffs[izbest] {
		if c != 0 {
			nonzero++
		}
	}
	logDoF := math.Log(float64(res.DoF))
	res.BICPoly = logDoF*float64(params.PolyOrder+1+e.group.N) + (poly.Chi2 - res.ChiMin)
	res.BICTemp = logDoF * float64(nonzero)

	e.log.Info("redshift fit done",
		zap.Float64("z_map", res.ZMAP), zap.Float64("z_risk", res.ZRisk),
		zap.Float64("chi2_min", res.ChiMin), zap.Float64("min_risk", res.MinRisk),
		zap.Int("grid", len(res.ZGrid)))
	return res, nil
}

// evalGrid fits every grid point, sequentially or with the configured worker
// pool. Results land at their grid index; the progress line is rewritten in
// place as points complete.
func (e *Engine) evalGrid(zgrid []float64, templates *spectra.Set, opts FitOptions, prefix string, verbose bool) (*gridEval, error) {
	n := len(zgrid)
	ev := &gridEval{
		chi2:   make([]float64, n),
		coeffs: make([][]float64, n),
		covar:  make([]lsq.Covariance, n),
	}

	var mu sync.Mutex
	done := 0
	best := math.Inf(1)
	zbest := 0.0
	report := func(z, chi2 float64) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if chi2 < best {
			best, zbest = chi2, z
		}
		if verbose {
			fmt.Fprintf(e.progress, "\r%s%.4f %9.1f (%.4f) %d/%d", prefix, z, chi2, zbest, done, n)
		}
	}

	fitOne := func(i int) error {
		zf, err := e.FitAtZ(zgrid[i], templates, opts)
		if err != nil {
			return err
		}
		ev.chi2[i] = zf.Chi2
		ev.coeffs[i] = zf.Coeffs
		ev.covar[i] = zf.Covar
		report(zgrid[i], zf.Chi2)
		return nil
	}

	if e.workers > 1 {
		// The group's lazy caches must be live before concurrent access.
		if err := e.group.InitExtraction(); err != nil {
			return nil, err
		}
		var grp errgroup.Group
		grp.SetLimit(e.workers)
		for i := range zgrid {
			i := i // per-iteration copy; required for correctness under go < 1.22 loop semantics
			grp.Go(func() error { return fitOne(i) })
		}
		if err := grp.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range zgrid {
			if err := fitOne(i); err != nil {
				return nil, err
			}
		}
	}
	if verbose {
		fmt.Fprintln(e.progress)
	}
	return ev, nil
}

// reverseChi2 turns the chi-squared curve into a non-negative peaked curve
// normalized by the degrees of freedom, with the shift source chosen by
// comparing the polynomial anchor against the grid minimum.
func reverseChi2(chi2Poly float64, chi2 []float64, dof int) []float64 {
	cmin := floats.Min(chi2)
	fdof := float64(dof)
	out := make([]float64, len(chi2))
	for i, c := range chi2 {
		var v float64
		switch {
		case chi2Poly > cmin+100:
			v = (cmin + 100 - c) / fdof
		case chi2Poly < cmin+9:
			v = (cmin + 16 - c) / fdof
		default:
			v = (chi2Poly - c) / fdof
		}
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	return out
}

// mergeGrids concatenates the coarse and zoom grids, sorts by redshift and
// drops duplicates, keeping the first occurrence. All per-point arrays stay
// index-aligned with the returned grid.
func mergeGrids(z1 []float64, e1 *gridEval, z2 []float64, e2 *gridEval) ([]float64, *gridEval) {
	n := len(z1) + len(z2)
	zAll := make([]float64, 0, n)
	zAll = append(zAll, z1...)
	zAll = append(zAll, z2...)

	at := func(i int) (float64, []float64, lsq.Covariance) {
		if i < len(z1) {
			return e1.chi2[i], e1.coeffs[i], e1.covar[i]
		}
		j := i - len(z1)
		return e2.chi2[j], e2.coeffs[j], e2.covar[j]
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return zAll[idx[a]] < zAll[idx[b]] })

	zs := make([]float64, 0, n)
	ev := &gridEval{
		chi2:   make([]float64, 0, n),
		coeffs: make([][]float64, 0, n),
		covar:  make([]lsq.Covariance, 0, n),
	}
	for _, i := range idx {
		if len(zs) > 0 && zAll[i] <= zs[len(zs)-1] {
			continue
		}
		c, co, cv := at(i)
		zs = append(zs, zAll[i])
		ev.chi2 = append(ev.chi2, c)
		ev.coeffs = append(ev.coeffs, co)
		ev.covar = append(ev.covar, cv)
	}
	return zs, ev
}

func templateFWHMs(set *spectra.Set) []float64 {
	out := make([]float64, set.Len())
	for i := range out {
		out[i] = set.At(i).FWHM
	}
	return out
}

func minIndex(v []float64) int {
	return argExtreme(v, true)
}

func maxIndex(v []float64) int {
	return argExtreme(v, false)
}

func argExtreme(v []float64, min bool) int {
	idx := 0
	for i, x := range v {
		if (min && x < v[idx]) || (!min && x > v[idx]) {
			idx = i
		}
	}
	return idx
}
