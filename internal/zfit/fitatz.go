package zfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"grismfit/internal/beam"
	"grismfit/internal/lsq"
	"grismfit/internal/spectra"
)

// ZFit is the output of a single-redshift template fit.
type ZFit struct {
	Z    float64 `json:"z"`
	Chi2 float64 `json:"chi2"`
	DoF  int     `json:"dof"`

	// Coeffs always has length N_background + N_templates, with the
	// conditioning constant removed. CoeffsErr and Covar are populated when
	// uncertainties were requested.
	Coeffs    []float64      `json:"coeffs"`
	CoeffsErr []float64      `json:"coeffs_err,omitempty"`
	Covar     lsq.Covariance `json:"covar"`

	// Background and Model are evaluated at the masked positions;
	// Background is zero on the photometric tail. PhotModel holds the
	// model's photometric predictions.
	Background []float64 `json:"-"`
	Model      []float64 `json:"-"`
	PhotModel  []float64 `json:"phot_model,omitempty"`
}

// design is the per-call fitting context: the noise-weighted design matrix
// over masked positions plus everything needed to undo the conditioning.
// Rows are masked positions (spectral first, then the photometric tail),
// columns are background parameters followed by template parameters.
type design struct {
	z     float64
	nbg   int
	ntemp int
	nmask int

	midx []int // masked row -> index into the full concatenated arrays
	expo []int // masked row -> exposure index, -1 on the photometric tail

	a      *mat.Dense
	data   []float64
	scif   []float64
	sivar  []float64
	weight []float64
	wave   []float64

	pedestal float64
	okcol    []bool
	kept     []int
}

func (d *design) ncoef() int { return d.nbg + d.ntemp }

// FitAtZ builds the design matrix at redshift z and solves for the template
// coefficients. The group's pscale coefficients, when set, rescale the
// spectral template columns.
func (e *Engine) FitAtZ(z float64, templates *spectra.Set, opts FitOptions) (*ZFit, error) {
	d, err := e.buildDesign(z, templates, opts, e.group.PScale())
	if err != nil {
		return nil, err
	}
	return e.solveDesign(d, templates, opts)
}

func (e *Engine) buildDesign(z float64, templates *spectra.Set, opts FitOptions, pscale []float64) (*design, error) {
	g := e.group
	ntemp := templates.Len()
	nbg := 0
	if opts.FitBackground {
		nbg = g.N
	}
	ncoef := nbg + ntemp
	if ncoef == 0 {
		return nil, fmt.Errorf("fit at z=%.4f: no parameters to fit", z)
	}
	switch opts.Fitter {
	case FitterNNLS, FitterLstsq, FitterBVLS:
	default:
		return nil, fmt.Errorf("fit at z=%.4f: unknown fitter %q", z, opts.Fitter)
	}

	pedestal := 0.0
	if opts.FitBackground && (opts.Fitter == FitterNNLS || opts.Fitter == FitterLstsq) {
		pedestal = pedestalOffset
	}

	d := &design{
		z:        z,
		nbg:      nbg,
		ntemp:    ntemp,
		nmask:    g.Nmask,
		midx:     make([]int, 0, g.Nmask),
		expo:     make([]int, 0, g.Nmask),
		pedestal: pedestal,
	}
	for i := 0; i < g.N; i++ {
		s0, s1 := g.Slice(i)
		for p := s0; p < s1; p++ {
			if g.FitMask[p] {
				d.midx = append(d.midx, p)
				d.expo = append(d.expo, i)
			}
		}
	}
	specLen := len(g.Scif) - g.NphotTail
	for p := specLen; p < len(g.Scif); p++ {
		if g.FitMask[p] {
			d.midx = append(d.midx, p)
			d.expo = append(d.expo, -1)
		}
	}
	if len(d.midx) != d.nmask {
		return nil, fmt.Errorf("fit at z=%.4f: mask bookkeeping: %d positions, want %d", z, len(d.midx), d.nmask)
	}

	d.data = make([]float64, d.nmask)
	d.scif = make([]float64, d.nmask)
	d.sivar = make([]float64, d.nmask)
	d.weight = make([]float64, d.nmask)
	d.wave = make([]float64, d.nmask)
	for r, p := range d.midx {
		d.scif[r] = g.Scif[p]
		d.sivar[r] = g.Sivarf[p]
		d.weight[r] = g.Weightf[p]
		d.wave[r] = g.Wavef[p]
		offset := 0.0
		if g.IsSpec[p] {
			offset = pedestal
		}
		d.data[r] = (g.Scif[p] + offset) * g.Sivarf[p]
	}

	// Flux-rescale applied to spectral template columns only; background
	// columns stay in native units and the photometric block is pinned to 1.
	var scale []float64
	if len(pscale) > 0 {
		scale = beam.ComputeScaleArray(pscale, d.wave)
		for r := range scale {
			if d.expo[r] < 0 {
				scale[r] = 1
			}
		}
	}

	d.a = mat.NewDense(d.nmask, ncoef, nil)
	rawSum := make([]float64, ncoef)

	if opts.FitBackground {
		for r := 0; r < d.nmask; r++ {
			if i := d.expo[r]; i >= 0 {
				d.a.Set(r, i, d.sivar[r])
				rawSum[i]++
			}
		}
	}

	// Photometric template responses, fast path through the precomputed
	// template-filter grid when its template count matches.
	var gridVals [][]float64
	if g.Nphot > 0 && g.Phot.Grid != nil && g.Phot.Grid.NTemp == ntemp {
		gridVals = g.Phot.Grid.At(z)
	}

	for k := 0; k < ntemp; k++ {
		tz := templates.At(k).Redshift(z, e.igm)
		col := nbg + k
		tlo, thi := tz.Wave[0], tz.Wave[len(tz.Wave)-1]

		for i, exp := range g.Exposures {
			if !g.HasMasked(i) {
				continue
			}
			lo, hi := g.WaveRange(i)
			if thi < lo || tlo > hi {
				continue
			}
			m := exp.Modeler.ModelSpectrum(tz.Wave, tz.Flux)
			s0, _ := g.Slice(i)
			m0, m1 := g.MaskedSlice(i)
			for r := m0; r < m1; r++ {
				v := m[d.midx[r]-s0]
				if v == 0 {
					continue
				}
				rawSum[col] += v
				if scale != nil {
					v *= scale[r]
				}
				d.a.Set(r, col, v*coeffScale*d.sivar[r])
			}
		}

		if g.Nphot > 0 {
			for r := g.SpecMask(); r < d.nmask; r++ {
				fi := d.midx[r] - specLen
				filt := g.Phot.Filters[fi]
				pivot := filt.Pivot()
				var v float64
				if gridVals != nil {
					v = gridVals[k][fi] * (1 + z) * 3e18 / (pivot * pivot)
				} else {
					v = filt.MeanFlux(tz.Wave, tz.Flux) * 3e18 / (pivot * pivot)
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					v = 0
				}
				if v == 0 {
					continue
				}
				rawSum[col] += v
				d.a.Set(r, col, v*coeffScale*d.sivar[r])
			}
		}
	}

	d.okcol = make([]bool, ncoef)
	for c, s := range rawSum {
		if s != 0 {
			d.okcol[c] = true
			d.kept = append(d.kept, c)
		}
	}
	if len(d.kept) == 0 {
		return nil, fmt.Errorf("fit at z=%.4f: %w", z, ErrDegenerateFit)
	}
	if !d.anyFinite() {
		return nil, fmt.Errorf("fit at z=%.4f: %w", z, ErrDegenerateFit)
	}
	return d, nil
}

// anyFinite reports whether the design has at least one finite nonzero entry.
func (d *design) anyFinite() bool {
	for _, c := range d.kept {
		for r := 0; r < d.nmask; r++ {
			v := d.a.At(r, c)
			if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// reduced assembles the kept columns into the solver's matrix.
func (d *design) reduced() *mat.Dense {
	out := mat.NewDense(d.nmask, len(d.kept), nil)
	for j, c := range d.kept {
		for r := 0; r < d.nmask; r++ {
			out.Set(r, j, d.a.At(r, c))
		}
	}
	return out
}

func (e *Engine) solveDesign(d *design, templates *spectra.Set, opts FitOptions) (*ZFit, error) {
	reduced := d.reduced()

	var cRed []float64
	var err error
	switch opts.Fitter {
	case FitterLstsq:
		cRed, err = lsq.LeastSquares(reduced, d.data)
	case FitterNNLS:
		cRed, err = lsq.NNLS(reduced, d.data)
	case FitterBVLS:
		lower := make([]float64, len(d.kept))
		upper := make([]float64, len(d.kept))
		for j, c := range d.kept {
			switch {
			case c < d.nbg:
				lower[j], upper[j] = -0.05, 0.05
			case templates.At(c-d.nbg).IsLine():
				lower[j], upper[j] = math.Inf(-1), math.Inf(1)
			default:
				lower[j], upper[j] = 0, math.Inf(1)
			}
		}
		cRed, err = lsq.BVLS(reduced, d.data, lower, upper)
	}
	if err != nil {
		return nil, fmt.Errorf("fit at z=%.4f: %s: %w", d.z, opts.Fitter, err)
	}

	ncoef := d.ncoef()
	cScaled := make([]float64, ncoef)
	for j, c := range d.kept {
		cScaled[c] = cRed[j]
	}

	background := make([]float64, d.nmask)
	model := make([]float64, d.nmask)
	for r := 0; r < d.nmask; r++ {
		if d.expo[r] >= 0 {
			if d.nbg > 0 {
				background[r] = cScaled[d.expo[r]]
			}
			background[r] -= d.pedestal
		}
		var m float64
		for k := 0; k < d.ntemp; k++ {
			m += cScaled[d.nbg+k] * d.a.At(r, d.nbg+k)
		}
		model[r] = m / d.sivar[r]
	}

	var chi2 float64
	for r := 0; r < d.nmask; r++ {
		resid := d.scif[r] - model[r] - background[r]
		chi2 += resid * resid * d.sivar[r] * d.sivar[r] * d.weight[r]
	}
	if math.IsNaN(chi2) || math.IsInf(chi2, 0) {
		return nil, fmt.Errorf("fit at z=%.4f: non-finite chi2: %w", d.z, ErrDegenerateFit)
	}

	out := &ZFit{
		Z:          d.z,
		Chi2:       chi2,
		DoF:        e.group.DoF,
		Coeffs:     make([]float64, ncoef),
		Background: background,
		Model:      model,
	}
	for i := 0; i < d.nbg; i++ {
		if d.okcol[i] {
			out.Coeffs[i] = cScaled[i] - d.pedestal
		}
	}
	for k := 0; k < d.ntemp; k++ {
		out.Coeffs[d.nbg+k] = cScaled[d.nbg+k] * coeffScale
	}
	if e.group.Nphot > 0 {
		out.PhotModel = append([]float64(nil), model[e.group.SpecMask():]...)
	}

	if opts.Uncertainties > 0 {
		cov := lsq.GramCovariance(reduced)
		if opts.Uncertainties >= 2 {
			nonzero := make([]bool, len(d.kept))
			nnz := 0
			for j := range cRed {
				if cRed[j] != 0 {
					nonzero[j] = true
					nnz++
				}
			}
			if nnz > 0 {
				sub := mat.NewDense(d.nmask, nnz, nil)
				jj := 0
				for j := range d.kept {
					if !nonzero[j] {
						continue
					}
					for r := 0; r < d.nmask; r++ {
						sub.Set(r, jj, reduced.At(r, j))
					}
					jj++
				}
				cov = lsq.ExpandCovariance(lsq.GramCovariance(sub), nonzero)
			}
		}
		full := lsq.ExpandCovariance(cov, d.okcol)

		// Undo the conditioning: scale template rows and columns.
		for i := 0; i < ncoef; i++ {
			for j := 0; j < ncoef; j++ {
				s := 1.0
				if i >= d.nbg {
					s *= coeffScale
				}
				if j >= d.nbg {
					s *= coeffScale
				}
				full.Matrix[i][j] *= s
			}
		}
		out.Covar = full
		out.CoeffsErr = make([]float64, ncoef)
		for i := 0; i < ncoef; i++ {
			if v := full.Matrix[i][i]; v > 0 {
				out.CoeffsErr[i] = math.Sqrt(v)
			}
		}
	}
	return out, nil
}

// scaledChi2 re-solves the design with a trial flux-rescale applied to the
// template columns and returns the weighted chi-squared of the nnls solution.
// Used by the photometric scaling objective; the design must have been built
// without pscale.
func (d *design) scaledChi2(pscale []float64) float64 {
	scale := beam.ComputeScaleArray(pscale, d.wave)
	for r := range scale {
		if d.expo[r] < 0 {
			scale[r] = 1
		}
	}

	a := mat.NewDense(d.nmask, len(d.kept), nil)
	for j, c := range d.kept {
		for r := 0; r < d.nmask; r++ {
			v := d.a.At(r, c)
			if c >= d.nbg {
				v *= scale[r]
			}
			a.Set(r, j, v)
		}
	}

	coeffs, err := lsq.NNLS(a, d.data)
	if err != nil {
		return math.Inf(1)
	}
	resid := lsq.Residual(a, coeffs, d.data)
	var chi2 float64
	for r, v := range resid {
		chi2 += v * v * d.weight[r]
	}
	if math.IsNaN(chi2) {
		return math.Inf(1)
	}
	return chi2
}
