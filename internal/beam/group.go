package beam

import (
	"fmt"
	"math"
	"sync"
)

// Group is an ordered collection of exposures (plus an optional photometric
// block) fit jointly. The concatenated arrays, slices and masks are computed
// once at construction and must be treated as read-only afterward; the only
// mutable attachment is the transient flux-rescaling coefficient set through
// SetPScale, which callers must not change while a fit is in flight.
type Group struct {
	Exposures []*Exposure

	// Concatenated flattened arrays across exposures, with the photometric
	// tail appended when photometry is attached. Scif is contamination
	// subtracted; Sivarf is sqrt(ivar) (1/sigma for photometric points).
	Scif    []float64
	Sivarf  []float64
	Weightf []float64
	Wavef   []float64
	FitMask []bool
	IsSpec  []bool

	Phot *Photometry

	// N is the number of exposures, Nmask the masked position count
	// including photometry, Nphot the masked photometric count, NphotTail
	// the full appended tail length, DoF the weighted degrees of freedom.
	N         int
	Nmask     int
	Nphot     int
	NphotTail int
	DoF       int

	slices  [][2]int
	mslices [][2]int

	// Per-exposure wavelength coverage of masked-in columns, used for the
	// template overlap test.
	waveRange [][2]float64
	hasMasked []bool

	pscale []float64

	extractOnce sync.Once
	extract     *extractArrays
	extractErr  error
}

// NewGroup builds the joint container from validated exposures. Exposure
// masks are tightened to finite science and positive inverse variance.
func NewGroup(exposures []*Exposure) (*Group, error) {
	if len(exposures) == 0 {
		return nil, fmt.Errorf("group: no exposures")
	}

	total := 0
	for _, e := range exposures {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("group: %w", err)
		}
		total += e.Size()
	}

	g := &Group{
		Exposures: exposures,
		N:         len(exposures),
		Scif:      make([]float64, 0, total),
		Sivarf:    make([]float64, 0, total),
		Weightf:   make([]float64, 0, total),
		Wavef:     make([]float64, 0, total),
		FitMask:   make([]bool, 0, total),
		slices:    make([][2]int, len(exposures)),
		mslices:   make([][2]int, len(exposures)),
		waveRange: make([][2]float64, len(exposures)),
		hasMasked: make([]bool, len(exposures)),
	}

	offset := 0
	moffset := 0
	for i, e := range exposures {
		mask := e.fitMask()
		g.slices[i] = [2]int{offset, offset + e.Size()}
		offset += e.Size()

		nm := 0
		for _, m := range mask {
			if m {
				nm++
			}
		}
		g.mslices[i] = [2]int{moffset, moffset + nm}
		moffset += nm
		g.hasMasked[i] = nm > 0

		cols := e.maskedColumns(mask)
		wmin, wmax := math.Inf(1), math.Inf(-1)
		for x, ok := range cols {
			if !ok {
				continue
			}
			if e.Wave[x] < wmin {
				wmin = e.Wave[x]
			}
			if e.Wave[x] > wmax {
				wmax = e.Wave[x]
			}
		}
		g.waveRange[i] = [2]float64{wmin, wmax}

		for p := 0; p < e.Size(); p++ {
			g.Scif = append(g.Scif, e.Sci[p]-e.Contam[p])
			if e.Ivar[p] > 0 {
				g.Sivarf = append(g.Sivarf, math.Sqrt(e.Ivar[p]))
			} else {
				g.Sivarf = append(g.Sivarf, 0)
			}
			g.Weightf = append(g.Weightf, e.Weight[p])
			g.Wavef = append(g.Wavef, e.Wave[p%e.ShapeX])
			g.FitMask = append(g.FitMask, mask[p])
		}
	}

	g.IsSpec = make([]bool, len(g.Scif))
	for i := range g.IsSpec {
		g.IsSpec[i] = true
	}
	g.Nmask = moffset
	g.DoF = g.countDoF()
	return g, nil
}

// WithPhotometry returns a new Group sharing the exposures but with the
// photometric block appended to the concatenated arrays. Flux errors get the
// minimum-error floor added in quadrature; points with non-positive raw
// error stay masked out. Dimension mismatches among flux/err/filters are a
// recoverable error raised before any matrix construction.
func (g *Group) WithPhotometry(phot *Photometry) (*Group, error) {
	if err := phot.Validate(); err != nil {
		return nil, err
	}
	base := g
	if g.Phot != nil {
		base = g.WithoutPhotometry()
	}

	nm := 0
	for _, e := range phot.Err {
		if e > 0 {
			nm++
		}
	}

	ng := base.shallowCopy()
	ng.Phot = phot
	ng.Nphot = nm
	ng.NphotTail = len(phot.Flux)
	ng.Nmask = base.Nmask + nm

	// Copy into fresh backing arrays so the appends below cannot clobber a
	// sibling group sharing the spectral prefix.
	n := len(base.Scif) + len(phot.Flux)
	ng.Scif = append(make([]float64, 0, n), base.Scif...)
	ng.Sivarf = append(make([]float64, 0, n), base.Sivarf...)
	ng.Weightf = append(make([]float64, 0, n), base.Weightf...)
	ng.Wavef = append(make([]float64, 0, n), base.Wavef...)
	ng.FitMask = append(make([]bool, 0, n), base.FitMask...)
	ng.IsSpec = append(make([]bool, 0, n), base.IsSpec...)

	minErr := phot.MinErr
	if minErr <= 0 {
		minErr = DefaultMinPhotErr
	}
	for i, f := range phot.Flux {
		ef := math.Sqrt(phot.Err[i]*phot.Err[i] + (minErr*f)*(minErr*f))
		ok := phot.Err[i] > 0

		ng.Scif = append(ng.Scif, f)
		if ok && ef > 0 {
			ng.Sivarf = append(ng.Sivarf, 1/ef)
		} else {
			ng.Sivarf = append(ng.Sivarf, 0)
		}
		ng.Weightf = append(ng.Weightf, 1)
		ng.Wavef = append(ng.Wavef, phot.Filters[i].Pivot())
		ng.FitMask = append(ng.FitMask, ok)
		ng.IsSpec = append(ng.IsSpec, false)
	}
	ng.DoF = ng.countDoF()
	return ng, nil
}

// WithoutPhotometry returns a Group with any photometric tail trimmed.
func (g *Group) WithoutPhotometry() *Group {
	if g.Phot == nil {
		return g
	}
	ng := g.shallowCopy()
	cut := len(g.Scif) - g.NphotTail
	ng.Scif = g.Scif[:cut]
	ng.Sivarf = g.Sivarf[:cut]
	ng.Weightf = g.Weightf[:cut]
	ng.Wavef = g.Wavef[:cut]
	ng.FitMask = g.FitMask[:cut]
	ng.IsSpec = g.IsSpec[:cut]
	ng.Phot = nil
	ng.Nphot = 0
	ng.NphotTail = 0
	ng.Nmask = g.Nmask - g.Nphot
	ng.DoF = ng.countDoF()
	return ng
}

// shallowCopy clones the group metadata while sharing exposures and the
// extraction cache state.
func (g *Group) shallowCopy() *Group {
	ng := &Group{
		Exposures: g.Exposures,
		Scif:      g.Scif,
		Sivarf:    g.Sivarf,
		Weightf:   g.Weightf,
		Wavef:     g.Wavef,
		FitMask:   g.FitMask,
		IsSpec:    g.IsSpec,
		Phot:      g.Phot,
		N:         g.N,
		Nmask:     g.Nmask,
		Nphot:     g.Nphot,
		NphotTail: g.NphotTail,
		slices:    g.slices,
		mslices:   g.mslices,
		waveRange: g.waveRange,
		hasMasked: g.hasMasked,
		pscale:    g.pscale,
	}
	return ng
}

func (g *Group) countDoF() int {
	var sum float64
	for i, m := range g.FitMask {
		if m {
			sum += g.Weightf[i]
		}
	}
	return int(sum)
}

// Slice returns the [start, end) range of exposure i in the full
// concatenated arrays.
func (g *Group) Slice(i int) (int, int) {
	return g.slices[i][0], g.slices[i][1]
}

// MaskedSlice returns the [start, end) range of exposure i in masked
// coordinates, where only masked-in positions are counted.
func (g *Group) MaskedSlice(i int) (int, int) {
	return g.mslices[i][0], g.mslices[i][1]
}

// HasMasked reports whether exposure i contributes any masked-in pixels.
func (g *Group) HasMasked(i int) bool {
	return g.hasMasked[i]
}

// WaveRange returns the wavelength coverage of exposure i's masked-in
// columns. The range is (+Inf, -Inf) when nothing is masked in.
func (g *Group) WaveRange(i int) (float64, float64) {
	return g.waveRange[i][0], g.waveRange[i][1]
}

// SpecMask returns the number of masked spectral (non-photometric)
// positions.
func (g *Group) SpecMask() int {
	return g.Nmask - g.Nphot
}

// SetPScale attaches polynomial flux-rescaling coefficients reconciling the
// spectra with the photometry. nil disables rescaling. Must not be called
// concurrently with a running fit.
func (g *Group) SetPScale(pscale []float64) {
	if pscale == nil {
		g.pscale = nil
		return
	}
	g.pscale = make([]float64, len(pscale))
	copy(g.pscale, pscale)
}

// PScale returns the attached rescaling coefficients, or nil.
func (g *Group) PScale() []float64 {
	return g.pscale
}

// FlatModel projects a 1D spectrum through every exposure and returns the
// concatenation, restricted to masked-in positions when applyMask is set.
// The photometric tail is not included.
func (g *Group) FlatModel(wave, flux []float64, applyMask bool) []float64 {
	var out []float64
	if applyMask {
		out = make([]float64, 0, g.SpecMask())
	}
	for i, e := range g.Exposures {
		m := e.Modeler.ModelSpectrum(wave, flux)
		if !applyMask {
			out = append(out, m...)
			continue
		}
		s0, _ := g.Slice(i)
		for p, v := range m {
			if g.FitMask[s0+p] {
				out = append(out, v)
			}
		}
	}
	return out
}
