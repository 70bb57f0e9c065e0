// Package simulate provides a synthetic slitless instrument: a minimal
// disperser with linear dispersion and a gaussian cross-dispersion profile,
// standing in for the real optical model in demos and tests.
package simulate

import (
	"fmt"
	"math"
	"sort"

	"grismfit/internal/beam"
)

// Disperser describes one synthetic grism channel. Column x maps to
// wavelength WaveMin + Dispersion*x; the trace runs horizontally with a
// gaussian profile centered at TraceCenter (pixels). Sens is the per-column
// sensitivity, flat 1.0 when nil.
type Disperser struct {
	Grism       string    `json:"grism"`
	ShapeY      int       `json:"shape_y"`
	ShapeX      int       `json:"shape_x"`
	WaveMin     float64   `json:"wave_min"`
	Dispersion  float64   `json:"dispersion"`
	TraceCenter float64   `json:"trace_center"`
	TraceSigma  float64   `json:"trace_sigma"`
	Sens        []float64 `json:"sens,omitempty"`
}

// Validate checks the disperser geometry.
func (d *Disperser) Validate() error {
	if d.ShapeY <= 0 || d.ShapeX <= 0 {
		return fmt.Errorf("disperser %q: invalid shape %dx%d", d.Grism, d.ShapeY, d.ShapeX)
	}
	if d.Dispersion <= 0 {
		return fmt.Errorf("disperser %q: dispersion must be positive, got %g", d.Grism, d.Dispersion)
	}
	if d.TraceSigma <= 0 {
		return fmt.Errorf("disperser %q: trace sigma must be positive, got %g", d.Grism, d.TraceSigma)
	}
	if d.Sens != nil && len(d.Sens) != d.ShapeX {
		return fmt.Errorf("disperser %q: sens length %d, want %d", d.Grism, len(d.Sens), d.ShapeX)
	}
	return nil
}

// Wave returns the per-column wavelengths.
func (d *Disperser) Wave() []float64 {
	out := make([]float64, d.ShapeX)
	for x := range out {
		out[x] = d.WaveMin + d.Dispersion*float64(x)
	}
	return out
}

// SensArray returns the per-column sensitivity, expanding the flat default.
func (d *Disperser) SensArray() []float64 {
	out := make([]float64, d.ShapeX)
	for x := range out {
		if d.Sens != nil {
			out[x] = d.Sens[x]
		} else {
			out[x] = 1
		}
	}
	return out
}

// profile returns the unit-sum gaussian cross-dispersion profile.
func (d *Disperser) profile() []float64 {
	p := make([]float64, d.ShapeY)
	var sum float64
	for y := range p {
		t := (float64(y) - d.TraceCenter) / d.TraceSigma
		p[y] = math.Exp(-0.5 * t * t)
		sum += p[y]
	}
	if sum > 0 {
		for y := range p {
			p[y] /= sum
		}
	}
	return p
}

// ModelSpectrum projects a 1D spectrum into the flattened pixel space. Each
// column carries the band-averaged flux density over its wavelength bin
// times the sensitivity, spread down the gaussian trace profile. Safe for
// concurrent use.
func (d *Disperser) ModelSpectrum(wave, flux []float64) []float64 {
	out := make([]float64, d.ShapeY*d.ShapeX)
	prof := d.profile()
	sens := d.SensArray()
	for x := 0; x < d.ShapeX; x++ {
		center := d.WaveMin + d.Dispersion*float64(x)
		f := bandAverage(wave, flux, center-d.Dispersion/2, center+d.Dispersion/2)
		if f == 0 {
			continue
		}
		f *= sens[x]
		for y := 0; y < d.ShapeY; y++ {
			out[y*d.ShapeX+x] = prof[y] * f
		}
	}
	return out
}

// Exposure renders a noise-free exposure of the source spectrum: the science
// array is the exact model and the inverse variance encodes a uniform
// per-pixel noise level sigma.
func (d *Disperser) Exposure(name string, wave, flux []float64, sigma float64) (*beam.Exposure, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("disperser %q: noise level must be positive, got %g", d.Grism, sigma)
	}

	n := d.ShapeY * d.ShapeX
	e := &beam.Exposure{
		Name:    name,
		Grism:   d.Grism,
		ShapeY:  d.ShapeY,
		ShapeX:  d.ShapeX,
		Sci:     d.ModelSpectrum(wave, flux),
		Ivar:    make([]float64, n),
		Weight:  make([]float64, n),
		Contam:  make([]float64, n),
		Mask:    make([]bool, n),
		Wave:    d.Wave(),
		Sens:    d.SensArray(),
		Modeler: d,
	}
	ivar := 1 / (sigma * sigma)
	for i := 0; i < n; i++ {
		e.Ivar[i] = ivar
		e.Weight[i] = 1
		e.Mask[i] = true
	}
	return e, nil
}

// Observe renders the source through every disperser and assembles the
// joint fitting group.
func Observe(dispersers []*Disperser, wave, flux []float64, sigma float64) (*beam.Group, error) {
	exposures := make([]*beam.Exposure, len(dispersers))
	for i, d := range dispersers {
		e, err := d.Exposure(fmt.Sprintf("sim%02d", i), wave, flux, sigma)
		if err != nil {
			return nil, err
		}
		exposures[i] = e
	}
	return beam.NewGroup(exposures)
}

// bandAverage integrates the piecewise-linear spectrum over [lo, hi] and
// divides by the full band width, so coverage gaps count as zero flux.
func bandAverage(wave, flux []float64, lo, hi float64) float64 {
	n := len(wave)
	if n < 2 || hi <= lo || hi <= wave[0] || lo >= wave[n-1] {
		return 0
	}
	a, b := lo, hi
	if a < wave[0] {
		a = wave[0]
	}
	if b > wave[n-1] {
		b = wave[n-1]
	}
	if b <= a {
		return 0
	}

	i := sort.SearchFloat64s(wave, a)
	if i > 0 {
		i--
	}
	var sum float64
	for ; i < n-1 && wave[i] < b; i++ {
		s := math.Max(wave[i], a)
		e := math.Min(wave[i+1], b)
		if e <= s {
			continue
		}
		sum += 0.5 * (segValue(wave, flux, i, s) + segValue(wave, flux, i, e)) * (e - s)
	}
	return sum / (hi - lo)
}

// segValue linearly interpolates within segment i.
func segValue(wave, flux []float64, i int, x float64) float64 {
	w0, w1 := wave[i], wave[i+1]
	if w1 == w0 {
		return flux[i]
	}
	t := (x - w0) / (w1 - w0)
	return flux[i]*(1-t) + flux[i+1]*t
}
