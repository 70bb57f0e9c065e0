package beam

import (
	"fmt"
	"math"
)

// DefaultMinPhotErr is the fractional error floor added in quadrature to
// photometric uncertainties, absorbing calibration systematics.
const DefaultMinPhotErr = 0.02

// Filter is a photometric bandpass: throughput versus wavelength (Angstrom).
type Filter struct {
	Name       string    `json:"name"`
	Wave       []float64 `json:"wave"`
	Throughput []float64 `json:"throughput"`

	pivot float64
}

// Pivot returns the pivot wavelength, sqrt(Int(T*l dl) / Int(T/l dl)),
// cached after the first call.
func (f *Filter) Pivot() float64 {
	if f.pivot > 0 {
		return f.pivot
	}
	var num, den float64
	for i := 1; i < len(f.Wave); i++ {
		dl := f.Wave[i] - f.Wave[i-1]
		num += 0.5 * (f.Throughput[i]*f.Wave[i] + f.Throughput[i-1]*f.Wave[i-1]) * dl
		den += 0.5 * (f.Throughput[i]/f.Wave[i] + f.Throughput[i-1]/f.Wave[i-1]) * dl
	}
	if den <= 0 {
		return 0
	}
	f.pivot = math.Sqrt(num / den)
	return f.pivot
}

// MeanFlux integrates a spectrum (wave, flux in f_lambda) through the
// filter, returning the photon-weighted mean flux density
// Int(f*T*l dl) / Int(T*l dl). The spectrum is linearly interpolated onto
// the filter grid; regions outside the spectrum contribute zero.
func (f *Filter) MeanFlux(wave, flux []float64) float64 {
	if len(wave) < 2 {
		return 0
	}
	fl := make([]float64, len(f.Wave))
	for i, w := range f.Wave {
		if w < wave[0] || w > wave[len(wave)-1] {
			continue
		}
		fl[i] = interp1(w, wave, flux)
	}
	var num, den float64
	for i := 1; i < len(f.Wave); i++ {
		dl := f.Wave[i] - f.Wave[i-1]
		num += 0.5 * (fl[i]*f.Throughput[i]*f.Wave[i] + fl[i-1]*f.Throughput[i-1]*f.Wave[i-1]) * dl
		den += 0.5 * (f.Throughput[i]*f.Wave[i] + f.Throughput[i-1]*f.Wave[i-1]) * dl
	}
	if den <= 0 {
		return 0
	}
	return num / den
}

// interp1 linearly interpolates sorted (xp, fp) at x. Out-of-range values
// are handled by the callers.
func interp1(x float64, xp, fp []float64) float64 {
	lo, hi := 0, len(xp)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if xp[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	x0, x1 := xp[lo], xp[hi]
	if x1 == x0 {
		return fp[lo]
	}
	w := (x - x0) / (x1 - x0)
	return fp[lo]*(1-w) + fp[hi]*w
}

// TopHatFilter builds a rectangular bandpass centered at center with the
// given full width, sampled finely enough for smooth pivot integrals.
func TopHatFilter(name string, center, width float64) *Filter {
	const n = 128
	lo := center - width/2
	hi := center + width/2
	wave := make([]float64, n)
	tp := make([]float64, n)
	for i := 0; i < n; i++ {
		wave[i] = lo + (hi-lo)*float64(i)/float64(n-1)
		tp[i] = 1
	}
	tp[0] = 0
	tp[n-1] = 0
	return &Filter{Name: name, Wave: wave, Throughput: tp}
}

// Photometry is the broadband block fit jointly with the spectra. Flux
// entries follow the design-matrix convention: the photon-weighted mean
// f_lambda through the filter, scaled by 3e18 over the pivot wavelength
// squared. Uncertainties are in the same units. Entries with non-positive
// error are carried but masked out of the fit. TemplateGrid, when present
// and matching the fitted template count, replaces direct filter
// integration during the redshift scan.
type Photometry struct {
	Flux    []float64 `json:"flux"`
	Err     []float64 `json:"err"`
	Filters []*Filter `json:"filters"`

	// MinErr overrides DefaultMinPhotErr when positive.
	MinErr float64 `json:"min_err,omitempty"`

	Grid *TemplateGrid `json:"-"`
}

// Validate checks the parallel array dimensions.
func (p *Photometry) Validate() error {
	if len(p.Flux) == 0 {
		return fmt.Errorf("photometry: empty flux array")
	}
	if len(p.Flux) != len(p.Err) || len(p.Flux) != len(p.Filters) {
		return fmt.Errorf("photometry: flux/err/filters dimensions don't match (%d/%d/%d)",
			len(p.Flux), len(p.Err), len(p.Filters))
	}
	for i, f := range p.Filters {
		if f == nil || len(f.Wave) < 2 || len(f.Wave) != len(f.Throughput) {
			return fmt.Errorf("photometry: filter %d malformed", i)
		}
	}
	return nil
}
