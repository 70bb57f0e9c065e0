// Package spectra provides the template library used by the redshift fitter:
// continuum and emission-line basis spectra, ordered template sets whose
// insertion order defines design-matrix columns, polynomial template
// generators, and intergalactic-medium transmission models.
package spectra

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Speed of light in km/s, used to convert velocity widths to wavelength.
const cKMS = 3.0e5

// Template is a model spectrum used as a basis function in the linear fit.
// Wave is in Angstroms, Flux is a flux density (f_lambda). FWHM is the line
// width in km/s for emission-line templates and zero for continuum templates.
type Template struct {
	Name string    `json:"name"`
	Wave []float64 `json:"wave"`
	Flux []float64 `json:"flux"`
	FWHM float64   `json:"fwhm,omitempty"`
}

// New creates a template from parallel wavelength/flux arrays.
// The slices are used directly, not copied.
func New(name string, wave, flux []float64) (*Template, error) {
	if len(wave) != len(flux) {
		return nil, fmt.Errorf("template %q: wave/flux length mismatch (%d != %d)", name, len(wave), len(flux))
	}
	if len(wave) < 2 {
		return nil, fmt.Errorf("template %q: need at least 2 samples, got %d", name, len(wave))
	}
	return &Template{Name: name, Wave: wave, Flux: flux}, nil
}

// NewGaussian creates a unit-area Gaussian emission-line template centered at
// center (Angstrom). fwhm is interpreted as km/s when velocity is true,
// otherwise as Angstroms. The wavelength grid spans +/-5 sigma in steps of
// 0.1 sigma.
func NewGaussian(name string, center, fwhm float64, velocity bool) *Template {
	rms := fwhm / 2.35
	if velocity {
		rms *= center / cKMS
	}

	const (
		maxSigma = 5.0
		step     = 0.1
	)
	n := int(2 * maxSigma / step)
	wave := make([]float64, n)
	flux := make([]float64, n)
	norm := 1 / math.Sqrt(2*math.Pi*rms*rms)
	for i := 0; i < n; i++ {
		x := (-maxSigma + float64(i)*step) * rms
		wave[i] = center + x
		flux[i] = norm * math.Exp(-x*x/(2*rms*rms))
	}

	return &Template{Name: name, Wave: wave, Flux: flux, FWHM: fwhm}
}

// IsLine reports whether the template is an emission-line template,
// identified by the "line " name prefix.
func (t *Template) IsLine() bool {
	return strings.HasPrefix(t.Name, "line ")
}

// Scale returns a copy with the flux multiplied by k.
func (t *Template) Scale(k float64) *Template {
	flux := make([]float64, len(t.Flux))
	for i, f := range t.Flux {
		flux[i] = f * k
	}
	return &Template{Name: t.Name, Wave: t.Wave, Flux: flux, FWHM: t.FWHM}
}

// Redshift returns the template observed at redshift z: the wavelength grid
// is stretched by (1+z) and the flux density scaled by 1/(1+z). When an
// absorption model is supplied and z exceeds IGMMinZ, the flux is further
// multiplied by the intergalactic transmission at the observed wavelengths.
func (t *Template) Redshift(z float64, igm Transmission) *Template {
	wave := make([]float64, len(t.Wave))
	flux := make([]float64, len(t.Flux))
	for i := range t.Wave {
		wave[i] = t.Wave[i] * (1 + z)
		flux[i] = t.Flux[i] / (1 + z)
	}
	if igm != nil && z > IGMMinZ {
		tr := igm.Transmission(z, wave)
		for i := range flux {
			flux[i] *= tr[i]
		}
	}
	return &Template{Name: t.Name, Wave: wave, Flux: flux, FWHM: t.FWHM}
}

// Add returns the sum of two templates on the union of their wavelength
// grids, with each input linearly interpolated onto the merged grid.
func (t *Template) Add(other *Template) *Template {
	wave := unionGrid(t.Wave, other.Wave)
	flux := make([]float64, len(wave))
	fa := Interp(wave, t.Wave, t.Flux)
	fb := Interp(wave, other.Wave, other.Flux)
	for i := range flux {
		flux[i] = fa[i] + fb[i]
	}
	fwhm := t.FWHM
	if fwhm == 0 {
		fwhm = other.FWHM
	}
	return &Template{Name: t.Name, Wave: wave, Flux: flux, FWHM: fwhm}
}

// Integral returns the trapezoidal integral of the flux over wavelength.
func (t *Template) Integral() float64 {
	var sum float64
	for i := 1; i < len(t.Wave); i++ {
		sum += 0.5 * (t.Flux[i] + t.Flux[i-1]) * (t.Wave[i] - t.Wave[i-1])
	}
	return sum
}

// Interp linearly interpolates (xp, fp) at the points x. Points outside the
// domain of xp take the boundary values, matching the behavior expected by
// the template algebra (line templates decay to ~0 at their grid edges).
// xp must be sorted ascending.
func Interp(x, xp, fp []float64) []float64 {
	out := make([]float64, len(x))
	for i, xi := range x {
		out[i] = interpPoint(xi, xp, fp)
	}
	return out
}

func interpPoint(x float64, xp, fp []float64) float64 {
	n := len(xp)
	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[n-1] {
		return fp[n-1]
	}
	j := sort.SearchFloat64s(xp, x)
	// xp[j-1] < x <= xp[j]
	x0, x1 := xp[j-1], xp[j]
	if x1 == x0 {
		return fp[j]
	}
	w := (x - x0) / (x1 - x0)
	return fp[j-1]*(1-w) + fp[j]*w
}

// unionGrid merges two sorted wavelength arrays, dropping exact duplicates.
func unionGrid(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var v float64
		switch {
		case i == len(a):
			v = b[j]
			j++
		case j == len(b):
			v = a[i]
			i++
		case a[i] < b[j]:
			v = a[i]
			i++
		case b[j] < a[i]:
			v = b[j]
			j++
		default:
			v = a[i]
			i++
			j++
		}
		if len(out) == 0 || v > out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
