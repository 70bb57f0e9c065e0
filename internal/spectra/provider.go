package spectra

import (
	"fmt"
	"math"
)

// LibraryParams controls which templates a Provider returns.
type LibraryParams struct {
	// FWHM is the emission-line width. Interpreted as km/s when Velocity
	// is true, Angstroms otherwise.
	FWHM     float64 `json:"fwhm"`
	Velocity bool    `json:"velocity"`

	// LineComplexes selects blended line complexes (fewer templates with
	// fixed internal ratios) instead of individual lines. Complexes reduce
	// line misidentification during the coarse search; individual lines
	// are preferred for the final extraction at fixed redshift.
	LineComplexes bool `json:"line_complexes"`

	// Stars selects the stellar library instead of galaxy templates.
	Stars bool `json:"stars"`
}

// DefaultLibraryParams returns the parameters used for the coarse redshift
// grid search.
func DefaultLibraryParams() LibraryParams {
	return LibraryParams{
		FWHM:          1000, // km/s, roughly matched to grism resolution
		Velocity:      true,
		LineComplexes: true,
		Stars:         false,
	}
}

// WithFWHM returns a copy with the line width replaced.
func (p LibraryParams) WithFWHM(fwhm float64, velocity bool) LibraryParams {
	p.FWHM = fwhm
	p.Velocity = velocity
	return p
}

// WithLineComplexes returns a copy with the complex/individual toggle set.
func (p LibraryParams) WithLineComplexes(complexes bool) LibraryParams {
	p.LineComplexes = complexes
	return p
}

// WithStars returns a copy selecting the stellar library.
func (p LibraryParams) WithStars(stars bool) LibraryParams {
	p.Stars = stars
	return p
}

// Provider supplies an ordered template set for the given parameters.
type Provider interface {
	Templates(params LibraryParams) (*Set, error)
}

// Library is the built-in synthetic template provider: a small power-law
// continuum basis with a Balmer-break template, Gaussian emission lines from
// the line table, and a blackbody sequence for stellar fits. It requires no
// external template files.
type Library struct{}

// Line complexes used for the coarse grid search.
var complexLineList = []string{
	"Ha+NII+SII+SIII+He", "OIII+Hb", "OII+Ne", "Lya",
}

// Individual lines used for the extraction fit at fixed redshift.
var fullLineList = []string{
	"Lya", "CIV", "MgII", "NeVI", "NeV", "OII", "NeIII", "Hd", "Hg",
	"OIIIx", "Hb", "OIII", "HeI", "OI", "Ha", "NII", "SII", "SIII",
}

// Blackbody temperatures for the stellar sequence, Kelvin.
var starTemperatures = []float64{3500, 4500, 5500, 6500, 8000, 10000, 15000}

// Templates builds the template set for params. Continuum templates come
// first, then emission lines, preserving a stable insertion order.
func (Library) Templates(params LibraryParams) (*Set, error) {
	if params.FWHM <= 0 {
		return nil, fmt.Errorf("template library: FWHM must be positive, got %g", params.FWHM)
	}

	set := NewSet()
	if params.Stars {
		for _, tk := range starTemperatures {
			set.Add(blackbody(tk))
		}
		return set, nil
	}

	wave := continuumWave()
	for _, beta := range []float64{-1.5, -0.5, 0.5} {
		set.Add(powerLaw(wave, beta))
	}
	set.Add(balmerBreak(wave))

	names := fullLineList
	if params.LineComplexes {
		names = complexLineList
	}
	fwhm := params.FWHM
	if !params.Velocity {
		// The line table builds velocity-width Gaussians; convert an
		// Angstrom width at H-alpha to an equivalent velocity.
		fwhm = params.FWHM / 6564.61 * cKMS
	}
	for _, name := range names {
		tmpl, ok := LineTemplate(name, fwhm)
		if !ok {
			return nil, fmt.Errorf("template library: unknown line %q", name)
		}
		set.Add(tmpl)
	}
	return set, nil
}

// continuumWave returns a logarithmic wavelength grid from the Lyman limit
// region to the thermal infrared, 0.5% steps.
func continuumWave() []float64 {
	const (
		w0   = 200.0
		w1   = 6.0e4
		step = 1.005
	)
	var wave []float64
	for w := w0; w <= w1; w *= step {
		wave = append(wave, w)
	}
	return wave
}

// powerLaw builds a continuum template f_lambda = (wave/5500)^beta.
func powerLaw(wave []float64, beta float64) *Template {
	flux := make([]float64, len(wave))
	for i, w := range wave {
		flux[i] = math.Pow(w/5500, beta)
	}
	return &Template{Name: fmt.Sprintf("cont beta%.1f", beta), Wave: wave, Flux: flux}
}

// balmerBreak builds a red continuum suppressed below the 3646 Angstrom
// Balmer limit, the dominant broadband redshift indicator for evolved
// stellar populations.
func balmerBreak(wave []float64) *Template {
	const (
		breakWave   = 3646.0
		suppression = 0.35
	)
	flux := make([]float64, len(wave))
	for i, w := range wave {
		f := math.Pow(w/5500, -0.5)
		if w < breakWave {
			f *= suppression
		}
		flux[i] = f
	}
	return &Template{Name: "cont break", Wave: wave, Flux: flux}
}

// blackbody builds a Planck spectrum at temperature tk, normalized to unit
// flux density at 5500 Angstrom.
func blackbody(tk float64) *Template {
	// hc/k in Angstrom*Kelvin.
	const hcOverK = 1.43877688e8

	wave := continuumWave()
	planck := func(w float64) float64 {
		x := hcOverK / (w * tk)
		if x > 700 {
			return 0
		}
		return 1 / (math.Pow(w, 5) * (math.Exp(x) - 1))
	}
	norm := planck(5500)
	flux := make([]float64, len(wave))
	for i, w := range wave {
		flux[i] = planck(w) / norm
	}
	return &Template{Name: fmt.Sprintf("star bb%.0fK", tk), Wave: wave, Flux: flux}
}
