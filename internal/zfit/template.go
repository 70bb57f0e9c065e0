package zfit

import (
	"fmt"

	"grismfit/internal/lsq"
	"grismfit/internal/spectra"
)

// Coefficient is a named fit parameter with its 1-sigma uncertainty.
type Coefficient struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Err   float64 `json:"err"`
}

// TemplateFit is the template combination fit at a fixed redshift, with the
// summed continuum and continuum-plus-line spectra in the observed frame.
type TemplateFit struct {
	Z            float64           `json:"z"`
	Chi2         float64           `json:"chi2"`
	DoF          int               `json:"dof"`
	Coefficients []Coefficient     `json:"coefficients"`
	Covar        lsq.Covariance    `json:"covar"`
	Cont1D       *spectra.Template `json:"cont1d"`
	Line1D       *spectra.Template `json:"line1d"`

	// Fit holds the underlying per-pixel products (model, background).
	Fit *ZFit `json:"-"`

	templates *spectra.Set
	nbg       int
}

// TemplateAtZ fits the template set at a fixed redshift with full covariance
// and assembles the 1D continuum and line spectra from the fitted
// coefficients.
func (e *Engine) TemplateAtZ(z float64, templates *spectra.Set, opts FitOptions) (*TemplateFit, error) {
	if templates == nil || templates.Len() == 0 {
		return nil, fmt.Errorf("template fit: empty template set")
	}
	opts.Uncertainties = 2

	fit, err := e.FitAtZ(z, templates, opts)
	if err != nil {
		return nil, err
	}

	nbg := len(fit.Coeffs) - templates.Len()
	out := &TemplateFit{
		Z:         z,
		Chi2:      fit.Chi2,
		DoF:       fit.DoF,
		Covar:     fit.Covar,
		Fit:       fit,
		templates: templates,
		nbg:       nbg,
	}

	out.Coefficients = make([]Coefficient, len(fit.Coeffs))
	for i := range fit.Coeffs {
		name := ""
		if i < nbg {
			name = fmt.Sprintf("bg %03d", i)
		} else {
			name = templates.At(i - nbg).Name
		}
		out.Coefficients[i] = Coefficient{Name: name, Value: fit.Coeffs[i], Err: fit.CoeffsErr[i]}
	}

	// Observed-frame sums start from a zero spectrum on the first
	// template's redshifted grid so empty fits still produce arrays.
	cont := templates.At(0).Redshift(z, e.igm).Scale(0)
	full := templates.At(0).Redshift(z, e.igm).Scale(0)
	for i := 0; i < templates.Len(); i++ {
		c := fit.Coeffs[nbg+i]
		if c == 0 {
			continue
		}
		t := templates.At(i)
		scaled := t.Redshift(z, e.igm).Scale(c)
		full = full.Add(scaled)
		if !t.IsLine() {
			cont = cont.Add(scaled)
		}
	}
	cont.Name, cont.FWHM = "continuum", 0
	full.Name, full.FWHM = "full", 0
	out.Cont1D = cont
	out.Line1D = full

	return out, nil
}
