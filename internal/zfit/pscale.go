package zfit

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"grismfit/internal/spectra"
)

// ScaleToPhotometry derives polynomial scaling coefficients that bring the
// spectra onto the photometric flux scale. The templates are fit at z with
// candidate scalings applied to the spectral rows and the photometric
// residuals drive a Nelder-Mead search over the polynomial coefficients.
// Without attached photometry the neutral scaling is returned.
func (e *Engine) ScaleToPhotometry(z float64, templates *spectra.Set, order int) ([]float64, error) {
	if e.group.Nphot == 0 {
		return []float64{10}, nil
	}
	if templates == nil || templates.Len() == 0 {
		return nil, fmt.Errorf("scale to photometry: empty template set")
	}
	if order < 0 {
		order = 0
	}

	d, err := e.buildDesign(z, templates, FitOptions{Fitter: FitterNNLS, FitBackground: true}, nil)
	if err != nil {
		return nil, fmt.Errorf("scale to photometry: %w", err)
	}

	init := make([]float64, order+1)
	init[0] = 10

	problem := optimize.Problem{
		Func: func(p []float64) float64 { return d.scaledChi2(p) },
	}
	result, err := optimize.Minimize(problem, append([]float64(nil), init...), nil, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("scale to photometry: %w", err)
	}

	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("scale to photometry: non-finite coefficients")
		}
	}
	e.log.Info("photometric scaling",
		zap.Float64s("pscale", result.X), zap.Float64("chi2", result.F))
	return result.X, nil
}
