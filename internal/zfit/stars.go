package zfit

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"grismfit/internal/lsq"
	"grismfit/internal/spectra"
)

// StarFit holds per-template chi-squared values from fitting each stellar
// template individually at zero redshift.
type StarFit struct {
	Names    []string         `json:"names"`
	Chi2     []float64        `json:"chi2"`
	Coeffs   [][]float64      `json:"coeffs"`
	Covar    []lsq.Covariance `json:"covar"`
	Best     int              `json:"best"`
	BestName string           `json:"best_name"`
	BestChi2 float64          `json:"best_chi2"`
}

// FitStars fits each stellar template on its own at z=0 with non-negative
// coefficients and ranks them by chi-squared. Templates with no spectral
// overlap score +Inf instead of failing the scan.
func (e *Engine) FitStars(stars *spectra.Set, fitBackground bool) (*StarFit, error) {
	if stars == nil || stars.Len() == 0 {
		return nil, fmt.Errorf("star fit: empty template set")
	}

	n := stars.Len()
	out := &StarFit{
		Names:  stars.Names(),
		Chi2:   make([]float64, n),
		Coeffs: make([][]float64, n),
		Covar:  make([]lsq.Covariance, n),
		Best:   -1,
	}
	opts := FitOptions{Fitter: FitterNNLS, FitBackground: fitBackground, Uncertainties: 1}

	best := math.Inf(1)
	for i := 0; i < n; i++ {
		single := spectra.NewSet(stars.At(i))
		fit, err := e.FitAtZ(0, single, opts)
		if err != nil {
			if errors.Is(err, ErrDegenerateFit) {
				out.Chi2[i] = math.Inf(1)
				e.log.Debug("star template skipped", zap.String("name", stars.At(i).Name))
				continue
			}
			return nil, fmt.Errorf("star fit %q: %w", stars.At(i).Name, err)
		}
		out.Chi2[i] = fit.Chi2
		out.Coeffs[i] = fit.Coeffs
		out.Covar[i] = fit.Covar
		if fit.Chi2 < best {
			best = fit.Chi2
			out.Best = i
		}
	}
	if out.Best < 0 {
		return nil, fmt.Errorf("star fit: no template overlaps the spectra")
	}
	out.BestName = out.Names[out.Best]
	out.BestChi2 = best

	e.log.Info("star fit", zap.String("best", out.BestName), zap.Float64("chi2", out.BestChi2))
	return out, nil
}
