package zfit

import (
	"fmt"

	"go.uber.org/zap"

	"grismfit/internal/beam"
	"grismfit/internal/spectra"
)

// RunParams configure the full fitting sequence.
type RunParams struct {
	Search SearchParams

	// ScalePhotometry enables the photometric scaling pass: after the
	// first search the spectra are rescaled onto the photometry and the
	// search repeats on a dense grid around the first z_MAP.
	ScalePhotometry bool
	ScaleOrder      int

	EWDraws int
	// BinFactor scales the extraction waveband step for the binned
	// spectra in the output.
	BinFactor int
}

// DefaultRunParams enable photometric scaling with a constant scale factor.
func DefaultRunParams() RunParams {
	return RunParams{
		Search:          DefaultSearchParams(),
		ScalePhotometry: true,
		ScaleOrder:      0,
		EWDraws:         ewDraws,
		BinFactor:       1,
	}
}

// RunOutput bundles the results of a full fitting sequence.
type RunOutput struct {
	Result *Result               `json:"result"`
	TFit   *TemplateFit          `json:"tfit"`
	EWs    map[string][3]float64 `json:"ews,omitempty"`
	PScale []float64             `json:"pscale,omitempty"`

	// Binned optimal extractions of the background-subtracted science
	// and the best-fit model, per grism band.
	Data  map[string]*beam.BinnedSpectrum `json:"data,omitempty"`
	Model map[string]*beam.BinnedSpectrum `json:"model,omitempty"`
}

// Run performs the full sequence: redshift search with the coarse template
// set t0, optional photometric scaling with a refined second search, the
// final template fit at z_MAP with the full line set t1, equivalent widths,
// and binned 1D extractions of data and model.
func (e *Engine) Run(t0, t1 *spectra.Set, params RunParams) (*RunOutput, error) {
	res, err := e.FitRedshift(t0, params.Search)
	if err != nil {
		return nil, err
	}

	out := &RunOutput{Result: res}

	if params.ScalePhotometry && e.group.Nphot > 0 {
		pscale, err := e.ScaleToPhotometry(res.ZMAP, t0, params.ScaleOrder)
		if err != nil {
			e.log.Warn("photometric scaling failed, continuing unscaled", zap.Error(err))
		} else {
			e.group.SetPScale(pscale)
			out.PScale = pscale

			zmap := res.ZMAP
			width := 20 * 0.001 * (1 + zmap)
			refined := params.Search
			refined.ZR = [2]float64{zmap - width, zmap + width}
			refined.DZ = [2]float64{0.001, 0.0002}
			res, err = e.FitRedshift(t0, refined)
			if err != nil {
				return nil, fmt.Errorf("refined search: %w", err)
			}
			out.Result = res
		}
	}

	tfit, err := e.TemplateAtZ(res.ZMAP, t1, FitOptions{
		Fitter:        params.Search.Fitter,
		FitBackground: params.Search.FitBackground,
	})
	if err != nil {
		return nil, fmt.Errorf("template fit at z=%.4f: %w", res.ZMAP, err)
	}
	out.TFit = tfit

	ews, err := e.EquivalentWidths(tfit, params.EWDraws)
	if err != nil {
		return nil, err
	}
	out.EWs = ews

	nspec := e.group.SpecMask()
	sci := e.group.MaskedScience()
	for i := range sci {
		sci[i] -= tfit.Fit.Background[i]
	}
	model := make([]float64, nspec)
	copy(model, tfit.Fit.Model[:nspec])

	bin := params.BinFactor
	if bin < 1 {
		bin = 1
	}
	if out.Data, err = e.group.OptimalExtract(sci, bin); err != nil {
		return nil, fmt.Errorf("extract data: %w", err)
	}
	if out.Model, err = e.group.OptimalExtract(model, bin); err != nil {
		return nil, fmt.Errorf("extract model: %w", err)
	}

	return out, nil
}
