package simulate

import (
	"fmt"
	"math"

	"grismfit/internal/beam"
)

// SyntheticPhotometry integrates a source spectrum through the filters and
// returns a photometric block in the design-matrix flux convention, the
// photon-weighted mean f_lambda scaled by 3e18 over the pivot squared.
// Uncertainties are fracErr times each flux; bands with zero flux come out
// with zero error and are masked when attached to a group.
func SyntheticPhotometry(filters []*beam.Filter, wave, flux []float64, fracErr float64) (*beam.Photometry, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("synthetic photometry: no filters")
	}
	if len(wave) != len(flux) || len(wave) < 2 {
		return nil, fmt.Errorf("synthetic photometry: source arrays %d wave, %d flux", len(wave), len(flux))
	}
	if fracErr <= 0 {
		fracErr = 0.05
	}

	p := &beam.Photometry{
		Flux:    make([]float64, len(filters)),
		Err:     make([]float64, len(filters)),
		Filters: filters,
	}
	for i, f := range filters {
		pv := f.Pivot()
		v := f.MeanFlux(wave, flux) * 3e18 / (pv * pv)
		p.Flux[i] = v
		p.Err[i] = fracErr * math.Abs(v)
	}
	return p, nil
}
