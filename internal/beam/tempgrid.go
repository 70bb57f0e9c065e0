package beam

import (
	"fmt"

	"grismfit/internal/spectra"
)

// TemplateGrid precomputes template fluxes through every filter on a
// redshift grid, replacing per-trial filter integration during the scan.
// Stored values are the filter mean fluxes of the redshifted template
// divided by (1+z); the design-matrix builder multiplies the looked-up
// values back by (1+z), so grid lookup and direct integration agree.
type TemplateGrid struct {
	ZGrid  []float64     `json:"zgrid"`
	NTemp  int           `json:"ntemp"`
	NFilt  int           `json:"nfilt"`
	Values [][][]float64 `json:"values"` // [z][template][filter]
}

// NewTemplateGrid evaluates the template set through the filters at every
// grid redshift. The grid must be strictly increasing.
func NewTemplateGrid(zgrid []float64, set *spectra.Set, filters []*Filter, igm spectra.Transmission) (*TemplateGrid, error) {
	if len(zgrid) < 2 {
		return nil, fmt.Errorf("template grid: need at least 2 redshifts, got %d", len(zgrid))
	}
	for i := 1; i < len(zgrid); i++ {
		if zgrid[i] <= zgrid[i-1] {
			return nil, fmt.Errorf("template grid: zgrid not strictly increasing at %d", i)
		}
	}

	tg := &TemplateGrid{
		ZGrid:  append([]float64(nil), zgrid...),
		NTemp:  set.Len(),
		NFilt:  len(filters),
		Values: make([][][]float64, len(zgrid)),
	}
	for iz, z := range zgrid {
		tg.Values[iz] = make([][]float64, set.Len())
		for it := 0; it < set.Len(); it++ {
			tz := set.At(it).Redshift(z, igm)
			row := make([]float64, len(filters))
			for ifilt, f := range filters {
				row[ifilt] = f.MeanFlux(tz.Wave, tz.Flux) / (1 + z)
			}
			tg.Values[iz][it] = row
		}
	}
	return tg, nil
}

// At linearly interpolates the grid at redshift z, returning a
// template-by-filter matrix. Redshifts outside the grid clamp to the edges.
func (tg *TemplateGrid) At(z float64) [][]float64 {
	iz := 0
	for iz < len(tg.ZGrid)-2 && tg.ZGrid[iz+1] < z {
		iz++
	}
	z0, z1 := tg.ZGrid[iz], tg.ZGrid[iz+1]
	w := (z - z0) / (z1 - z0)
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}

	out := make([][]float64, tg.NTemp)
	for it := 0; it < tg.NTemp; it++ {
		row := make([]float64, tg.NFilt)
		for ifilt := 0; ifilt < tg.NFilt; ifilt++ {
			row[ifilt] = tg.Values[iz][it][ifilt]*(1-w) + tg.Values[iz+1][it][ifilt]*w
		}
		out[it] = row
	}
	return out
}
