// Package beam holds the per-exposure data containers and the joint fitting
// group: concatenated flattened science/noise/mask arrays, per-exposure index
// slices, the optional photometric block, and lazily initialized optimal
// extraction caches.
package beam

import (
	"fmt"
	"math"
)

// PixelModeler is the instrument projector for one exposure: it renders a 1D
// spectrum (wave in Angstrom, flux density) into the exposure's flattened
// pixel space. The returned slice has length ShapeY*ShapeX in row-major
// order. Implementations must be safe for concurrent use.
type PixelModeler interface {
	ModelSpectrum(wave, flux []float64) []float64
}

// Exposure is one 2D slitless spectral cutout. All pixel arrays are
// flattened row-major with length ShapeY*ShapeX; Wave and Sens are per
// column. Exposures are read-only once handed to a Group.
type Exposure struct {
	Name  string `json:"name"`
	Grism string `json:"grism"`

	ShapeY int `json:"shape_y"`
	ShapeX int `json:"shape_x"`

	Sci    []float64 `json:"sci"`
	Ivar   []float64 `json:"ivar"`
	Weight []float64 `json:"weight"`
	Contam []float64 `json:"contam"`
	Mask   []bool    `json:"mask"`

	Wave []float64 `json:"wave"`
	Sens []float64 `json:"sens"`

	Modeler PixelModeler `json:"-"`
}

// Size returns the flattened pixel count.
func (e *Exposure) Size() int {
	return e.ShapeY * e.ShapeX
}

// Validate checks the array dimensions against the shape.
func (e *Exposure) Validate() error {
	if e.ShapeY <= 0 || e.ShapeX <= 0 {
		return fmt.Errorf("exposure %q: invalid shape %dx%d", e.Name, e.ShapeY, e.ShapeX)
	}
	n := e.Size()
	for _, arr := range []struct {
		name string
		len  int
	}{
		{"sci", len(e.Sci)},
		{"ivar", len(e.Ivar)},
		{"weight", len(e.Weight)},
		{"contam", len(e.Contam)},
		{"mask", len(e.Mask)},
	} {
		if arr.len != n {
			return fmt.Errorf("exposure %q: %s length %d, want %d", e.Name, arr.name, arr.len, n)
		}
	}
	if len(e.Wave) != e.ShapeX || len(e.Sens) != e.ShapeX {
		return fmt.Errorf("exposure %q: wave/sens length %d/%d, want %d",
			e.Name, len(e.Wave), len(e.Sens), e.ShapeX)
	}
	if e.Modeler == nil {
		return fmt.Errorf("exposure %q: no pixel modeler", e.Name)
	}
	return nil
}

// fitMask returns the effective per-pixel mask: the exposure mask restricted
// to finite science values and positive inverse variance.
func (e *Exposure) fitMask() []bool {
	out := make([]bool, e.Size())
	for i := range out {
		out[i] = e.Mask[i] && e.Ivar[i] > 0 &&
			!math.IsNaN(e.Sci[i]) && !math.IsInf(e.Sci[i], 0)
	}
	return out
}

// maskedColumns reports which columns contain at least one masked-in pixel.
func (e *Exposure) maskedColumns(mask []bool) []bool {
	cols := make([]bool, e.ShapeX)
	for y := 0; y < e.ShapeY; y++ {
		row := y * e.ShapeX
		for x := 0; x < e.ShapeX; x++ {
			if mask[row+x] {
				cols[x] = true
			}
		}
	}
	return cols
}

// optimalProfile computes the column-normalized flat-spectrum model used as
// the extraction weight: project a unit flat spectrum, clamp negatives, and
// normalize each column to unit sum. Columns with no model flux stay zero.
func (e *Exposure) optimalProfile() []float64 {
	wmin, wmax := e.Wave[0], e.Wave[0]
	for _, w := range e.Wave {
		if w < wmin {
			wmin = w
		}
		if w > wmax {
			wmax = w
		}
	}
	pad := 0.05 * (wmax - wmin)
	if pad == 0 {
		pad = 1
	}
	m := e.Modeler.ModelSpectrum([]float64{wmin - pad, wmax + pad}, []float64{1, 1})

	for i, v := range m {
		if v < 0 || math.IsNaN(v) {
			m[i] = 0
		}
	}
	for x := 0; x < e.ShapeX; x++ {
		var sum float64
		for y := 0; y < e.ShapeY; y++ {
			sum += m[y*e.ShapeX+x]
		}
		if sum <= 0 {
			continue
		}
		for y := 0; y < e.ShapeY; y++ {
			m[y*e.ShapeX+x] /= sum
		}
	}
	return m
}
