package beam

import "fmt"

// backgroundOrder maps a per-exposure coefficient count to the 2D polynomial
// order of the background surface.
var backgroundOrder = map[int]int{1: 0, 3: 1, 6: 2, 10: 3}

// FlatBackground evaluates per-exposure polynomial background surfaces over
// normalized pixel coordinates and returns the masked concatenation. Each
// row of params holds one exposure's coefficients; the count selects the
// order (1, 3, 6 or 10 coefficients for order 0 to 3). Terms are ordered by
// total degree: 1, x, y, x^2, xy, y^2, x^3, x^2*y, x*y^2, y^3.
func (g *Group) FlatBackground(params [][]float64) ([]float64, error) {
	if len(params) != g.N {
		return nil, fmt.Errorf("flat background: %d parameter rows for %d exposures", len(params), g.N)
	}

	out := make([]float64, 0, g.SpecMask())
	for i, e := range g.Exposures {
		coeffs := params[i]
		if _, ok := backgroundOrder[len(coeffs)]; !ok {
			return nil, fmt.Errorf("flat background: exposure %d has %d coefficients, want 1, 3, 6 or 10", i, len(coeffs))
		}

		s0, _ := g.Slice(i)
		halfX := float64(e.ShapeX) / 2
		halfY := float64(e.ShapeY) / 2
		for p := 0; p < e.Size(); p++ {
			if !g.FitMask[s0+p] {
				continue
			}
			x := (float64(p%e.ShapeX) - halfX) / halfX
			y := (float64(p/e.ShapeX) - halfY) / halfY
			out = append(out, poly2D(coeffs, x, y))
		}
	}
	return out, nil
}

// poly2D evaluates the graded monomial basis up to the order implied by the
// coefficient count.
func poly2D(c []float64, x, y float64) float64 {
	v := c[0]
	if len(c) >= 3 {
		v += c[1]*x + c[2]*y
	}
	if len(c) >= 6 {
		v += c[3]*x*x + c[4]*x*y + c[5]*y*y
	}
	if len(c) >= 10 {
		v += c[6]*x*x*x + c[7]*x*x*y + c[8]*x*y*y + c[9]*y*y*y
	}
	return v
}
