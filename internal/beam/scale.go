package beam

import "math"

// ComputeScaleArray evaluates the polynomial flux-rescaling correction at
// the given wavelengths. Coefficient i is divided by 10^(i+1) before use,
// so a leading coefficient of 10 is the neutral scale of 1; the polynomial
// domain is (wave - 1e4)/1000.
func ComputeScaleArray(pscale, wave []float64) []float64 {
	out := make([]float64, len(wave))
	for i, w := range wave {
		x := (w - 1.0e4) / 1000.0
		var s, xp float64
		xp = 1
		for k, c := range pscale {
			s += c / math.Pow(10, float64(k+1)) * xp
			xp *= x
		}
		out[i] = s
	}
	return out
}
