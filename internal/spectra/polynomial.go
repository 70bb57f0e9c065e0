package spectra

import "fmt"

// PolynomialTemplates builds the low-order polynomial continuum set used for
// the null-hypothesis fit: templates "poly 0" .. "poly <order>" with flux
// (wave/1e4)^i on the supplied wavelength grid.
func PolynomialTemplates(wave []float64, order int) *Set {
	set := NewSet()
	for i := 0; i <= order; i++ {
		flux := make([]float64, len(wave))
		for j, w := range wave {
			flux[j] = powInt(w/1e4, i)
		}
		set.Add(&Template{Name: fmt.Sprintf("poly %d", i), Wave: wave, Flux: flux})
	}
	return set
}

// PolynomialWave returns the standard wavelength grid for the polynomial
// null fit: 1000 points linearly spaced over [1000, 50000] Angstrom.
func PolynomialWave() []float64 {
	const (
		n  = 1000
		w0 = 1000.0
		w1 = 5.0e4
	)
	wave := make([]float64, n)
	for i := range wave {
		wave[i] = w0 + (w1-w0)*float64(i)/float64(n-1)
	}
	return wave
}

func powInt(x float64, n int) float64 {
	p := 1.0
	for i := 0; i < n; i++ {
		p *= x
	}
	return p
}
