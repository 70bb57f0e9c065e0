package spectra

import "math"

// IGMMinZ is the minimum redshift at which intergalactic absorption is
// applied to redshifted templates. Below this the transmission is unity.
const IGMMinZ = 4.0

// Transmission models intergalactic-medium absorption: the fraction of flux
// transmitted at each observed wavelength for a source at redshift z.
// Values are in (0, 1].
type Transmission interface {
	Transmission(z float64, obsWave []float64) []float64
}

// Identity returns a transmission model that absorbs nothing.
func Identity() Transmission {
	return identityIGM{}
}

type identityIGM struct{}

func (identityIGM) Transmission(z float64, obsWave []float64) []float64 {
	out := make([]float64, len(obsWave))
	for i := range out {
		out[i] = 1
	}
	return out
}

// MadauIGM is the Madau (1995) effective-opacity model: Lyman-series line
// blanketing plus photoelectric Lyman-continuum absorption by intervening
// hydrogen. Adequate for low-resolution template work; a full line-by-line
// treatment is not needed at grism resolution.
type MadauIGM struct{}

// Lyman-series coefficients: wavelength (Angstrom) and blanketing amplitude.
var lymanSeries = []struct {
	wave float64
	a    float64
}{
	{1216.0, 3.6e-3},
	{1026.0, 1.7e-3},
	{972.8, 1.2e-3},
	{950.0, 9.3e-4},
}

const lymanLimit = 912.0

// Transmission evaluates exp(-tau_eff) at the observed wavelengths for a
// source at redshift z.
func (MadauIGM) Transmission(z float64, obsWave []float64) []float64 {
	out := make([]float64, len(obsWave))
	xem := 1 + z
	for i, lam := range obsWave {
		tau := 0.0
		for _, ls := range lymanSeries {
			if lam > ls.wave && lam < ls.wave*xem {
				tau += ls.a * math.Pow(lam/ls.wave, 3.46)
			}
		}
		if lam < lymanLimit*xem {
			xc := lam / lymanLimit
			if xc < 1e-3 {
				xc = 1e-3
			}
			tau += 0.25*xc*xc*xc*(math.Pow(xem, 0.46)-math.Pow(xc, 0.46)) +
				9.4*math.Pow(xc, 1.5)*(math.Pow(xem, 0.18)-math.Pow(xc, 0.18)) -
				0.7*xc*xc*xc*(math.Pow(xc, -1.32)-math.Pow(xem, -1.32)) -
				0.023*(math.Pow(xem, 1.68)-math.Pow(xc, 1.68))
		}
		tr := math.Exp(-tau)
		if tr > 1 {
			tr = 1
		}
		if tr < 0 || math.IsNaN(tr) {
			tr = 0
		}
		out[i] = tr
	}
	return out
}
