package zfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"grismfit/internal/spectra"
	"grismfit/pkg/peaks"
)

// riskGamma sets the width of the Bayesian loss kernel in dz/(1+z) units.
const riskGamma = 0.15

// bayesLoss is the bounded loss for a velocity-normalized redshift offset:
// zero at zero offset, saturating at one for catastrophic errors.
func bayesLoss(dz float64) float64 {
	x := dz / riskGamma
	return 1 - 1/(1+x*x)
}

// Summarize converts the chi-squared curve on res.ZGrid into a normalized
// posterior with percentiles, MAP and minimum-risk redshifts. An optional
// prior is interpolated onto the grid and folded in before normalization.
func Summarize(res *Result, prior *Prior) error {
	n := len(res.ZGrid)
	if n == 0 || len(res.Chi2) != n {
		return fmt.Errorf("posterior: misaligned grids (%d z, %d chi2)", n, len(res.Chi2))
	}
	if res.DoF <= 0 {
		return fmt.Errorf("posterior: no degrees of freedom")
	}

	res.ChiMin = floats.Min(res.Chi2)
	res.ChiMax = floats.Max(res.Chi2)
	res.GammaLoss = riskGamma

	// Scale the exponent by the reduced chi-squared at the minimum so the
	// posterior width tracks the actual noise level. Noise-free data can
	// reach chi2=0 exactly; the floor keeps the exponent defined and the
	// posterior collapses to a delta at the minimum.
	scale := res.ChiMin / float64(res.DoF)
	if scale <= 0 {
		scale = math.SmallestNonzeroFloat64
	}

	pdf := make([]float64, n)
	for i, c := range res.Chi2 {
		pdf[i] = math.Exp(-0.5 * (c - res.ChiMin) / scale)
	}

	if prior != nil && len(prior.Z) > 0 {
		pz := spectra.Interp(res.ZGrid, prior.Z, prior.PDF)
		for i := range pdf {
			pdf[i] *= pz[i]
		}
		res.Prior = pz
		res.HasPrior = true
	}

	if n == 1 {
		z0 := res.ZGrid[0]
		res.PDF = []float64{1}
		res.Risk = []float64{0}
		res.Z025, res.Z16, res.Z50, res.Z84, res.Z975 = z0, z0, z0, z0, z0
		res.ZMAP, res.ZRisk = z0, z0
		return nil
	}

	norm := integrate.Trapezoidal(res.ZGrid, pdf)
	if !(norm > 0) || math.IsInf(norm, 0) {
		return fmt.Errorf("posterior: normalization integral %g", norm)
	}
	for i := range pdf {
		pdf[i] /= norm
	}
	res.PDF = pdf

	zfine, cdf := fineCDF(res.ZGrid, pdf)

	res.Z025 = invertCDF(0.025, cdf, zfine)
	res.Z16 = invertCDF(0.16, cdf, zfine)
	res.Z50 = invertCDF(0.50, cdf, zfine)
	res.Z84 = invertCDF(0.84, cdf, zfine)
	res.Z975 = invertCDF(0.975, cdf, zfine)
	res.ZWidth1 = res.Z84 - res.Z16
	res.ZWidth2 = res.Z975 - res.Z025

	// Expected loss at each candidate redshift, integrated over the
	// posterior with per-point grid widths.
	dzg := gradient(res.ZGrid)
	risk := make([]float64, n)
	for i := range risk {
		var r float64
		zi := res.ZGrid[i]
		for j := range pdf {
			r += pdf[j] * bayesLoss((zi-res.ZGrid[j])/(1+res.ZGrid[j])) * dzg[j]
		}
		risk[i] = r
	}
	res.Risk = risk

	ir := minIndex(risk)
	res.ZRisk = res.ZGrid[ir]
	if ir > 0 && ir < n-1 {
		res.ZRisk = peaks.ParabolaVertex(res.ZGrid[ir-1], res.ZGrid[ir], res.ZGrid[ir+1],
			risk[ir-1], risk[ir], risk[ir+1])
	}
	lossAt := make([]float64, n)
	for j := range lossAt {
		lossAt[j] = pdf[j] * bayesLoss((res.ZRisk-res.ZGrid[j])/(1+res.ZGrid[j]))
	}
	res.MinRisk = integrate.Trapezoidal(res.ZGrid, lossAt)

	im := maxIndex(pdf)
	res.ZMAP = res.ZGrid[im]
	if im > 0 && im < n-1 {
		res.ZMAP = peaks.ParabolaVertex(res.ZGrid[im-1], res.ZGrid[im], res.ZGrid[im+1],
			pdf[im-1], pdf[im], pdf[im+1])
	}
	return nil
}

// fineCDF builds the cumulative distribution used for percentile inversion.
// With enough grid points the log-posterior is resampled through an Akima
// spline onto a dense logarithmic grid; short grids fall back to cumulative
// trapezoids on the grid itself.
func fineCDF(zgrid, pdf []float64) ([]float64, []float64) {
	n := len(zgrid)
	if n >= 4 {
		logpdf := make([]float64, n)
		for i, p := range pdf {
			logpdf[i] = math.Log(math.Max(p, 1e-300))
		}
		var spline interp.AkimaSpline
		if err := spline.Fit(zgrid, logpdf); err == nil {
			zfine := LogZGrid([2]float64{zgrid[0], zgrid[n-1]}, 1e-4)
			if len(zfine) >= 2 {
				pfine := make([]float64, len(zfine))
				for i, z := range zfine {
					v := math.Exp(spline.Predict(z))
					if math.IsNaN(v) || math.IsInf(v, 0) {
						v = 0
					}
					pfine[i] = v
				}
				if norm := integrate.Trapezoidal(zfine, pfine); norm > 0 {
					dz := gradient(zfine)
					cdf := make([]float64, len(zfine))
					var c float64
					for i := range pfine {
						c += pfine[i] * dz[i] / norm
						cdf[i] = c
					}
					return zfine, cdf
				}
			}
		}
	}

	cdf := make([]float64, n)
	for i := 1; i < n; i++ {
		cdf[i] = cdf[i-1] + 0.5*(pdf[i]+pdf[i-1])*(zgrid[i]-zgrid[i-1])
	}
	if total := cdf[n-1]; total > 0 {
		for i := range cdf {
			cdf[i] /= total
		}
	} else {
		// All mass in a single point; step the CDF there.
		im := maxIndex(pdf)
		for i := im; i < n; i++ {
			cdf[i] = 1
		}
	}
	return zgrid, cdf
}

// invertCDF finds the redshift where the CDF crosses q, interpolating
// linearly inside the crossing interval and tolerating flat segments.
func invertCDF(q float64, cdf, z []float64) float64 {
	n := len(cdf)
	if n == 0 {
		return math.NaN()
	}
	if q <= cdf[0] {
		return z[0]
	}
	for i := 1; i < n; i++ {
		if cdf[i] >= q {
			dc := cdf[i] - cdf[i-1]
			if dc <= 0 {
				return z[i]
			}
			f := (q - cdf[i-1]) / dc
			return z[i-1] + f*(z[i]-z[i-1])
		}
	}
	return z[n-1]
}

// gradient mirrors numpy.gradient: central differences inside, one-sided at
// the edges.
func gradient(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = x[1] - x[0]
	out[n-1] = x[n-1] - x[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (x[i+1] - x[i-1]) / 2
	}
	return out
}
