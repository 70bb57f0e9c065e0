package zfit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate"
)

func gaussianResult(amp, z0, chi0 float64, dof int) *Result {
	zgrid := LogZGrid([2]float64{0.5, 1.5}, 0.002)
	chi2 := make([]float64, len(zgrid))
	for i, z := range zgrid {
		chi2[i] = amp*(z-z0)*(z-z0) + chi0
	}
	return &Result{ZGrid: zgrid, Chi2: chi2, DoF: dof}
}

func TestSummarizeGaussian(t *testing.T) {
	// chi2 = 500 (z-1)^2 + 80 with DoF=80 gives scale ~1, so the posterior
	// is close to a Gaussian with sigma = 1/sqrt(500).
	res := gaussianResult(500, 1.0, 80, 80)
	require.NoError(t, Summarize(res, nil))

	sigma := 1 / math.Sqrt(500)

	assert.InDelta(t, 80, res.ChiMin, 0.001)
	assert.Greater(t, res.ChiMax, res.ChiMin)
	assert.Equal(t, 0.15, res.GammaLoss)
	assert.False(t, res.HasPrior)

	assert.InDelta(t, 1.0, integrate.Trapezoidal(res.ZGrid, res.PDF), 1e-6)
	assert.InDelta(t, 1.0, res.ZMAP, 1e-3)
	assert.InDelta(t, 1.0, res.Z50, 0.005)
	assert.InDelta(t, 1.0, res.ZRisk, 0.005)

	assert.InDelta(t, 2*0.9945*sigma, res.ZWidth1, 0.004)
	assert.InDelta(t, 2*1.9600*sigma, res.ZWidth2, 0.006)
	assert.InDelta(t, 1-1.96*sigma, res.Z025, 0.004)
	assert.InDelta(t, 1+1.96*sigma, res.Z975, 0.004)

	require.Len(t, res.Risk, len(res.ZGrid))
	for i, r := range res.Risk {
		assert.GreaterOrEqual(t, r, 0.0, "risk %d", i)
	}
	assert.Greater(t, res.MinRisk, 0.0)
	assert.Less(t, res.MinRisk, 0.1)
	// The loss grows away from the posterior peak.
	assert.Greater(t, res.Risk[0], res.MinRisk)
	assert.Greater(t, res.Risk[len(res.Risk)-1], res.MinRisk)
}

func TestSummarizeDelta(t *testing.T) {
	// A very sharp chi-squared minimum collapses the posterior to a single
	// grid point.
	zgrid := LogZGrid([2]float64{0.8, 1.2}, 0.002)
	chi2 := make([]float64, len(zgrid))
	for i, z := range zgrid {
		chi2[i] = 1e8*(z-1)*(z-1) + 50
	}
	res := &Result{ZGrid: zgrid, Chi2: chi2, DoF: 50}
	require.NoError(t, Summarize(res, nil))

	assert.InDelta(t, 1.0, res.Z50, 0.01)
	assert.InDelta(t, 1.0, res.ZMAP, 0.01)
	assert.Less(t, res.ZWidth1, 0.01)
	assert.Less(t, res.MinRisk, 1e-3)
}

func TestSummarizeSinglePoint(t *testing.T) {
	res := &Result{ZGrid: []float64{1.5}, Chi2: []float64{10}, DoF: 5}
	require.NoError(t, Summarize(res, nil))

	assert.Equal(t, []float64{1}, res.PDF)
	assert.Equal(t, []float64{0}, res.Risk)
	for _, z := range []float64{res.Z025, res.Z16, res.Z50, res.Z84, res.Z975, res.ZMAP, res.ZRisk} {
		assert.Equal(t, 1.5, z)
	}
}

func TestSummarizeErrors(t *testing.T) {
	t.Run("empty grid", func(t *testing.T) {
		assert.Error(t, Summarize(&Result{DoF: 5}, nil))
	})
	t.Run("misaligned chi2", func(t *testing.T) {
		res := &Result{ZGrid: []float64{1, 2}, Chi2: []float64{1, 2, 3}, DoF: 5}
		assert.Error(t, Summarize(res, nil))
	})
	t.Run("no degrees of freedom", func(t *testing.T) {
		res := &Result{ZGrid: []float64{1, 2}, Chi2: []float64{1, 2}}
		assert.Error(t, Summarize(res, nil))
	})
	t.Run("prior wipes out the posterior", func(t *testing.T) {
		res := gaussianResult(500, 1.0, 80, 80)
		prior := &Prior{Z: []float64{0, 2}, PDF: []float64{0, 0}}
		assert.Error(t, Summarize(res, prior))
	})
}

func TestSummarizePrior(t *testing.T) {
	// A flat chi-squared curve leaves the posterior entirely to the prior.
	zgrid := LogZGrid([2]float64{0.5, 1.5}, 0.002)
	chi2 := make([]float64, len(zgrid))
	for i := range chi2 {
		chi2[i] = 100
	}
	res := &Result{ZGrid: zgrid, Chi2: chi2, DoF: 100}
	prior := &Prior{
		Z:   []float64{0.4, 0.9, 1.0, 1.1, 1.6},
		PDF: []float64{0.01, 0.01, 1, 0.01, 0.01},
	}
	require.NoError(t, Summarize(res, prior))

	assert.True(t, res.HasPrior)
	require.Len(t, res.Prior, len(zgrid))
	assert.InDelta(t, 1.0, res.ZMAP, 0.01)
	assert.InDelta(t, 1.0, integrate.Trapezoidal(res.ZGrid, res.PDF), 1e-6)
}

func TestBayesLoss(t *testing.T) {
	assert.Equal(t, 0.0, bayesLoss(0))
	assert.InDelta(t, 0.5, bayesLoss(0.15), 1e-12)
	assert.InDelta(t, 0.5, bayesLoss(-0.15), 1e-12)
	assert.Greater(t, bayesLoss(10), 0.999)
	assert.Less(t, bayesLoss(0.01), bayesLoss(0.02))
}

func TestGradient(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2}, gradient([]float64{0, 1, 3}))
	assert.Equal(t, []float64{1, 1, 1, 1}, gradient([]float64{0, 1, 2, 3}))
	assert.Equal(t, []float64{0}, gradient([]float64{2}))
	assert.Empty(t, gradient(nil))
}

func TestInvertCDF(t *testing.T) {
	cdf := []float64{0, 0.1, 0.5, 0.5, 1}
	z := []float64{0, 1, 2, 3, 4}

	assert.InDelta(t, 1.5, invertCDF(0.3, cdf, z), 1e-12)
	assert.InDelta(t, 2.0, invertCDF(0.5, cdf, z), 1e-12)
	assert.InDelta(t, 3.2, invertCDF(0.6, cdf, z), 1e-12)
	assert.Equal(t, 0.0, invertCDF(0, cdf, z))
	assert.Equal(t, 0.0, invertCDF(-1, cdf, z))
	assert.InDelta(t, 4.0, invertCDF(1, cdf, z), 1e-12)
	assert.Equal(t, 4.0, invertCDF(1.5, cdf, z))
	assert.True(t, math.IsNaN(invertCDF(0.5, nil, nil)))
}

func TestFineCDF(t *testing.T) {
	t.Run("short grids use cumulative trapezoids", func(t *testing.T) {
		z := []float64{1, 2, 3}
		zout, cdf := fineCDF(z, []float64{0, 1, 0})
		assert.Equal(t, z, zout)
		require.Len(t, cdf, 3)
		assert.InDelta(t, 0, cdf[0], 1e-12)
		assert.InDelta(t, 0.5, cdf[1], 1e-12)
		assert.InDelta(t, 1, cdf[2], 1e-12)
	})

	t.Run("zero mass steps at the peak", func(t *testing.T) {
		_, cdf := fineCDF([]float64{1, 2, 3}, []float64{0, 0, 0})
		assert.Equal(t, []float64{1, 1, 1}, cdf)
	})

	t.Run("dense resampling", func(t *testing.T) {
		zgrid := LogZGrid([2]float64{0.9, 1.1}, 0.005)
		require.GreaterOrEqual(t, len(zgrid), 4)
		pdf := make([]float64, len(zgrid))
		for i, z := range zgrid {
			pdf[i] = math.Exp(-0.5 * (z - 1) * (z - 1) / (0.02 * 0.02))
		}
		norm := integrate.Trapezoidal(zgrid, pdf)
		for i := range pdf {
			pdf[i] /= norm
		}

		zfine, cdf := fineCDF(zgrid, pdf)
		assert.Greater(t, len(zfine), len(zgrid))
		require.Equal(t, len(zfine), len(cdf))
		for i := 1; i < len(cdf); i++ {
			require.GreaterOrEqual(t, cdf[i], cdf[i-1]-1e-12, "cdf %d", i)
		}
		assert.InDelta(t, 1.0, cdf[len(cdf)-1], 0.01)
		assert.InDelta(t, 1.0, invertCDF(0.5, cdf, zfine), 0.003)
	})
}
