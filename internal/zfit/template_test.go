package zfit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grismfit/internal/spectra"
)

func TestTemplateAtZ(t *testing.T) {
	cont := flatTemplate(t, "flat continuum")
	line := spectra.NewGaussian("line TEST", 5500, 800, true)
	tmpls := []*spectra.Template{cont, line}
	truth := []float64{2, 3}
	const ztrue = 1.0

	g := testGroup(t, ztrue, 0.02, tmpls, truth)
	e := testEngine(g)
	set := spectra.NewSet(cont, line)

	// Uncertainties are forced on even when the options leave them off.
	tfit, err := e.TemplateAtZ(ztrue, set, FitOptions{Fitter: FitterNNLS, FitBackground: true})
	require.NoError(t, err)

	assert.Equal(t, ztrue, tfit.Z)
	assert.Equal(t, g.DoF, tfit.DoF)
	assert.Less(t, tfit.Chi2, 1e-4)
	require.NotNil(t, tfit.Fit)
	assert.Len(t, tfit.Fit.Model, g.Nmask)

	t.Run("named coefficients", func(t *testing.T) {
		require.Len(t, tfit.Coefficients, g.N+set.Len())
		for i := 0; i < g.N; i++ {
			c := tfit.Coefficients[i]
			assert.Equal(t, fmt.Sprintf("bg %03d", i), c.Name)
			assert.InDelta(t, 0, c.Value, 1e-6)
		}
		cc := tfit.Coefficients[g.N]
		lc := tfit.Coefficients[g.N+1]
		assert.Equal(t, "flat continuum", cc.Name)
		assert.Equal(t, "line TEST", lc.Name)
		assert.InDelta(t, truth[0], cc.Value, 1e-3)
		assert.InDelta(t, truth[1], lc.Value, 1e-2)
		assert.Greater(t, cc.Err, 0.0)
		assert.Greater(t, lc.Err, 0.0)
	})

	t.Run("covariance", func(t *testing.T) {
		assert.False(t, tfit.Covar.Degenerate)
		assert.Len(t, tfit.Covar.Matrix, g.N+set.Len())
	})

	t.Run("observed frame spectra", func(t *testing.T) {
		require.NotNil(t, tfit.Cont1D)
		require.NotNil(t, tfit.Line1D)
		assert.Equal(t, "continuum", tfit.Cont1D.Name)
		assert.Equal(t, "full", tfit.Line1D.Name)

		// The redshifted line keeps its integrated flux, so the full and
		// continuum spectra differ by the line coefficient times the
		// unit template area.
		dline := tfit.Line1D.Integral() - tfit.Cont1D.Integral()
		assert.InDelta(t, truth[1], dline, 0.06)
	})

	t.Run("empty template set", func(t *testing.T) {
		_, err := e.TemplateAtZ(ztrue, spectra.NewSet(), FitOptions{})
		assert.Error(t, err)
		_, err = e.TemplateAtZ(ztrue, nil, FitOptions{})
		assert.Error(t, err)
	})
}
