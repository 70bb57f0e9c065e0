package zfit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grismfit/internal/lsq"
	"grismfit/internal/spectra"
)

func TestEquivalentWidths(t *testing.T) {
	cont := flatTemplate(t, "flat continuum")
	line := spectra.NewGaussian("line TEST", 5500, 800, true)
	tmpls := []*spectra.Template{cont, line}
	const ztrue = 1.0

	g := testGroup(t, ztrue, 0.01, tmpls, []float64{2, 3})
	e := testEngine(g)
	set := spectra.NewSet(cont, line)

	tfit, err := e.TemplateAtZ(ztrue, set, DefaultFitOptions())
	require.NoError(t, err)

	ews, err := e.EquivalentWidths(tfit, 500)
	require.NoError(t, err)
	require.Contains(t, ews, "line TEST")

	// Unit line area over continuum density 2 gives a rest equivalent
	// width of 1.5 Angstroms.
	p := ews["line TEST"]
	assert.LessOrEqual(t, p[0], p[1])
	assert.LessOrEqual(t, p[1], p[2])
	assert.InDelta(t, 1.5, p[1], 0.2)
	assert.Greater(t, p[0], 1.0)
	assert.Less(t, p[2], 2.0)

	t.Run("deterministic draws", func(t *testing.T) {
		again, err := e.EquivalentWidths(tfit, 500)
		require.NoError(t, err)
		assert.Equal(t, ews, again)
	})

	t.Run("default draw count", func(t *testing.T) {
		def, err := e.EquivalentWidths(tfit, 0)
		require.NoError(t, err)
		assert.Contains(t, def, "line TEST")
	})

	t.Run("degenerate covariance", func(t *testing.T) {
		bad := &TemplateFit{
			Fit:       tfit.Fit,
			templates: set,
			nbg:       tfit.nbg,
			Covar:     lsq.Covariance{Degenerate: true},
		}
		out, err := e.EquivalentWidths(bad, 100)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("nil fit", func(t *testing.T) {
		out, err := e.EquivalentWidths(nil, 100)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("no line templates", func(t *testing.T) {
		contOnly := spectra.NewSet(cont)
		gc := testGroup(t, ztrue, 0.02, []*spectra.Template{cont}, []float64{2})
		ec := testEngine(gc)
		tf, err := ec.TemplateAtZ(ztrue, contOnly, DefaultFitOptions())
		require.NoError(t, err)
		out, err := ec.EquivalentWidths(tf, 100)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestPercentile(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, percentile(s, 0.5), 1e-12)
	assert.InDelta(t, 1.75, percentile(s, 0.25), 1e-12)
	assert.Equal(t, 1.0, percentile(s, 0))
	assert.Equal(t, 4.0, percentile(s, 1))
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.5))
}

func TestFluxCentroid(t *testing.T) {
	line := spectra.NewGaussian("line SYM", 5500, 800, true)
	assert.InDelta(t, 5500, fluxCentroid(line), 1.0)
}
