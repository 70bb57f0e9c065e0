package zfit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grismfit/internal/beam"
	"grismfit/internal/simulate"
	"grismfit/internal/spectra"
)

func TestScaleToPhotometry(t *testing.T) {
	cont := flatTemplate(t, "flat continuum")
	const ztrue = 1.0

	// Spectra rendered at half the photometric flux level: the optimal
	// scaling brings them up by a factor two, i.e. pscale ~5 on the
	// neutral-is-ten convention.
	g := testGroup(t, ztrue, 0.02, []*spectra.Template{cont}, []float64{1})

	srcFull := composeSource(ztrue, []*spectra.Template{cont}, []float64{2})
	filters := []*beam.Filter{
		beam.TopHatFilter("synth1", 10000, 1200),
		beam.TopHatFilter("synth2", 12000, 1000),
	}
	phot, err := simulate.SyntheticPhotometry(filters, srcFull.Wave, srcFull.Flux, 0.03)
	require.NoError(t, err)

	gp, err := g.WithPhotometry(phot)
	require.NoError(t, err)
	e := testEngine(gp)

	pscale, err := e.ScaleToPhotometry(ztrue, spectra.NewSet(cont), 0)
	require.NoError(t, err)
	require.Len(t, pscale, 1)
	assert.InDelta(t, 5.0, pscale[0], 0.75)

	t.Run("negative order falls back to constant", func(t *testing.T) {
		p, err := e.ScaleToPhotometry(ztrue, spectra.NewSet(cont), -3)
		require.NoError(t, err)
		assert.Len(t, p, 1)
	})

	t.Run("empty template set", func(t *testing.T) {
		_, err := e.ScaleToPhotometry(ztrue, spectra.NewSet(), 0)
		assert.Error(t, err)
	})

	t.Run("neutral without photometry", func(t *testing.T) {
		p, err := testEngine(g).ScaleToPhotometry(ztrue, spectra.NewSet(cont), 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{10}, p)
	})
}
