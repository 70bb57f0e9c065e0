package spectra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGaussian(t *testing.T) {
	t.Run("unit area", func(t *testing.T) {
		g := NewGaussian("line Ha", 6564.61, 10, false)
		assert.InDelta(t, 1.0, g.Integral(), 1e-3)
		assert.True(t, g.IsLine())
		assert.Equal(t, 10.0, g.FWHM)
	})

	t.Run("velocity width", func(t *testing.T) {
		g := NewGaussian("line Ha", 6564.61, 1000, true)
		// sigma = fwhm/2.35 * center/c; grid spans +/-5 sigma.
		sigma := 1000.0 / 2.35 * 6564.61 / 3.0e5
		span := g.Wave[len(g.Wave)-1] - g.Wave[0]
		assert.InDelta(t, 10*sigma, span, sigma)
		assert.InDelta(t, 1.0, g.Integral(), 1e-3)
	})

	t.Run("peak at center", func(t *testing.T) {
		g := NewGaussian("line Hb", 4862.68, 500, true)
		imax := 0
		for i, f := range g.Flux {
			if f > g.Flux[imax] {
				imax = i
			}
		}
		assert.InDelta(t, 4862.68, g.Wave[imax], g.Wave[1]-g.Wave[0])
	})
}

func TestTemplateRedshift(t *testing.T) {
	t.Run("stretches wave and conserves integrated flux", func(t *testing.T) {
		g := NewGaussian("line OII", 3729.875, 800, true)
		area := g.Integral()

		gz := g.Redshift(1.5, nil)
		assert.InDelta(t, 3729.875*2.5, gz.Wave[len(gz.Wave)/2], 5.0)
		assert.InDelta(t, area, gz.Integral(), 1e-12)
	})

	t.Run("no absorption below threshold", func(t *testing.T) {
		g := NewGaussian("line Ha", 6564.61, 800, true)
		gz := g.Redshift(2.0, MadauIGM{})
		assert.InDelta(t, g.Integral(), gz.Integral(), 1e-12)
	})

	t.Run("absorption above threshold", func(t *testing.T) {
		// Lyman-alpha at z=5 sits in the thick forest.
		g := NewGaussian("line Lya", 1215.4, 800, true)
		clear := g.Redshift(5.0, nil)
		absorbed := g.Redshift(5.0, MadauIGM{})
		assert.Less(t, absorbed.Integral(), clear.Integral())
	})
}

func TestInterp(t *testing.T) {
	xp := []float64{0, 1, 2, 4}
	fp := []float64{0, 10, 20, 40}

	t.Run("nodes and midpoints", func(t *testing.T) {
		got := Interp([]float64{0, 0.5, 1, 3}, xp, fp)
		assert.Equal(t, []float64{0, 5, 10, 30}, got)
	})

	t.Run("clamps outside domain", func(t *testing.T) {
		got := Interp([]float64{-1, 5}, xp, fp)
		assert.Equal(t, []float64{0, 40}, got)
	})
}

func TestTemplateAdd(t *testing.T) {
	a, err := New("a", []float64{1, 2, 3}, []float64{1, 1, 1})
	require.NoError(t, err)
	b, err := New("b", []float64{1.5, 2.5}, []float64{2, 2})
	require.NoError(t, err)

	sum := a.Add(b)
	assert.Equal(t, []float64{1, 1.5, 2, 2.5, 3}, sum.Wave)
	// Constant inputs interpolate to constants; clamped outside.
	assert.Equal(t, []float64{3, 3, 3, 3, 3}, sum.Flux)
}

func TestTemplateScale(t *testing.T) {
	a, err := New("a", []float64{1, 2}, []float64{1, 2})
	require.NoError(t, err)
	s := a.Scale(3)
	assert.Equal(t, []float64{3, 6}, s.Flux)
	assert.Equal(t, []float64{1, 2}, a.Flux)
}

func TestNewValidation(t *testing.T) {
	_, err := New("bad", []float64{1, 2}, []float64{1})
	assert.Error(t, err)
	_, err = New("short", []float64{1}, []float64{1})
	assert.Error(t, err)
}

func TestMadauIGM(t *testing.T) {
	igm := MadauIGM{}
	z := 5.0

	t.Run("transparent redward of lyman alpha", func(t *testing.T) {
		tr := igm.Transmission(z, []float64{1216 * (1 + z) * 1.05, 2.0e4})
		assert.InDelta(t, 1.0, tr[0], 1e-9)
		assert.InDelta(t, 1.0, tr[1], 1e-9)
	})

	t.Run("forest absorbs", func(t *testing.T) {
		tr := igm.Transmission(z, []float64{6000})
		assert.Greater(t, tr[0], 0.01)
		assert.Less(t, tr[0], 0.5)
	})

	t.Run("opaque below lyman limit", func(t *testing.T) {
		tr := igm.Transmission(z, []float64{5000})
		assert.Less(t, tr[0], 0.05)
	})

	t.Run("identity model", func(t *testing.T) {
		tr := Identity().Transmission(z, []float64{5000, 6000})
		assert.Equal(t, []float64{1, 1}, tr)
	})
}
