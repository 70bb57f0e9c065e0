package beam

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grismfit/internal/spectra"
)

func TestFilter(t *testing.T) {
	t.Run("pivot near center", func(t *testing.T) {
		f := TopHatFilter("f140", 14000, 1000)
		assert.InEpsilon(t, 14000.0, f.Pivot(), 0.005)
		assert.Equal(t, f.Pivot(), f.Pivot(), "pivot is cached")
	})

	t.Run("mean flux of flat spectrum", func(t *testing.T) {
		f := TopHatFilter("f140", 14000, 1000)
		mf := f.MeanFlux([]float64{5000, 30000}, []float64{2, 2})
		assert.InDelta(t, 2.0, mf, 1e-9)
	})

	t.Run("no overlap gives zero", func(t *testing.T) {
		f := TopHatFilter("f140", 14000, 1000)
		mf := f.MeanFlux([]float64{3000, 5000}, []float64{2, 2})
		assert.Equal(t, 0.0, mf)
	})
}

func TestPhotometryValidate(t *testing.T) {
	f := TopHatFilter("f140", 14000, 1000)

	ok := &Photometry{Flux: []float64{1}, Err: []float64{0.1}, Filters: []*Filter{f}}
	assert.NoError(t, ok.Validate())

	empty := &Photometry{}
	assert.Error(t, empty.Validate())

	mismatch := &Photometry{Flux: []float64{1, 2}, Err: []float64{0.1}, Filters: []*Filter{f, f}}
	assert.Error(t, mismatch.Validate())

	malformed := &Photometry{Flux: []float64{1}, Err: []float64{0.1}, Filters: []*Filter{{Name: "bad"}}}
	assert.Error(t, malformed.Validate())
}

func TestGroupWithPhotometry(t *testing.T) {
	base, err := NewGroup([]*Exposure{testExposure("e", "G141", 11000, 46)})
	require.NoError(t, err)

	f1 := TopHatFilter("f140", 14000, 1000)
	f2 := TopHatFilter("f200", 20000, 1500)
	phot := &Photometry{
		Flux:    []float64{2, 3},
		Err:     []float64{0.1, 0},
		Filters: []*Filter{f1, f2},
	}

	t.Run("attach", func(t *testing.T) {
		pg, err := base.WithPhotometry(phot)
		require.NoError(t, err)

		assert.Equal(t, 1, pg.Nphot, "non-positive error stays masked out")
		assert.Equal(t, 2, pg.NphotTail)
		assert.Equal(t, base.Nmask+1, pg.Nmask)
		assert.Len(t, pg.Scif, 32)

		assert.Equal(t, 2.0, pg.Scif[30])
		assert.Equal(t, 3.0, pg.Scif[31])
		assert.False(t, pg.IsSpec[30])
		assert.True(t, pg.FitMask[30])
		assert.False(t, pg.FitMask[31])
		assert.Equal(t, 1.0, pg.Weightf[30])
		assert.Equal(t, f1.Pivot(), pg.Wavef[30])

		ef := math.Sqrt(0.1*0.1 + (0.02*2)*(0.02*2))
		assert.InDelta(t, 1/ef, pg.Sivarf[30], 1e-12, "error floor added in quadrature")
		assert.Equal(t, 0.0, pg.Sivarf[31])

		assert.Equal(t, base.DoF+1, pg.DoF)
		assert.Equal(t, base.Nmask, pg.SpecMask())

		// The spectral base is untouched.
		assert.Len(t, base.Scif, 30)
		assert.Equal(t, 0, base.Nphot)
		assert.Nil(t, base.Phot)
	})

	t.Run("min error override", func(t *testing.T) {
		p := &Photometry{
			Flux:    []float64{2},
			Err:     []float64{0.1},
			Filters: []*Filter{f1},
			MinErr:  0.1,
		}
		pg, err := base.WithPhotometry(p)
		require.NoError(t, err)
		ef := math.Sqrt(0.1*0.1 + (0.1*2)*(0.1*2))
		assert.InDelta(t, 1/ef, pg.Sivarf[30], 1e-12)
	})

	t.Run("detach", func(t *testing.T) {
		pg, err := base.WithPhotometry(phot)
		require.NoError(t, err)
		back := pg.WithoutPhotometry()
		assert.Len(t, back.Scif, 30)
		assert.Equal(t, base.Nmask, back.Nmask)
		assert.Equal(t, base.DoF, back.DoF)
		assert.Nil(t, back.Phot)
		assert.Equal(t, 0, back.NphotTail)
	})

	t.Run("reattach replaces", func(t *testing.T) {
		pg, err := base.WithPhotometry(phot)
		require.NoError(t, err)
		p2 := &Photometry{Flux: []float64{7}, Err: []float64{0.5}, Filters: []*Filter{f2}}
		pg2, err := pg.WithPhotometry(p2)
		require.NoError(t, err)
		assert.Len(t, pg2.Scif, 31)
		assert.Equal(t, 1, pg2.NphotTail)
		assert.Equal(t, 7.0, pg2.Scif[30])
		// The first attachment is unaffected.
		assert.Equal(t, 2.0, pg.Scif[30])
		assert.Len(t, pg.Scif, 32)
	})

	t.Run("sibling groups do not alias", func(t *testing.T) {
		pgA, err := base.WithPhotometry(phot)
		require.NoError(t, err)
		pB := &Photometry{Flux: []float64{7, 8}, Err: []float64{0.5, 0.5}, Filters: []*Filter{f1, f2}}
		_, err = base.WithPhotometry(pB)
		require.NoError(t, err)
		assert.Equal(t, 2.0, pgA.Scif[30])
		assert.Equal(t, 3.0, pgA.Scif[31])
	})

	t.Run("dimension mismatch is recoverable", func(t *testing.T) {
		bad := &Photometry{Flux: []float64{1, 2}, Err: []float64{0.1}, Filters: []*Filter{f1, f2}}
		_, err := base.WithPhotometry(bad)
		assert.Error(t, err)
		assert.Len(t, base.Scif, 30, "failed attach leaves the group unchanged")
	})
}

func TestTemplateGrid(t *testing.T) {
	tpl, err := spectra.New("cont flat", []float64{800, 40000}, []float64{3, 3})
	require.NoError(t, err)
	set := spectra.NewSet(tpl)

	filters := []*Filter{
		TopHatFilter("f140", 14000, 1000),
		TopHatFilter("f200", 20000, 1500),
	}
	zgrid := make([]float64, 11)
	for i := range zgrid {
		zgrid[i] = float64(i) / 10
	}

	tg, err := NewTemplateGrid(zgrid, set, filters, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tg.NTemp)
	assert.Equal(t, 2, tg.NFilt)

	t.Run("matches direct integration at a node", func(t *testing.T) {
		tz := tpl.Redshift(0.5, nil)
		want := filters[0].MeanFlux(tz.Wave, tz.Flux)
		got := tg.At(0.5)[0][0] * 1.5
		assert.InDelta(t, want, got, 1e-9)
	})

	t.Run("interpolates between nodes", func(t *testing.T) {
		tz := tpl.Redshift(0.25, nil)
		want := filters[0].MeanFlux(tz.Wave, tz.Flux)
		got := tg.At(0.25)[0][0] * 1.25
		assert.InEpsilon(t, want, got, 0.01)
	})

	t.Run("clamps outside the grid", func(t *testing.T) {
		assert.Equal(t, tg.At(0), tg.At(-1))
		assert.Equal(t, tg.At(1), tg.At(5))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewTemplateGrid([]float64{0.5}, set, filters, nil)
		assert.Error(t, err)
		_, err = NewTemplateGrid([]float64{0, 0, 1}, set, filters, nil)
		assert.Error(t, err)
	})
}
