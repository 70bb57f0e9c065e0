package peaks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaussian(x, mu, sigma, amp float64) float64 {
	d := (x - mu) / sigma
	return amp * math.Exp(-0.5*d*d)
}

func TestIndexes(t *testing.T) {
	t.Run("single gaussian", func(t *testing.T) {
		y := make([]float64, 101)
		for i := range y {
			y[i] = gaussian(float64(i), 50, 5, 1)
		}
		idx := Indexes(y, 0.4, 8)
		require.Len(t, idx, 1)
		assert.Equal(t, 50, idx[0])
	})

	t.Run("two separated gaussians", func(t *testing.T) {
		y := make([]float64, 201)
		for i := range y {
			x := float64(i)
			y[i] = gaussian(x, 50, 4, 1) + gaussian(x, 150, 4, 0.8)
		}
		idx := Indexes(y, 0.4, 8)
		require.Len(t, idx, 2)
		assert.Equal(t, []int{50, 150}, idx)
	})

	t.Run("threshold removes weak peak", func(t *testing.T) {
		y := make([]float64, 201)
		for i := range y {
			x := float64(i)
			y[i] = gaussian(x, 50, 4, 1) + gaussian(x, 150, 4, 0.2)
		}
		idx := Indexes(y, 0.4, 8)
		require.Len(t, idx, 1)
		assert.Equal(t, 50, idx[0])
	})

	t.Run("min distance keeps higher peak", func(t *testing.T) {
		y := make([]float64, 60)
		for i := range y {
			x := float64(i)
			y[i] = gaussian(x, 25, 2, 0.9) + gaussian(x, 30, 2, 1.0)
		}
		idx := Indexes(y, 0.3, 8)
		require.Len(t, idx, 1)
		assert.Equal(t, 30, idx[0])
	})

	t.Run("plateau yields one peak", func(t *testing.T) {
		y := []float64{0, 0, 1, 2, 3, 3, 3, 2, 1, 0, 0}
		idx := Indexes(y, 0.4, 1)
		require.Len(t, idx, 1)
		assert.Equal(t, 5, idx[0])
	})

	t.Run("constant input has no peaks", func(t *testing.T) {
		y := []float64{2, 2, 2, 2, 2, 2}
		assert.Empty(t, Indexes(y, 0.3, 1))
	})

	t.Run("monotonic input has no peaks", func(t *testing.T) {
		y := []float64{0, 1, 2, 3, 4, 5}
		assert.Empty(t, Indexes(y, 0.3, 1))
	})

	t.Run("short input", func(t *testing.T) {
		assert.Empty(t, Indexes([]float64{1, 2}, 0.3, 1))
		assert.Empty(t, Indexes(nil, 0.3, 1))
	})

	t.Run("endpoints are never peaks", func(t *testing.T) {
		y := []float64{5, 1, 0, 1, 6}
		assert.Empty(t, Indexes(y, 0.1, 1))
	})
}

func TestParabolaVertex(t *testing.T) {
	t.Run("recovers exact vertex", func(t *testing.T) {
		// y = (x-1.3)^2 + 2 sampled at three points around the minimum.
		f := func(x float64) float64 { return (x-1.3)*(x-1.3) + 2 }
		v := ParabolaVertex(1.0, 1.5, 2.0, f(1.0), f(1.5), f(2.0))
		assert.InDelta(t, 1.3, v, 1e-12)
	})

	t.Run("uneven spacing", func(t *testing.T) {
		f := func(x float64) float64 { return -2*(x-0.7)*(x-0.7) + 5 }
		v := ParabolaVertex(0.1, 0.5, 1.4, f(0.1), f(0.5), f(1.4))
		assert.InDelta(t, 0.7, v, 1e-12)
	})

	t.Run("degenerate falls back to center", func(t *testing.T) {
		// Collinear samples have zero curvature.
		v := ParabolaVertex(0, 1, 2, 1, 2, 3)
		assert.Equal(t, 1.0, v)

		// Repeated abscissa.
		v = ParabolaVertex(1, 1, 2, 0, 0, 1)
		assert.Equal(t, 1.0, v)
	})
}
