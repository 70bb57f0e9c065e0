package zfit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSaveLoad(t *testing.T) {
	res := gaussianResult(500, 1.0, 80, 80)
	require.NoError(t, Summarize(res, nil))
	res.Fitter = FitterNNLS
	res.TemplateNames = []string{"flat continuum", "line TEST"}

	path := filepath.Join(t.TempDir(), "zfit.json")
	require.NoError(t, res.Save(path))

	loaded, err := LoadResult(path)
	require.NoError(t, err)

	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, res.ZGrid, loaded.ZGrid)
	assert.Equal(t, res.PDF, loaded.PDF)
	assert.Equal(t, res.ZMAP, loaded.ZMAP)
	assert.Equal(t, res.ZWidth1, loaded.ZWidth1)
	assert.Equal(t, res.DoF, loaded.DoF)
	assert.Equal(t, res.Fitter, loaded.Fitter)
	assert.Equal(t, res.TemplateNames, loaded.TemplateNames)
	assert.False(t, loaded.HasPrior)
}

func TestLoadResultMissing(t *testing.T) {
	_, err := LoadResult(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
