package beam

import (
	"fmt"
	"math"
	"sort"
)

// GrismLimits maps grism names to their extraction windows:
// {min um, max um, bin step in Angstrom}. Unknown grisms get a window
// derived from the group's masked wavelength coverage.
var GrismLimits = map[string][3]float64{
	"G800L": {0.545, 1.02, 40.0},
	"G280":  {0.2, 0.4, 14.0},
	"G102":  {0.76, 1.18, 23.0},
	"G141":  {1.06, 1.73, 46.0},
	"GRISM": {0.98, 1.98, 11.0},
}

// BinnedSpectrum is an optimally extracted, wavelength-binned 1D spectrum.
type BinnedSpectrum struct {
	Wave []float64 `json:"wave"`
	Flux []float64 `json:"flux"`
	Err  []float64 `json:"err"`
	Bin  int       `json:"bin"`
}

// extractArrays are the masked-space caches backing optimal extraction:
// the per-pixel extraction profile, broadcast sensitivity and wavelength,
// noise variance, and grism membership of every masked spectral position.
type extractArrays struct {
	profile []float64
	sens    []float64
	wave    []float64
	sigma2  []float64
	grism   []string
}

// InitExtraction populates the lazily computed extraction caches. It is safe
// to call from multiple goroutines; only the first call does the work. When
// the grid evaluation is parallelized this must complete before spawning.
func (g *Group) InitExtraction() error {
	g.extractOnce.Do(func() {
		g.extract, g.extractErr = g.buildExtractArrays()
	})
	return g.extractErr
}

func (g *Group) buildExtractArrays() (*extractArrays, error) {
	n := g.SpecMask()
	ex := &extractArrays{
		profile: make([]float64, 0, n),
		sens:    make([]float64, 0, n),
		wave:    make([]float64, 0, n),
		sigma2:  make([]float64, 0, n),
		grism:   make([]string, 0, n),
	}
	for i, e := range g.Exposures {
		prof := e.optimalProfile()
		s0, _ := g.Slice(i)
		for p := 0; p < e.Size(); p++ {
			if !g.FitMask[s0+p] {
				continue
			}
			x := p % e.ShapeX
			ex.profile = append(ex.profile, prof[p])
			ex.sens = append(ex.sens, e.Sens[x])
			ex.wave = append(ex.wave, e.Wave[x])
			if e.Ivar[p] > 0 {
				ex.sigma2 = append(ex.sigma2, 1/e.Ivar[p])
			} else {
				ex.sigma2 = append(ex.sigma2, math.Inf(1))
			}
			ex.grism = append(ex.grism, e.Grism)
		}
	}
	if len(ex.profile) != n {
		return nil, fmt.Errorf("extraction cache: %d masked positions, want %d", len(ex.profile), n)
	}
	return ex, nil
}

// Grisms returns the distinct grism names across exposures, sorted.
func (g *Group) Grisms() []string {
	seen := map[string]bool{}
	for _, e := range g.Exposures {
		seen[e.Grism] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OptimalExtract produces inverse-variance optimally weighted binned 1D
// spectra from data, one per grism band. data must be in masked spectral
// coordinates (length SpecMask), e.g. the masked science array or a
// flattened masked model. bin scales the waveband step.
func (g *Group) OptimalExtract(data []float64, bin int) (map[string]*BinnedSpectrum, error) {
	if len(data) != g.SpecMask() {
		return nil, fmt.Errorf("optimal extract: data length %d, want masked size %d", len(data), g.SpecMask())
	}
	if bin < 1 {
		bin = 1
	}
	if err := g.InitExtraction(); err != nil {
		return nil, err
	}
	ex := g.extract

	num := make([]float64, len(data))
	den := make([]float64, len(data))
	for i := range data {
		if math.IsInf(ex.sigma2[i], 1) || ex.sigma2[i] <= 0 {
			continue
		}
		ivar := 1 / ex.sigma2[i]
		num[i] = ex.profile[i] * data[i] * ivar
		den[i] = ex.profile[i] * ex.profile[i] * ivar
	}

	out := make(map[string]*BinnedSpectrum)
	for _, grism := range g.Grisms() {
		lim, ok := GrismLimits[grism]
		if !ok {
			lim = g.deriveLimits(grism)
		}
		step := lim[2] * float64(bin)
		var waveBin []float64
		for w := lim[0] * 1e4; w < lim[1]*1e4; w += step {
			waveBin = append(waveBin, w)
		}

		spec := &BinnedSpectrum{
			Wave: waveBin,
			Flux: make([]float64, len(waveBin)),
			Err:  make([]float64, len(waveBin)),
			Bin:  bin,
		}
		for j, wb := range waveBin {
			var nsum, dsum float64
			hit := false
			for i := range data {
				if ex.grism[i] != grism {
					continue
				}
				if math.Abs(ex.wave[i]-wb) < step/2 {
					nsum += num[i]
					dsum += den[i]
					hit = true
				}
			}
			if hit && dsum > 0 {
				v := 1 / dsum
				spec.Flux[j] = nsum * v
				spec.Err[j] = math.Sqrt(v)
			}
		}
		out[grism] = spec
	}
	return out, nil
}

// deriveLimits builds an extraction window from the masked wavelength
// coverage of the exposures in the named grism, with the bin step set to
// the median column spacing.
func (g *Group) deriveLimits(grism string) [3]float64 {
	wmin, wmax := math.Inf(1), math.Inf(-1)
	var steps []float64
	for i, e := range g.Exposures {
		if e.Grism != grism || !g.HasMasked(i) {
			continue
		}
		lo, hi := g.WaveRange(i)
		if lo < wmin {
			wmin = lo
		}
		if hi > wmax {
			wmax = hi
		}
		for x := 1; x < e.ShapeX; x++ {
			d := math.Abs(e.Wave[x] - e.Wave[x-1])
			if d > 0 {
				steps = append(steps, d)
			}
		}
	}
	if math.IsInf(wmin, 1) || len(steps) == 0 {
		return [3]float64{0, 0, 1}
	}
	sort.Float64s(steps)
	step := steps[len(steps)/2]
	return [3]float64{wmin / 1e4, (wmax + step) / 1e4, step}
}

// MaskedScience returns the contamination-subtracted science values in
// masked spectral coordinates, the natural input for OptimalExtract.
func (g *Group) MaskedScience() []float64 {
	out := make([]float64, 0, g.SpecMask())
	for i := range g.Scif {
		if g.IsSpec[i] && g.FitMask[i] {
			out = append(out, g.Scif[i])
		}
	}
	return out
}

// MaskedSens returns the sensitivity at every masked spectral position.
func (g *Group) MaskedSens() ([]float64, error) {
	if err := g.InitExtraction(); err != nil {
		return nil, err
	}
	return g.extract.sens, nil
}

// MaskedWave returns the wavelength at every masked spectral position.
func (g *Group) MaskedWave() ([]float64, error) {
	if err := g.InitExtraction(); err != nil {
		return nil, err
	}
	return g.extract.wave, nil
}
