package spectra

// LineComplex names an emission line or a blended line complex: the vacuum
// rest wavelengths of its members (Angstrom) and their relative strengths.
type LineComplex struct {
	Name   string
	Waves  []float64
	Ratios []float64
}

// lineTable lists common emission lines and the combined complexes useful
// for low-resolution redshift fits, ordered from single lines to blends.
var lineTable = []LineComplex{
	{"Ha", []float64{6564.61}, []float64{1}},
	{"Hb", []float64{4862.68}, []float64{1}},
	{"Hg", []float64{4341.68}, []float64{1}},
	{"Hd", []float64{4102.892}, []float64{1}},
	{"OIIIx", []float64{4364.436}, []float64{1}},
	{"OIII", []float64{5008.240, 4960.295}, []float64{2.98, 1}},
	{"OIII+Hb", []float64{5008.240, 4960.295, 4862.68}, []float64{2.98, 1, 3.98 / 6}},
	{"OIII+Hb+Ha", []float64{5008.240, 4960.295, 4862.68, 6564.61},
		[]float64{2.98, 1, 3.98 / 10, 3.98 / 10 * 2.86}},
	{"OIII+OII", []float64{5008.240, 4960.295, 3729.875}, []float64{2.98, 1, 3.98 / 4}},
	{"OII", []float64{3729.875}, []float64{1}},
	{"OII+Ne", []float64{3729.875, 3869}, []float64{1, 1.0 / 5}},
	{"OI", []float64{6302.046}, []float64{1}},
	{"NeIII", []float64{3869}, []float64{1}},
	{"NeV", []float64{3346.8}, []float64{1}},
	{"NeVI", []float64{3426.85}, []float64{1}},
	{"SIII", []float64{9068.6, 9530.6}, []float64{1, 2.44}},
	{"HeII", []float64{4687.5}, []float64{1}},
	{"HeI", []float64{5877.2}, []float64{1}},
	{"HeIb", []float64{3889.5}, []float64{1}},
	{"MgII", []float64{2799.117}, []float64{1}},
	{"CIV", []float64{1549.480}, []float64{1}},
	{"Lya", []float64{1215.4}, []float64{1}},
	{"NII", []float64{6549.86, 6585.27}, []float64{1, 3}},
	{"SII", []float64{6718.29, 6732.67}, []float64{1, 1}},
	{"Ha+SII", []float64{6564.61, 6718.29, 6732.67}, []float64{1, 1.0 / 10, 1.0 / 10}},
	{"Ha+SII+SIII+He", []float64{6564.61, 6718.29, 6732.67, 9068.6, 9530.6, 10830},
		[]float64{1, 1.0 / 10, 1.0 / 10, 1.0 / 20, 2.44 / 20, 1.0 / 25}},
	{"Ha+NII+SII+SIII+He", []float64{6564.61, 6549.86, 6585.27, 6718.29, 6732.67, 9068.6, 9530.6, 10830},
		[]float64{1, 1.0 / 16, 3.0 / 16, 1.0 / 10, 1.0 / 10, 1.0 / 20, 2.44 / 20, 1.0 / 25}},
}

// LineComplexes returns the full emission-line table in its canonical order.
func LineComplexes() []LineComplex {
	out := make([]LineComplex, len(lineTable))
	copy(out, lineTable)
	return out
}

// FindLine looks up a line or complex by name.
func FindLine(name string) (LineComplex, bool) {
	for _, lc := range lineTable {
		if lc.Name == name {
			return lc, true
		}
	}
	return LineComplex{}, false
}

// LineTemplate builds a unit-total-flux emission-line template for the named
// line or complex. Member Gaussians are weighted by their ratios, normalized
// so the summed template integrates to one; the fitted coefficient is then
// the total line flux of the complex. fwhm is a velocity width in km/s.
func LineTemplate(name string, fwhm float64) (*Template, bool) {
	lc, ok := FindLine(name)
	if !ok {
		return nil, false
	}
	var total float64
	for _, r := range lc.Ratios {
		total += r
	}
	var tmpl *Template
	for i, w := range lc.Waves {
		g := NewGaussian("line "+name, w, fwhm, true).Scale(lc.Ratios[i] / total)
		if tmpl == nil {
			tmpl = g
		} else {
			tmpl = tmpl.Add(g)
		}
	}
	tmpl.Name = "line " + name
	tmpl.FWHM = fwhm
	return tmpl, true
}
