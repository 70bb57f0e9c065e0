package zfit

import (
	"encoding/json"
	"os"

	"grismfit/internal/lsq"
)

// Result holds the full output of a redshift grid search: the merged grid
// with per-point fit products, the normalized posterior, and the derived
// point estimates and intervals.
type Result struct {
	Version int `json:"version"`

	ZGrid  []float64        `json:"zgrid"`
	Chi2   []float64        `json:"chi2"`
	Coeffs [][]float64      `json:"coeffs"`
	Covar  []lsq.Covariance `json:"covar,omitempty"`

	PDF      []float64 `json:"pdf"`
	Risk     []float64 `json:"risk"`
	Prior    []float64 `json:"prior,omitempty"`
	HasPrior bool      `json:"has_prior"`

	// Point estimates and credible intervals from the posterior.
	ZMAP    float64 `json:"z_map"`
	ZRisk   float64 `json:"z_risk"`
	MinRisk float64 `json:"min_risk"`
	Z025    float64 `json:"z025"`
	Z16     float64 `json:"z16"`
	Z50     float64 `json:"z50"`
	Z84     float64 `json:"z84"`
	Z975    float64 `json:"z975"`
	ZWidth1 float64 `json:"zwidth1"`
	ZWidth2 float64 `json:"zwidth2"`

	// Fit configuration and quality summary.
	NumExposures int     `json:"num_exposures"`
	DoF          int     `json:"dof"`
	Fitter       string  `json:"fitter"`
	PolyOrder    int     `json:"poly_order"`
	Chi2Poly     float64 `json:"chi2_poly"`
	ChiMin       float64 `json:"chi_min"`
	ChiMax       float64 `json:"chi_max"`
	BICPoly      float64 `json:"bic_poly"`
	BICTemp      float64 `json:"bic_temp"`
	GammaLoss    float64 `json:"gamma_loss"`
	Stars        bool    `json:"stars,omitempty"`

	NTemp         int       `json:"ntemp"`
	TemplateNames []string  `json:"template_names"`
	TemplateFWHM  []float64 `json:"template_fwhm"`
}

// BestIndex returns the grid index with the lowest chi-squared.
func (r *Result) BestIndex() int {
	return minIndex(r.Chi2)
}

// LoadResult loads a saved fit result from a JSON file.
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// Save writes the result to a JSON file.
func (r *Result) Save(path string) error {
	r.Version = 1

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
