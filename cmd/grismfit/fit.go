package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grismfit/internal/beam"
	"grismfit/internal/simulate"
	"grismfit/internal/spectra"
	"grismfit/internal/zfit"
)

// fitCmd fits a saved observation group
var fitCmd = &cobra.Command{
	Use:   "fit [group.json]",
	Short: "Fit redshift and templates to a saved observation group",
	Long: `Loads a saved observation group, runs the redshift grid search with the
coarse template set, refines against photometry when attached, and fits the
full line set at the best redshift. Results are written to the output
directory as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runFit,
}

func runFit(cmd *cobra.Command, args []string) error {
	file, err := simulate.Load(args[0])
	if err != nil {
		return fmt.Errorf("load group %s: %w", args[0], err)
	}
	// A photometry file in the config replaces whatever the group carries.
	if cfg.Photometry.File != "" {
		file.Photometry = nil
	}

	group, err := file.Group()
	if err != nil {
		return err
	}
	if cfg.Photometry.File != "" {
		phot, err := loadPhotometry(cfg.Photometry.File)
		if err != nil {
			return err
		}
		if group, err = group.WithPhotometry(phot); err != nil {
			return err
		}
	}
	logger.Info("group loaded",
		zap.String("name", file.Name),
		zap.Int("exposures", group.N),
		zap.Int("photometry_bands", group.Nphot))

	eng := zfit.New(group, zfit.WithLogger(logger), zfit.WithWorkers(cfg.Workers))

	stars := cfg.Search.ZMin == 0 && cfg.Search.ZMax == 0
	t0, t1, err := librarySets(stars)
	if err != nil {
		return err
	}

	params, err := runParams()
	if err != nil {
		return err
	}

	if stars {
		sf, err := eng.FitStars(t0, cfg.Search.FitBackground)
		if err != nil {
			return err
		}
		printStars(sf)
	}

	out, err := eng.Run(t0, t1, params)
	if err != nil {
		return err
	}

	base, err := writeOutputs(out)
	if err != nil {
		return err
	}
	logger.Info("results written", zap.String("base", base))

	printSummary(out)
	return nil
}

// librarySets builds the coarse search set and the full extraction set from
// the built-in library.
func librarySets(stars bool) (*spectra.Set, *spectra.Set, error) {
	lib := spectra.Library{}
	base := spectra.DefaultLibraryParams().
		WithFWHM(cfg.Templates.FWHM, cfg.Templates.Velocity).
		WithStars(stars)

	t0, err := lib.Templates(base.WithLineComplexes(true))
	if err != nil {
		return nil, nil, err
	}
	t1, err := lib.Templates(base.WithLineComplexes(false))
	if err != nil {
		return nil, nil, err
	}
	return t0, t1, nil
}

// runParams translates the run configuration into engine parameters.
func runParams() (zfit.RunParams, error) {
	p := zfit.DefaultRunParams()
	p.Search.ZR = [2]float64{cfg.Search.ZMin, cfg.Search.ZMax}
	p.Search.DZ = [2]float64{cfg.Search.DZCoarse, cfg.Search.DZFine}
	p.Search.Fitter = cfg.Search.Fitter
	p.Search.FitBackground = cfg.Search.FitBackground
	p.Search.PolyOrder = cfg.Search.PolyOrder
	p.Search.Zoom = cfg.Search.Zoom
	p.Search.Verbose = true
	p.ScalePhotometry = cfg.Photometry.Scale
	p.ScaleOrder = cfg.Photometry.ScaleOrder
	p.EWDraws = cfg.Templates.EWDraws

	if cfg.Search.PriorFile != "" {
		prior, err := loadPrior(cfg.Search.PriorFile)
		if err != nil {
			return p, err
		}
		p.Search.Prior = prior
	}
	return p, nil
}

func loadPhotometry(path string) (*beam.Photometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load photometry: %w", err)
	}
	var phot beam.Photometry
	if err := json.Unmarshal(data, &phot); err != nil {
		return nil, fmt.Errorf("parse photometry %s: %w", path, err)
	}
	if err := phot.Validate(); err != nil {
		return nil, err
	}
	return &phot, nil
}

func loadPrior(path string) (*zfit.Prior, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load prior: %w", err)
	}
	var prior zfit.Prior
	if err := json.Unmarshal(data, &prior); err != nil {
		return nil, fmt.Errorf("parse prior %s: %w", path, err)
	}
	if len(prior.Z) == 0 || len(prior.Z) != len(prior.PDF) {
		return nil, fmt.Errorf("prior %s: z/pdf arrays misaligned (%d/%d)",
			path, len(prior.Z), len(prior.PDF))
	}
	return &prior, nil
}

// writeOutputs saves the posterior summary and the full run output, returning
// the common path base.
func writeOutputs(out *zfit.RunOutput) (string, error) {
	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	base := filepath.Join(cfg.Output.Directory, cfg.Output.Prefix)

	if err := out.Result.Save(base + ".zfit.json"); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run output: %w", err)
	}
	if err := os.WriteFile(base+".full.json", data, 0644); err != nil {
		return "", err
	}
	return base, nil
}

func printSummary(out *zfit.RunOutput) {
	r := out.Result
	fmt.Printf("\nz_MAP  = %.5f\n", r.ZMAP)
	fmt.Printf("z_50   = %.5f  (68%% width %.5f, 95%% width %.5f)\n", r.Z50, r.ZWidth1, r.ZWidth2)
	fmt.Printf("z_risk = %.5f  (min risk %.4f)\n", r.ZRisk, r.MinRisk)
	fmt.Printf("chi2   = %.1f / %d dof\n", r.ChiMin, r.DoF)
	fmt.Printf("BIC    = %.1f template, %.1f polynomial\n", r.BICTemp, r.BICPoly)
	if len(out.PScale) > 0 {
		fmt.Printf("pscale = %v\n", out.PScale)
	}

	if len(out.EWs) == 0 {
		return
	}
	names := make([]string, 0, len(out.EWs))
	for name := range out.EWs {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nrest equivalent widths (16/50/84):")
	for _, name := range names {
		p := out.EWs[name]
		fmt.Printf("  %-24s %9.2f %9.2f %9.2f A\n", name, p[0], p[1], p[2])
	}
}

func printStars(sf *zfit.StarFit) {
	fmt.Println("\nstellar template ranking:")
	for i, name := range sf.Names {
		marker := " "
		if i == sf.Best {
			marker = "*"
		}
		fmt.Printf("  %s %-24s chi2 %12.1f\n", marker, name, sf.Chi2[i])
	}
}
