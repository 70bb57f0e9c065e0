package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grismfit/internal/beam"
	"grismfit/internal/simulate"
	"grismfit/internal/spectra"
	"grismfit/internal/zfit"
)

var (
	demoZ         float64
	demoSigma     float64
	demoSaveGroup string
)

// demoCmd synthesizes a scene and fits it
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Synthesize a two-band observation and fit it end-to-end",
	Long: `Renders a flat continuum plus an [OIII]+Hb emission complex through two
synthetic grism bands, attaches synthetic photometry, and runs the full
fitting sequence. The recovered redshift should match the --z value.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Float64Var(&demoZ, "z", 1.0, "True redshift of the synthetic source")
	demoCmd.Flags().Float64Var(&demoSigma, "noise", 0.02, "Per-pixel noise sigma")
	demoCmd.Flags().StringVar(&demoSaveGroup, "save-group", "", "Save the synthetic group file to this path")
}

func demoDispersers() []*simulate.Disperser {
	return []*simulate.Disperser{
		{Grism: "SYNB", ShapeY: 7, ShapeX: 60, WaveMin: 9000, Dispersion: 45, TraceCenter: 3, TraceSigma: 1.1},
		{Grism: "SYNR", ShapeY: 7, ShapeX: 60, WaveMin: 10800, Dispersion: 45, TraceCenter: 3, TraceSigma: 1.1},
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	cont, err := spectra.New("flat continuum", []float64{100, 30000}, []float64{1, 1})
	if err != nil {
		return err
	}
	line, ok := spectra.LineTemplate("OIII+Hb", cfg.Templates.FWHM)
	if !ok {
		return fmt.Errorf("line template OIII+Hb missing from the library")
	}
	src := cont.Redshift(demoZ, nil).Scale(2).Add(line.Redshift(demoZ, nil).Scale(3))

	dispersers := demoDispersers()
	group, err := simulate.Observe(dispersers, src.Wave, src.Flux, demoSigma)
	if err != nil {
		return err
	}

	filters := []*beam.Filter{
		beam.TopHatFilter("demo1", 10000, 1200),
		beam.TopHatFilter("demo2", 12200, 1000),
	}
	phot, err := simulate.SyntheticPhotometry(filters, src.Wave, src.Flux, 0.05)
	if err != nil {
		return err
	}
	if group, err = group.WithPhotometry(phot); err != nil {
		return err
	}

	if demoSaveGroup != "" {
		file, err := simulate.NewFile("demo", dispersers, group.Exposures)
		if err != nil {
			return err
		}
		file.Photometry = phot
		if err := file.Save(demoSaveGroup); err != nil {
			return err
		}
		logger.Info("synthetic group saved", zap.String("path", demoSaveGroup))
	}

	eng := zfit.New(group, zfit.WithLogger(logger), zfit.WithWorkers(cfg.Workers))

	t0, t1, err := librarySets(false)
	if err != nil {
		return err
	}

	params, err := runParams()
	if err != nil {
		return err
	}
	// Center the search on the known input so any --z works with the
	// default configuration.
	half := 0.25 * (1 + demoZ)
	lo := demoZ - half
	if lo < 0.01 {
		lo = 0.01
	}
	params.Search.ZR = [2]float64{lo, demoZ + half}

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
	fmt.Printf("\ntrue z = %.4f, recovered z_MAP = %.4f\n", demoZ, out.Result.ZMAP)
	return nil
}
