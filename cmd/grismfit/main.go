package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"grismfit/internal/config"
	"grismfit/internal/version"
)

var (
	// Global flags
	cfgPath string
	verbose bool
	workers int

	// Logger and run configuration shared by the subcommands
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "grismfit",
	Short: "Redshift and template fitting for slitless grism spectroscopy",
	Long: `grismfit fits galaxy redshifts from 2D slitless spectroscopy.

All exposures of a source are fit jointly: at every candidate redshift the
template library is projected through each exposure's dispersion model and
solved as one constrained least-squares system, optionally tied to broadband
photometry. A coarse-to-fine grid search yields the chi-squared curve, the
redshift posterior, credible intervals and the minimum-risk estimate.`,
	Version: version.String(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		lvl, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "grismfit.yaml", "Run configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Parallel grid evaluations (overrides config)")

	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(templatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
