package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for a fitting run.
type Config struct {
	Name string `yaml:"name"`

	Search     SearchConfig     `yaml:"search"`
	Templates  TemplateConfig   `yaml:"templates"`
	Photometry PhotometryConfig `yaml:"photometry"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Workers caps parallel grid evaluations; zero or one runs the grid
	// sequentially.
	Workers int `yaml:"workers"`
}

// SearchConfig configures the redshift grid search.
type SearchConfig struct {
	ZMin     float64 `yaml:"z_min"`
	ZMax     float64 `yaml:"z_max"`
	DZCoarse float64 `yaml:"dz_coarse"`
	DZFine   float64 `yaml:"dz_fine"`

	// Fitter is the constrained solver: nnls, lstsq or bvls.
	Fitter        string `yaml:"fitter"`
	FitBackground bool   `yaml:"fit_background"`
	PolyOrder     int    `yaml:"poly_order"`
	Zoom          bool   `yaml:"zoom"`

	// PriorFile points to a JSON redshift prior ({"z": [...], "pdf": [...]}).
	PriorFile string `yaml:"prior_file"`
}

// TemplateConfig configures the built-in template library.
type TemplateConfig struct {
	// FWHM is the emission-line width, km/s when Velocity is set.
	FWHM     float64 `yaml:"fwhm"`
	Velocity bool    `yaml:"velocity"`
	EWDraws  int     `yaml:"ew_draws"`
}

// PhotometryConfig attaches broadband fluxes to the fit.
type PhotometryConfig struct {
	File       string `yaml:"file"`
	Scale      bool   `yaml:"scale"`
	ScaleOrder int    `yaml:"scale_order"`
}

// OutputConfig controls where results land.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "grismfit",

		Search: SearchConfig{
			ZMin:          0.65,
			ZMax:          1.6,
			DZCoarse:      0.005,
			DZFine:        0.0004,
			Fitter:        "nnls",
			FitBackground: true,
			PolyOrder:     3,
			Zoom:          true,
		},

		Templates: TemplateConfig{
			FWHM:     1000,
			Velocity: true,
			EWDraws:  1000,
		},

		Photometry: PhotometryConfig{
			Scale:      true,
			ScaleOrder: 0,
		},

		Output: OutputConfig{
			Directory: "out",
			Prefix:    "zfit",
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		Workers: 1,
	}
}

// Load reads a YAML run configuration. A missing file yields the defaults,
// so a bare invocation works without any setup.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the configuration for values the engine would reject.
func (c *Config) Validate() error {
	s := c.Search
	stars := s.ZMin == 0 && s.ZMax == 0
	if !stars && s.ZMax <= s.ZMin {
		return fmt.Errorf("search: z_max %g must exceed z_min %g", s.ZMax, s.ZMin)
	}
	if s.DZCoarse <= 0 || s.DZFine <= 0 {
		return fmt.Errorf("search: grid steps must be positive (dz_coarse %g, dz_fine %g)",
			s.DZCoarse, s.DZFine)
	}
	if s.DZFine > s.DZCoarse {
		return fmt.Errorf("search: dz_fine %g exceeds dz_coarse %g", s.DZFine, s.DZCoarse)
	}
	switch s.Fitter {
	case "nnls", "lstsq", "bvls":
	default:
		return fmt.Errorf("search: unknown fitter %q (want nnls, lstsq or bvls)", s.Fitter)
	}
	if s.PolyOrder < 0 {
		return fmt.Errorf("search: poly_order must be non-negative, got %d", s.PolyOrder)
	}
	if c.Templates.FWHM <= 0 {
		return fmt.Errorf("templates: fwhm must be positive, got %g", c.Templates.FWHM)
	}
	if c.Templates.EWDraws < 0 {
		return fmt.Errorf("templates: ew_draws must be non-negative, got %d", c.Templates.EWDraws)
	}
	if c.Photometry.ScaleOrder < 0 {
		return fmt.Errorf("photometry: scale_order must be non-negative, got %d", c.Photometry.ScaleOrder)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}
