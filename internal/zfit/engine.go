// Package zfit implements the redshift/template fitting engine: per-redshift
// design matrix construction, constrained linear solves, coarse-to-fine grid
// search with peak detection and parabolic refinement, and the posterior/risk
// analysis that turns a chi-squared curve into a redshift estimate.
package zfit

import (
	"errors"
	"io"
	"os"

	"go.uber.org/zap"

	"grismfit/internal/beam"
	"grismfit/internal/spectra"
)

// Solver names accepted by FitOptions.Fitter.
const (
	FitterNNLS  = "nnls"
	FitterLstsq = "lstsq"
	FitterBVLS  = "bvls"
)

// coeffScale conditions the template rows of the design matrix, keeping the
// solver in a reasonable dynamic range for fluxes of order 1e-19. It is
// removed from reported coefficients and covariances.
const coeffScale = 1e-19

// pedestalOffset is the flat offset added to spectral data for the
// non-negative solvers so background fluctuations below zero stay reachable.
const pedestalOffset = 0.04

// ErrDegenerateFit reports a design matrix with no usable columns, so no
// finite solution exists at the requested redshift.
var ErrDegenerateFit = errors.New("degenerate fit: design matrix has no finite columns")

// Engine fits template combinations to one exposure group. The group is
// treated as read-only except for the transient flux-rescaling coefficients
// (SetPScale), which must not change while a fit is running.
type Engine struct {
	group    *beam.Group
	igm      spectra.Transmission
	log      *zap.Logger
	progress io.Writer
	workers  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIGM sets the intergalactic absorption model applied to templates
// redshifted beyond the absorption threshold. Default is no absorption.
func WithIGM(igm spectra.Transmission) Option {
	return func(e *Engine) { e.igm = igm }
}

// WithLogger attaches a structured logger. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithProgress sets the sink for the in-place progress line written during
// grid searches. Default is stderr.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// WithWorkers enables parallel grid evaluation with up to n goroutines.
// Values below 2 keep the sequential loop.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New builds an engine around a fitting group.
func New(group *beam.Group, opts ...Option) *Engine {
	e := &Engine{
		group:    group,
		log:      zap.NewNop(),
		progress: os.Stderr,
		workers:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Group returns the engine's exposure group.
func (e *Engine) Group() *beam.Group {
	return e.group
}

// FitOptions select the solver behavior for a single-redshift fit.
type FitOptions struct {
	// Fitter is one of nnls, lstsq or bvls.
	Fitter string
	// FitBackground adds one nuisance background parameter per exposure.
	FitBackground bool
	// Uncertainties selects covariance output: 0 none, 1 inverse Gram of
	// the reduced design, 2 additionally recomputed with zero-coefficient
	// columns masked out.
	Uncertainties int
}

// DefaultFitOptions mirror the common search configuration.
func DefaultFitOptions() FitOptions {
	return FitOptions{Fitter: FitterNNLS, FitBackground: true, Uncertainties: 1}
}
