// Package hmm implements a hidden Markov model with multivariate
// Gaussian emissions (diagonal covariance), fitted with the Baum-Welch
// algorithm.  One fitted model scores the log-likelihood of a single
// observation sequence, which is the contract the ensemble classifier
// consumes.
package hmm

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/exp/rand"

	"github.com/eonu/tempora/topology"
)

const (
	// Variances are never allowed to fall below this value.
	varMin = 1e-8

	defaultMaxIter = 20
	defaultTol     = 1e-8
)

var (
	// ErrNotFitted indicates use of a model before Fit.
	ErrNotFitted = errors.New("hmm: model is not fitted")

	// ErrFitted indicates an operation only permitted before Fit.
	ErrFitted = errors.New("hmm: model is already fitted")

	// ErrConfig indicates an invalid model configuration.
	ErrConfig = errors.New("hmm: invalid configuration")

	// ErrData indicates invalid training or scoring data.
	ErrData = errors.New("hmm: invalid data")
)

// Freezable parameter groups, identified the way the fit call names
// them: s initial, t transitions, m means, c covariances.
const freezable = "stmc"

// Gaussian is a hidden Markov model over fixed-dimensionality frames
// with one diagonal Gaussian emission per state.  A model is assigned
// the label of the class whose sequences it learns.
type Gaussian struct {
	label   string
	nstate  int
	kind    topology.Kind
	rng     *rand.Rand
	maxIter int
	tol     float64
	frozen  map[rune]bool
	logger  *log.Logger

	// Pre-fit structural overrides.
	startInit  []float64
	startTrans [][]float64

	// Fitted state.  Trans, mean and vr are flat, row-major.
	fitted bool
	nseqs  int
	dim    int
	init   []float64
	trans  []float64
	mean   []float64
	vr     []float64
}

// Option configures a Gaussian model before fitting.
type Option func(*Gaussian)

// WithTopology sets the structural class of the transition matrix.
// The default is left-right.
func WithTopology(k topology.Kind) Option {
	return func(g *Gaussian) { g.kind = k }
}

// WithRandomStart draws the starting initial distribution and
// transition matrix from the topology's Dirichlet sampler, and jitters
// the starting emission means, using rng.  Without this option the
// starting parameters are the topology's uniform ones.
func WithRandomStart(rng *rand.Rand) Option {
	return func(g *Gaussian) { g.rng = rng }
}

// WithMaxIter bounds the number of Baum-Welch iterations.
func WithMaxIter(n int) Option {
	return func(g *Gaussian) { g.maxIter = n }
}

// WithTol sets the log-likelihood convergence tolerance.
func WithTol(tol float64) Option {
	return func(g *Gaussian) { g.tol = tol }
}

// WithLogger directs fitting progress messages to lg.
func WithLogger(lg *log.Logger) Option {
	return func(g *Gaussian) { g.logger = lg }
}

// New returns an unfitted Gaussian model for the class named by label.
func New(label string, nstate int, opts ...Option) (*Gaussian, error) {

	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrConfig)
	}
	if nstate < 1 {
		return nil, fmt.Errorf("%w: state count must be at least 1, got %d", ErrConfig, nstate)
	}

	g := &Gaussian{
		label:   label,
		nstate:  nstate,
		kind:    topology.LeftRight,
		maxIter: defaultMaxIter,
		tol:     defaultTol,
		frozen:  make(map[rune]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxIter < 1 {
		return nil, fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrConfig, g.maxIter)
	}
	if _, err := topology.New(g.kind, g.nstate); err != nil {
		return nil, err
	}

	return g, nil
}

// FromParams builds an already-fitted model directly from its
// parameters.  The initial distribution and transition matrix are
// validated against the topology; means and variances are state-major
// with one row per state.
func FromParams(label string, kind topology.Kind, init []float64, trans, means, vars [][]float64, nseqs int) (*Gaussian, error) {

	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrConfig)
	}
	n := len(init)
	topo, err := topology.New(kind, n)
	if err != nil {
		return nil, err
	}
	if err := topo.ValidateInitial(init); err != nil {
		return nil, err
	}
	if err := topo.ValidateTransitions(trans); err != nil {
		return nil, err
	}
	if len(means) != n || len(vars) != n {
		return nil, fmt.Errorf("%w: need one emission row per state", ErrConfig)
	}
	dim := len(means[0])
	if dim < 1 {
		return nil, fmt.Errorf("%w: emission rows are empty", ErrConfig)
	}
	for s := 0; s < n; s++ {
		if len(means[s]) != dim || len(vars[s]) != dim {
			return nil, fmt.Errorf("%w: emission rows have inconsistent dimensionality", ErrConfig)
		}
		for _, v := range vars[s] {
			if v <= 0 {
				return nil, fmt.Errorf("%w: variances must be positive", ErrConfig)
			}
		}
	}
	if nseqs < 0 {
		return nil, fmt.Errorf("%w: negative sequence count", ErrConfig)
	}

	g := &Gaussian{
		label:   label,
		nstate:  n,
		kind:    kind,
		maxIter: defaultMaxIter,
		tol:     defaultTol,
		frozen:  make(map[rune]bool),
		fitted:  true,
		nseqs:   nseqs,
		dim:     dim,
	}
	g.init = append([]float64(nil), init...)
	g.trans = flatten(trans)
	g.mean = flatten(means)
	g.vr = flatten(vars)

	return g, nil
}

// Freeze prevents the named parameter groups from being updated during
// Baum-Welch re-estimation.  params is any combination of the
// characters "stmc".  Must be called before Fit.
func (g *Gaussian) Freeze(params string) error {

	if g.fitted {
		return ErrFitted
	}
	for _, r := range params {
		if !strings.ContainsRune(freezable, r) {
			return fmt.Errorf("%w: unknown frozen parameter %q", ErrConfig, string(r))
		}
		g.frozen[r] = true
	}

	return nil
}

// SetInitial overrides the starting initial state distribution.  Must
// be called before Fit; the vector is validated against the topology.
func (g *Gaussian) SetInitial(v []float64) error {

	if g.fitted {
		return ErrFitted
	}
	topo, _ := topology.New(g.kind, g.nstate)
	if err := topo.ValidateInitial(v); err != nil {
		return err
	}
	g.startInit = append([]float64(nil), v...)

	return nil
}

// SetTransitions overrides the starting transition matrix.  Must be
// called before Fit; the matrix is validated against the topology.
func (g *Gaussian) SetTransitions(m [][]float64) error {

	if g.fitted {
		return ErrFitted
	}
	topo, _ := topology.New(g.kind, g.nstate)
	if err := topo.ValidateTransitions(m); err != nil {
		return err
	}
	g.startTrans = clone2d(m)

	return nil
}

// Label returns the class label assigned to the model.
func (g *Gaussian) Label() string { return g.label }

// NSeqs returns the number of training sequences the model was fitted on.
func (g *Gaussian) NSeqs() int { return g.nseqs }

// NState returns the state count.
func (g *Gaussian) NState() int { return g.nstate }

// Topology returns the structural class of the transition matrix.
func (g *Gaussian) Topology() topology.Kind { return g.kind }

// Fitted reports whether the model has been fitted.
func (g *Gaussian) Fitted() bool { return g.fitted }

// Dim returns the frame dimensionality seen at fit time.
func (g *Gaussian) Dim() int { return g.dim }

// Initial returns a copy of the fitted initial state distribution.
func (g *Gaussian) Initial() []float64 {
	return append([]float64(nil), g.init...)
}

// Transitions returns a copy of the fitted transition matrix.
func (g *Gaussian) Transitions() [][]float64 {
	return unflatten(g.trans, g.nstate, g.nstate)
}

// Means returns a copy of the per-state emission means.
func (g *Gaussian) Means() [][]float64 {
	return unflatten(g.mean, g.nstate, g.dim)
}

// Variances returns a copy of the per-state emission variances.
func (g *Gaussian) Variances() [][]float64 {
	return unflatten(g.vr, g.nstate, g.dim)
}

func (g *Gaussian) logf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func flatten(m [][]float64) []float64 {

	if len(m) == 0 {
		return nil
	}
	x := make([]float64, 0, len(m)*len(m[0]))
	for _, row := range m {
		x = append(x, row...)
	}

	return x
}

func unflatten(x []float64, r, c int) [][]float64 {

	bk := append([]float64(nil), x...)
	m := make([][]float64, r)
	for i := range m {
		m[i] = bk[i*c : (i+1)*c]
	}

	return m
}

func clone2d(m [][]float64) [][]float64 {

	c := make([][]float64, len(m))
	for i, row := range m {
		c[i] = append([]float64(nil), row...)
	}

	return c
}
