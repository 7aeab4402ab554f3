// Package topology generates and validates the structural parameters of
// a Markov chain: the initial state distribution and the transition
// matrix, constrained to one of a closed set of structural classes.
package topology

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"
)

// tol bounds how far a probability vector may drift from summing to one.
const tol = 1e-8

var (
	// ErrKind indicates an unknown topology kind.
	ErrKind = errors.New("topology: unknown topology kind")

	// ErrStates indicates an invalid state count.
	ErrStates = errors.New("topology: state count must be at least 1")

	// ErrShape indicates a vector or matrix of the wrong shape.
	ErrShape = errors.New("topology: wrong shape")

	// ErrNormalization indicates probabilities that do not sum to one.
	ErrNormalization = errors.New("topology: probabilities must sum to one")

	// ErrStructure indicates a violated structural zero-pattern.
	ErrStructure = errors.New("topology: structural constraint violated")
)

// Kind identifies a structural class for the transition matrix.
type Kind int

const (
	// Ergodic places no structural constraint on transitions.
	Ergodic Kind = iota

	// LeftRight constrains the transition matrix to be upper-triangular.
	LeftRight

	// Linear permits only self-transitions and transitions to the next state.
	Linear
)

// kindNames doubles as the closed set of valid kinds.
var kindNames = map[Kind]string{
	Ergodic:   "ergodic",
	LeftRight: "left-right",
	Linear:    "linear",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a topology name to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrKind, s)
}

// span is the half-open column range [lo, hi) of free parameters in one
// transition matrix row.  Everything outside the span is a structural zero.
type span struct {
	lo, hi int
}

// rowSpans is the per-kind dispatch table: each kind is fully described
// by the free span of row i plus whether exact zeros inside the span
// deserve a warning (an iterative re-estimation procedure can never
// relearn a zero transition probability).
var rowSpans = map[Kind]struct {
	row      func(i, n int) span
	zeroWarn bool
}{
	Ergodic: {
		row:      func(i, n int) span { return span{0, n} },
		zeroWarn: true,
	},
	LeftRight: {
		row: func(i, n int) span { return span{i, n} },
	},
	Linear: {
		row: func(i, n int) span {
			hi := i + 2
			if hi > n {
				hi = n
			}
			return span{i, hi}
		},
	},
}

// Topology constrains the free parameters of a Markov chain with a
// fixed number of states to a structural class.
type Topology struct {
	kind   Kind
	n      int
	logger *log.Logger
}

// New returns a Topology of the given kind over n states.
func New(kind Kind, n int) (*Topology, error) {

	if _, ok := rowSpans[kind]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrKind, int(kind))
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrStates, n)
	}

	return &Topology{kind: kind, n: n}, nil
}

// SetLogger directs non-fatal validation warnings to lg.  The default
// is standard error.
func (t *Topology) SetLogger(lg *log.Logger) { t.logger = lg }

// Kind returns the structural class.
func (t *Topology) Kind() Kind { return t.kind }

// NStates returns the state count.
func (t *Topology) NStates() int { return t.n }

func (t *Topology) warnf(format string, args ...interface{}) {
	if t.logger == nil {
		t.logger = log.New(os.Stderr, "", log.Ltime)
	}
	t.logger.Printf(format, args...)
}

// UniformInitial returns the discrete uniform initial state distribution.
func (t *Topology) UniformInitial() []float64 {

	v := make([]float64, t.n)
	for i := range v {
		v[i] = 1 / float64(t.n)
	}

	return v
}

// RandomInitial samples the initial state distribution from a symmetric
// Dirichlet over all states.
func (t *Topology) RandomInitial(rng *rand.Rand) []float64 {

	v := make([]float64, t.n)
	dirichlet(v, rng)

	return v
}

// UniformTransitions returns the transition matrix in which each row is
// uniform over its free span.
func (t *Topology) UniformTransitions() [][]float64 {

	m := zeros(t.n)
	for i := 0; i < t.n; i++ {
		sp := rowSpans[t.kind].row(i, t.n)
		for j := sp.lo; j < sp.hi; j++ {
			m[i][j] = 1 / float64(sp.hi-sp.lo)
		}
	}

	return m
}

// RandomTransitions returns the transition matrix in which each row is
// an independent symmetric Dirichlet sample over its free span.
func (t *Topology) RandomTransitions(rng *rand.Rand) [][]float64 {

	m := zeros(t.n)
	for i := 0; i < t.n; i++ {
		sp := rowSpans[t.kind].row(i, t.n)
		dirichlet(m[i][sp.lo:sp.hi], rng)
	}

	return m
}

// ValidateInitial checks the shape and normalization of an initial
// state distribution.
func (t *Topology) ValidateInitial(v []float64) error {

	if len(v) != t.n {
		return fmt.Errorf("%w: initial distribution has length %d, want %d", ErrShape, len(v), t.n)
	}
	if s := floats.Sum(v); math.Abs(s-1) > tol {
		return fmt.Errorf("%w: initial distribution sums to %v", ErrNormalization, s)
	}

	return nil
}

// ValidateTransitions checks the shape, row normalization and structural
// zero-pattern of a transition matrix.  For the ergodic kind, exact
// zeros are reported through the logger but do not fail validation.
func (t *Topology) ValidateTransitions(m [][]float64) error {

	if len(m) != t.n {
		return fmt.Errorf("%w: transition matrix has %d rows, want %d", ErrShape, len(m), t.n)
	}
	for i, row := range m {
		if len(row) != t.n {
			return fmt.Errorf("%w: transition matrix row %d has length %d, want %d",
				ErrShape, i, len(row), t.n)
		}
	}

	for i, row := range m {
		if s := floats.Sum(row); math.Abs(s-1) > tol {
			return fmt.Errorf("%w: transition matrix row %d sums to %v", ErrNormalization, i, s)
		}
	}

	ks := rowSpans[t.kind]
	var zeros bool
	for i, row := range m {
		sp := ks.row(i, t.n)
		for j, p := range row {
			if j < sp.lo || j >= sp.hi {
				if p != 0 {
					return fmt.Errorf("%w: %s matrix has non-zero entry at (%d,%d)",
						ErrStructure, t.kind, i, j)
				}
			} else if p == 0 {
				zeros = true
			}
		}
	}
	if ks.zeroWarn && zeros {
		t.warnf("zero probabilities in %s transition matrix will not be relearned during re-estimation", t.kind)
	}

	return nil
}

// dirichlet fills dst with a symmetric Dirichlet(1,...,1) sample.
func dirichlet(dst []float64, rng *rand.Rand) {

	if len(dst) == 1 {
		dst[0] = 1
		return
	}

	alpha := make([]float64, len(dst))
	for i := range alpha {
		alpha[i] = 1
	}
	distmv.NewDirichlet(alpha, rng).Rand(dst)
}

func zeros(n int) [][]float64 {

	bk := make([]float64, n*n)
	m := make([][]float64, n)
	for i := range m {
		m[i] = bk[i*n : (i+1)*n]
	}

	return m
}
