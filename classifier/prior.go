package classifier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

type priorKind int

const (
	priorFrequency priorKind = iota
	priorUniform
	priorExplicit
)

// Prior selects how the class prior probabilities entering the MAP
// decision rule are obtained.  The zero value is the frequency prior.
type Prior struct {
	kind    priorKind
	weights []float64
}

// Frequency weights each class by the proportion of training sequences
// its model was fitted on, over the full ensemble.
func Frequency() Prior { return Prior{kind: priorFrequency} }

// Uniform gives every class the same prior, which is equivalent to
// ignoring the prior.
func Uniform() Prior { return Prior{kind: priorUniform} }

// Explicit supplies the per-class prior probabilities directly, aligned
// to sorted label order.
func Explicit(weights []float64) Prior {
	return Prior{kind: priorExplicit, weights: weights}
}

// logPriors resolves the prior to per-class log-probabilities aligned
// with the given models, which are already in sorted label order.
func (p Prior) logPriors(models []Model) ([]float64, error) {

	m := len(models)
	w := make([]float64, m)

	switch p.kind {
	case priorFrequency:
		var total float64
		for _, mod := range models {
			total += float64(mod.NSeqs())
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: frequency prior requires models with recorded training sequences", ErrConfig)
		}
		for i, mod := range models {
			w[i] = float64(mod.NSeqs()) / total
		}

	case priorUniform:
		for i := range w {
			w[i] = 1 / float64(m)
		}

	case priorExplicit:
		if len(p.weights) != m {
			return nil, fmt.Errorf("%w: prior has %d entries, want %d", ErrConfig, len(p.weights), m)
		}
		for _, v := range p.weights {
			if v < 0 {
				return nil, fmt.Errorf("%w: prior entries must be non-negative", ErrConfig)
			}
		}
		if s := floats.Sum(p.weights); math.Abs(s-1) > 1e-8 {
			return nil, fmt.Errorf("%w: prior sums to %v", ErrConfig, s)
		}
		copy(w, p.weights)

	default:
		return nil, fmt.Errorf("%w: unknown prior", ErrConfig)
	}

	for i := range w {
		w[i] = math.Log(w[i])
	}

	return w, nil
}
