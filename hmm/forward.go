package hmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/eonu/tempora/seq"
)

const log2pi = 1.8378770664093453

// logObsProb returns the log density of one frame under the diagonal
// Gaussian emission of state st.
func (g *Gaussian) logObsProb(frame []float64, st int) float64 {

	var lpr float64
	ii := st * g.dim
	for k, y := range frame {
		mn := g.mean[ii+k]
		v := g.vr[ii+k]
		z := y - mn
		lpr += -0.5 * (log2pi + math.Log(v) + z*z/v)
	}

	return lpr
}

// obsProbs fills b with the shifted emission probabilities for one
// frame: b[st] = exp(logObsProb - max over states), returning the
// shift.  Working with shifted probabilities keeps the scaled forward
// recursion away from underflow.
func (g *Gaussian) obsProbs(frame []float64, b []float64) float64 {

	for st := 0; st < g.nstate; st++ {
		b[st] = g.logObsProb(frame, st)
	}
	mx := floats.Max(b)
	for st := range b {
		b[st] = math.Exp(b[st] - mx)
	}

	return mx
}

// forward runs the scaled forward recursion for one sequence.  When
// alpha is non-nil it must have x.Len() rows of nstate columns and
// receives the per-time scaled forward probabilities.  Returns the
// sequence log-likelihood.
func (g *Gaussian) forward(x seq.Sequence, alpha [][]float64) float64 {

	n := g.nstate
	b := make([]float64, n)
	curr := make([]float64, n)
	prev := make([]float64, n)
	var llf float64

	for t, frame := range x {
		llf += g.obsProbs(frame, b)

		if t == 0 {
			for st := 0; st < n; st++ {
				curr[st] = g.init[st] * b[st]
			}
		} else {
			for st := 0; st < n; st++ {
				var s float64
				for st2 := 0; st2 < n; st2++ {
					s += prev[st2] * g.trans[st2*n+st]
				}
				curr[st] = s * b[st]
			}
		}

		c := floats.Sum(curr)
		if c <= 0 {
			return math.Inf(-1)
		}
		floats.Scale(1/c, curr)
		llf += math.Log(c)

		if alpha != nil {
			copy(alpha[t], curr)
		}
		prev, curr = curr, prev
	}

	return llf
}

// backward runs the scaled backward recursion for one sequence,
// filling beta with per-time vectors each normalized to sum one.
func (g *Gaussian) backward(x seq.Sequence, beta [][]float64) {

	n := g.nstate
	T := x.Len()
	b := make([]float64, n)

	for st := 0; st < n; st++ {
		beta[T-1][st] = 1 / float64(n)
	}

	for t := T - 2; t >= 0; t-- {
		g.obsProbs(x[t+1], b)
		for st := 0; st < n; st++ {
			var s float64
			for st2 := 0; st2 < n; st2++ {
				s += g.trans[st*n+st2] * b[st2] * beta[t+1][st2]
			}
			beta[t][st] = s
		}
		c := floats.Sum(beta[t])
		if c > 0 {
			floats.Scale(1/c, beta[t])
		}
	}
}

// LogLikelihood returns the log-likelihood of the model generating the
// observation sequence x, computed with the scaled forward recursion.
func (g *Gaussian) LogLikelihood(x seq.Sequence) (float64, error) {

	if !g.fitted {
		return 0, ErrNotFitted
	}
	if err := seq.CheckOne(x, g.dim); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrData, err)
	}

	return g.forward(x, nil), nil
}
