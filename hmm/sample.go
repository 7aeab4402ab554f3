package hmm

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/eonu/tempora/seq"
)

// Sample draws a random observation sequence of the given length from
// the fitted model, returning the sequence and the hidden state path
// that generated it.
func (g *Gaussian) Sample(rng *rand.Rand, length int) (seq.Sequence, []int, error) {

	if !g.fitted {
		return nil, nil, ErrNotFitted
	}
	if length < 1 {
		return nil, nil, fmt.Errorf("%w: non-positive sample length %d", ErrData, length)
	}

	n, d := g.nstate, g.dim
	states := make([]int, length)
	x := make(seq.Sequence, length)

	states[0] = genDiscrete(g.init, rng)
	for t := 1; t < length; t++ {
		row := g.trans[states[t-1]*n : (states[t-1]+1)*n]
		states[t] = genDiscrete(row, rng)
	}

	for t := 0; t < length; t++ {
		frame := make([]float64, d)
		ii := states[t] * d
		for k := 0; k < d; k++ {
			frame[k] = distuv.Normal{
				Mu:    g.mean[ii+k],
				Sigma: math.Sqrt(g.vr[ii+k]),
				Src:   rng,
			}.Rand()
		}
		x[t] = frame
	}

	return x, states, nil
}

// genDiscrete draws from the given probability vector, which must sum
// to one.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	p := 0.0
	for j := range pr {
		p += pr[j]
		if u < p {
			return j
		}
	}

	return len(pr) - 1
}
