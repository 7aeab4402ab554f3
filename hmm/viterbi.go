package hmm

import (
	"fmt"
	"math"

	"github.com/eonu/tempora/seq"
)

// Decode returns the most likely state path for the observation
// sequence x under the fitted model, together with the path's joint
// log-probability.
func (g *Gaussian) Decode(x seq.Sequence) ([]int, float64, error) {

	if !g.fitted {
		return nil, 0, ErrNotFitted
	}
	if err := seq.CheckOne(x, g.dim); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrData, err)
	}

	n := g.nstate
	T := x.Len()
	lpr := make([]float64, T*n)
	lpt := make([]int, T*n)
	wk := make([]float64, n)

	logTrans := make([]float64, n*n)
	for j, p := range g.trans {
		logTrans[j] = math.Log(p)
	}

	for st := 0; st < n; st++ {
		lpr[st] = math.Log(g.init[st]) + g.logObsProb(x[0], st)
	}

	for t := 1; t < T; t++ {
		j0 := (t - 1) * n
		j1 := t * n
		for st2 := 0; st2 < n; st2++ {
			for st1 := 0; st1 < n; st1++ {
				wk[st1] = lpr[j0+st1] + logTrans[st1*n+st2]
			}
			jj := argmax(wk)
			lpt[j1+st2] = jj
			lpr[j1+st2] = wk[jj] + g.logObsProb(x[t], st2)
		}
	}

	// Traceback from the best final state.
	path := make([]int, T)
	jt := (T - 1) * n
	path[T-1] = argmax(lpr[jt : jt+n])
	best := lpr[jt+path[T-1]]
	for t := T - 2; t >= 0; t-- {
		path[t] = lpt[(t+1)*n+path[t+1]]
	}

	return path, best, nil
}

func argmax(x []float64) int {

	j := 0
	v := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > v {
			v = x[i]
			j = i
		}
	}

	return j
}
