package hmm

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/eonu/tempora/seq"
	"github.com/eonu/tempora/topology"
)

// Fit estimates the model parameters from concatenated observation
// frames using the Baum-Welch algorithm.  frames holds all sequences
// back to back; lengths recovers the per-sequence boundaries.  A model
// fits exactly once; further calls fail with ErrFitted.
func (g *Gaussian) Fit(frames [][]float64, lengths []int) error {

	if g.fitted {
		return ErrFitted
	}

	X, err := seq.Split(frames, lengths)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrData, err)
	}
	dim, err := seq.Check(X)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrData, err)
	}
	g.dim = dim

	if err := g.startParams(X); err != nil {
		return err
	}

	g.logf("fitting %q: %d sequences, %d states, %d features", g.label, len(X), g.nstate, dim)

	var llf float64
	for it := 0; it < g.maxIter; it++ {
		llfnew := g.estep(X)

		if it > 0 {
			if llfnew < llf {
				g.logf("log-likelihood decreased by %f", llf-llfnew)
			} else if llfnew-llf < g.tol {
				llf = llfnew
				break
			}
		}
		llf = llfnew
		g.logf("iteration %d: llf=%f", it, llf)
	}

	g.fitted = true
	g.nseqs = len(X)

	return nil
}

// startParams chooses the starting point for re-estimation: structural
// parameters from the topology (or explicit pre-fit overrides), and
// emission parameters spread around the marginal data moments.
func (g *Gaussian) startParams(X []seq.Sequence) error {

	topo, err := topology.New(g.kind, g.nstate)
	if err != nil {
		return err
	}

	switch {
	case g.startInit != nil:
		g.init = append([]float64(nil), g.startInit...)
	case g.rng != nil:
		g.init = topo.RandomInitial(g.rng)
	default:
		g.init = topo.UniformInitial()
	}

	switch {
	case g.startTrans != nil:
		g.trans = flatten(g.startTrans)
	case g.rng != nil:
		g.trans = flatten(topo.RandomTransitions(g.rng))
	default:
		g.trans = flatten(topo.UniformTransitions())
	}

	mean, sd := moments(X, g.dim)

	// Spread state means across the data spread so that states start
	// distinguishable; symmetry would stall re-estimation.
	n, d := g.nstate, g.dim
	g.mean = make([]float64, n*d)
	g.vr = make([]float64, n*d)
	for s := 0; s < n; s++ {
		off := 0.0
		if n > 1 {
			off = float64(2*s-(n-1)) / float64(2*(n-1))
		}
		for k := 0; k < d; k++ {
			g.mean[s*d+k] = mean[k] + off*sd[k]
			if g.rng != nil {
				g.mean[s*d+k] += distuv.Normal{Mu: 0, Sigma: 0.1 * sd[k], Src: g.rng}.Rand()
			}
			v := sd[k] * sd[k]
			if v < varMin {
				v = varMin
			}
			g.vr[s*d+k] = v
		}
	}

	return nil
}

// moments returns the per-feature marginal mean and standard deviation
// over every frame of every sequence.
func moments(X []seq.Sequence, dim int) ([]float64, []float64) {

	mean := make([]float64, dim)
	var num float64
	for _, x := range X {
		for _, frame := range x {
			floats.Add(mean, frame)
			num++
		}
	}
	floats.Scale(1/num, mean)

	sd := make([]float64, dim)
	for _, x := range X {
		for _, frame := range x {
			for k, y := range frame {
				y -= mean[k]
				sd[k] += y * y
			}
		}
	}
	for k := range sd {
		sd[k] = math.Sqrt(sd[k] / num)
		if sd[k] < 1e-4 {
			sd[k] = 1e-4
		}
	}

	return mean, sd
}

// estep accumulates expected sufficient statistics over all sequences
// concurrently and applies the parameter updates, honoring frozen
// parameter groups.  Returns the total log-likelihood under the
// parameters in force when called.
func (g *Gaussian) estep(X []seq.Sequence) float64 {

	n, d := g.nstate, g.dim

	initAcc := make([]float64, n)
	transAcc := make([]float64, n*n)
	meanAcc := make([]float64, n*d)
	sqAcc := make([]float64, n*d)
	wAcc := make([]float64, n)
	llf := make([]float64, len(X))

	var wg sync.WaitGroup
	var mut sync.Mutex

	for p := range X {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			li, tr, mn, sq, w, ll := g.accumulate(X[p])
			llf[p] = ll

			mut.Lock()
			floats.Add(initAcc, li)
			floats.Add(transAcc, tr)
			floats.Add(meanAcc, mn)
			floats.Add(sqAcc, sq)
			floats.Add(wAcc, w)
			mut.Unlock()
		}(p)
	}
	wg.Wait()

	if !g.frozen['s'] {
		normalizeSum(initAcc, 1/float64(n))
		copy(g.init, initAcc)
	}
	if !g.frozen['t'] {
		// Expected transition counts carry the old probabilities as
		// factors, so structural zeros survive the update.
		for st := 0; st < n; st++ {
			row := transAcc[st*n : (st+1)*n]
			if floats.Sum(row) < 1e-12 {
				copy(row, g.trans[st*n:(st+1)*n])
			} else {
				normalizeSum(row, 0)
			}
		}
		copy(g.trans, transAcc)
	}
	updateMeans := !g.frozen['m']
	updateVars := !g.frozen['c']
	if updateMeans || updateVars {
		for st := 0; st < n; st++ {
			w := wAcc[st]
			if w < 1e-10 {
				g.logf("underflow in emission update for state %d", st)
				continue
			}
			for k := 0; k < d; k++ {
				i := st*d + k
				mn := meanAcc[i] / w
				if updateMeans {
					g.mean[i] = mn
				}
				if updateVars {
					v := sqAcc[i]/w - mn*mn
					if v < varMin {
						v = varMin
					}
					g.vr[i] = v
				}
			}
		}
	}

	return floats.Sum(llf)
}

// accumulate computes one sequence's contribution to the expected
// sufficient statistics.
func (g *Gaussian) accumulate(x seq.Sequence) (initAcc, transAcc, meanAcc, sqAcc, wAcc []float64, llf float64) {

	n, d := g.nstate, g.dim
	T := x.Len()

	alpha := makeFloatArray(T, n)
	beta := makeFloatArray(T, n)
	llf = g.forward(x, alpha)
	g.backward(x, beta)

	initAcc = make([]float64, n)
	transAcc = make([]float64, n*n)
	meanAcc = make([]float64, n*d)
	sqAcc = make([]float64, n*d)
	wAcc = make([]float64, n)

	gamma := make([]float64, n)
	joint := make([]float64, n*n)
	b := make([]float64, n)

	for t := 0; t < T; t++ {

		floats.MulTo(gamma, alpha[t], beta[t])
		normalizeSum(gamma, 0)

		if t == 0 {
			floats.Add(initAcc, gamma)
		}
		for st := 0; st < n; st++ {
			w := gamma[st]
			wAcc[st] += w
			for k, y := range x[t] {
				meanAcc[st*d+k] += w * y
				sqAcc[st*d+k] += w * y * y
			}
		}

		if t == T-1 {
			continue
		}

		g.obsProbs(x[t+1], b)
		for st1 := 0; st1 < n; st1++ {
			for st2 := 0; st2 < n; st2++ {
				joint[st1*n+st2] = alpha[t][st1] * g.trans[st1*n+st2] * b[st2] * beta[t+1][st2]
			}
		}
		normalizeSum(joint, 0)
		floats.Add(transAcc, joint)
	}

	return initAcc, transAcc, meanAcc, sqAcc, wAcc, llf
}

// normalizeSum scales x to sum one, or fills it with z when the mass
// has vanished.
func normalizeSum(x []float64, z float64) {

	scale := floats.Sum(x)
	if scale < 1e-300 {
		for j := range x {
			x[j] = z
		}
		return
	}
	floats.Scale(1/scale, x)
}

// makeFloatArray makes a collection of r slices of length c, packed
// contiguously.
func makeFloatArray(r, c int) [][]float64 {

	bka := make([]float64, r*c)
	x := make([][]float64, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}
