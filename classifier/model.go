package classifier

import (
	"github.com/eonu/tempora/seq"
	"github.com/eonu/tempora/topology"
)

// Model is the capability an ensemble requires of each per-class
// generative model: a class label, the number of sequences it was
// trained on, and the log-likelihood of one observation sequence.
type Model interface {
	Label() string
	NSeqs() int
	LogLikelihood(x seq.Sequence) (float64, error)
}

// paramModel additionally exposes the fitted parameters, which is what
// ensemble persistence serializes.  *hmm.Gaussian satisfies it.
type paramModel interface {
	Model
	NState() int
	Topology() topology.Kind
	Initial() []float64
	Transitions() [][]float64
	Means() [][]float64
	Variances() [][]float64
}
