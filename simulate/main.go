// Command simulate writes a synthetic labeled sequence dataset for
// exercising the classifiers.  Each class gets its own randomly
// parameterized generative model, from which sequences of the
// requested lengths are sampled.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"

	"github.com/eonu/tempora/hmm"
	"github.com/eonu/tempora/seq"
	"github.com/eonu/tempora/topology"
)

func main() {

	var outname, lengthsArg, kindArg string
	flag.StringVar(&outname, "outname", "", "Output file name")
	flag.StringVar(&lengthsArg, "lengths", "60,90,120", "Comma-separated sequence lengths per class")
	flag.StringVar(&kindArg, "topology", "left-right", "Transition topology")

	var nclass, nstate, dim, nper int
	flag.IntVar(&nclass, "classes", 5, "Number of classes")
	flag.IntVar(&nstate, "nstate", 3, "States in the first class's model; each further class adds one")
	flag.IntVar(&dim, "dim", 1, "Frame dimensionality")
	flag.IntVar(&nper, "nper", 1, "Sequences per class per length")

	var seed uint64
	flag.Uint64Var(&seed, "seed", 1, "Random seed")
	flag.Parse()

	if outname == "" {
		_, _ = io.WriteString(os.Stderr, "'outname' is a required argument\n")
		os.Exit(1)
	}

	kind, err := topology.ParseKind(kindArg)
	if err != nil {
		log.Fatal(err)
	}

	var lengths []int
	for _, s := range strings.Split(lengthsArg, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 1 {
			log.Fatalf("bad length %q", s)
		}
		lengths = append(lengths, n)
	}

	rng := rand.New(rand.NewSource(seed))

	var X []seq.Sequence
	var labels []string
	for c := 0; c < nclass; c++ {
		label := fmt.Sprintf("c%d", c)
		model, err := classModel(label, kind, nstate+c, dim, c, rng)
		if err != nil {
			log.Fatal(err)
		}
		for _, T := range lengths {
			for r := 0; r < nper; r++ {
				x, _, err := model.Sample(rng, T)
				if err != nil {
					log.Fatal(err)
				}
				X = append(X, x)
				labels = append(labels, label)
			}
		}
	}

	ds, err := seq.NewDataset(X, labels)
	if err != nil {
		log.Fatal(err)
	}
	if err := ds.Save(outname); err != nil {
		log.Fatal(err)
	}

	log.Printf("wrote %d sequences over %d classes to %s", ds.Len(), nclass, outname)
}

// classModel builds a fitted model for one class with randomly drawn
// structural parameters and class-separated emission means.
func classModel(label string, kind topology.Kind, nstate, dim, c int, rng *rand.Rand) (*hmm.Gaussian, error) {

	topo, err := topology.New(kind, nstate)
	if err != nil {
		return nil, err
	}

	init := topo.RandomInitial(rng)
	trans := topo.RandomTransitions(rng)

	means := make([][]float64, nstate)
	vars := make([][]float64, nstate)
	for s := 0; s < nstate; s++ {
		means[s] = make([]float64, dim)
		vars[s] = make([]float64, dim)
		for k := 0; k < dim; k++ {
			means[s][k] = 3*float64(c) + 0.5*float64(s) + 0.2*rng.NormFloat64()
			vars[s][k] = 1
		}
	}

	return hmm.FromParams(label, kind, init, trans, means, vars, 0)
}
