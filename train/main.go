// Command train fits a classifier to a labeled dataset and writes it
// to disk.  In ensemble mode one hidden Markov model is estimated per
// class label; in knn mode the dataset itself becomes the reference
// set.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"sort"

	"golang.org/x/exp/rand"

	"github.com/eonu/tempora/classifier"
	"github.com/eonu/tempora/hmm"
	"github.com/eonu/tempora/seq"
	"github.com/eonu/tempora/topology"
)

func main() {

	var dataname, outname, mode, kindArg string
	flag.StringVar(&dataname, "data", "", "Labeled dataset file")
	flag.StringVar(&outname, "outname", "", "Output classifier file")
	flag.StringVar(&mode, "mode", "ensemble", "Classifier type: ensemble or knn")
	flag.StringVar(&kindArg, "topology", "left-right", "Transition topology for ensemble models")

	var nstate, maxiter, k, radius int
	flag.IntVar(&nstate, "nstate", 3, "States per ensemble model")
	flag.IntVar(&maxiter, "maxiter", 20, "Baum-Welch iteration cap")
	flag.IntVar(&k, "k", 1, "Neighbors for knn mode")
	flag.IntVar(&radius, "radius", 10, "Elastic-distance band radius for knn mode")

	var seed uint64
	flag.Uint64Var(&seed, "seed", 0, "Random starting parameters when non-zero")
	flag.Parse()

	if dataname == "" || outname == "" {
		_, _ = io.WriteString(os.Stderr, "'data' and 'outname' are required arguments\n")
		os.Exit(1)
	}

	ds, err := seq.ReadDataset(dataname)
	if err != nil {
		log.Fatal(err)
	}

	switch mode {
	case "ensemble":
		trainEnsemble(ds, outname, kindArg, nstate, maxiter, seed)
	case "knn":
		trainKNN(ds, outname, k, radius)
	default:
		log.Fatalf("unknown mode %q", mode)
	}
}

func trainEnsemble(ds *seq.Dataset, outname, kindArg string, nstate, maxiter int, seed uint64) {

	kind, err := topology.ParseKind(kindArg)
	if err != nil {
		log.Fatal(err)
	}

	byClass := make(map[string][]seq.Sequence)
	for i, x := range ds.X {
		byClass[ds.Labels[i]] = append(byClass[ds.Labels[i]], x)
	}
	classes := make([]string, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	models := make([]classifier.Model, 0, len(classes))
	for _, label := range classes {
		opts := []hmm.Option{
			hmm.WithTopology(kind),
			hmm.WithMaxIter(maxiter),
			hmm.WithLogger(log.Default()),
		}
		if seed != 0 {
			opts = append(opts, hmm.WithRandomStart(rand.New(rand.NewSource(seed))))
		}

		g, err := hmm.New(label, nstate, opts...)
		if err != nil {
			log.Fatal(err)
		}
		frames, lengths := seq.Concat(byClass[label])
		if err := g.Fit(frames, lengths); err != nil {
			log.Fatal(err)
		}
		models = append(models, g)
	}

	ens := classifier.NewEnsemble()
	if err := ens.Fit(models); err != nil {
		log.Fatal(err)
	}
	if err := ens.Save(outname); err != nil {
		log.Fatal(err)
	}

	log.Printf("wrote ensemble of %d models to %s", len(models), outname)
}

func trainKNN(ds *seq.Dataset, outname string, k, radius int) {

	knn, err := classifier.NewKNN(k, radius)
	if err != nil {
		log.Fatal(err)
	}
	if err := knn.Fit(ds.X, ds.Labels); err != nil {
		log.Fatal(err)
	}
	if err := knn.Save(outname); err != nil {
		log.Fatal(err)
	}

	log.Printf("wrote %d-nn classifier with %d references to %s", k, ds.Len(), outname)
}
