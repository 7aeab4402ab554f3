// Command evaluate loads a fitted classifier and a labeled dataset and
// reports the classification accuracy and confusion matrix.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/eonu/tempora/classifier"
	"github.com/eonu/tempora/seq"
)

func main() {

	var ensname, knnname, dataname, priorArg string
	flag.StringVar(&ensname, "ensemble", "", "Fitted ensemble classifier file")
	flag.StringVar(&knnname, "knn", "", "Fitted k-NN classifier file")
	flag.StringVar(&dataname, "data", "", "Labeled dataset file")
	flag.StringVar(&priorArg, "prior", "frequency", "Class prior for the ensemble: frequency or uniform")

	var workers int
	flag.IntVar(&workers, "workers", 1, "Number of parallel prediction workers")
	flag.Parse()

	if dataname == "" {
		_, _ = io.WriteString(os.Stderr, "'data' is a required argument\n")
		os.Exit(1)
	}
	if (ensname == "") == (knnname == "") {
		_, _ = io.WriteString(os.Stderr, "exactly one of 'ensemble' and 'knn' is required\n")
		os.Exit(1)
	}

	ds, err := seq.ReadDataset(dataname)
	if err != nil {
		log.Fatal(err)
	}

	var acc float64
	var cm [][]int
	var classes []string

	if ensname != "" {
		var prior classifier.Prior
		switch priorArg {
		case "frequency":
			prior = classifier.Frequency()
		case "uniform":
			prior = classifier.Uniform()
		default:
			log.Fatalf("unknown prior %q", priorArg)
		}

		ens, err := classifier.LoadEnsemble(ensname)
		if err != nil {
			log.Fatal(err)
		}
		acc, cm, err = ens.Evaluate(ds.X, ds.Labels, classifier.PredictOptions{Prior: prior, Workers: workers})
		if err != nil {
			log.Fatal(err)
		}
		enc, _ := ens.Encoder()
		classes = enc.Classes()
	} else {
		knn, err := classifier.LoadKNN(knnname)
		if err != nil {
			log.Fatal(err)
		}
		acc, cm, err = knn.Evaluate(ds.X, ds.Labels, workers)
		if err != nil {
			log.Fatal(err)
		}
		enc, _ := knn.Encoder()
		classes = enc.Classes()
	}

	log.Printf("%d sequences, accuracy %.4f", ds.Len(), acc)
	log.Printf("confusion matrix (rows true, columns predicted):")
	writeConfusion(cm, classes)
}

func writeConfusion(cm [][]int, classes []string) {

	var buf bytes.Buffer
	for i, row := range cm {
		buf.Reset()
		_, _ = fmt.Fprintf(&buf, "%-12s", classes[i])
		for _, c := range row {
			_, _ = fmt.Fprintf(&buf, "%8d ", c)
		}
		log.Print(buf.String())
	}
}
