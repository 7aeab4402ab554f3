package classifier

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/eonu/tempora/hmm"
	"github.com/eonu/tempora/topology"
)

// labelEncoding names the text encoding of persisted labels.  Go
// strings are UTF-8, so that is the only encoding ever written.
const labelEncoding = "utf-8"

// modelBlob is the persisted form of one fitted generative model: its
// structural parameters and emission parameters.
type modelBlob struct {
	Label     string
	Topology  string
	NState    int
	NSeqs     int
	Init      []float64
	Trans     [][]float64
	Means     [][]float64
	Variances [][]float64
}

// ensembleBlob is the persisted form of a fitted ensemble: the sorted
// label table plus one parameter blob per model.
type ensembleBlob struct {
	Classes []string
	Models  []modelBlob
}

// Save serializes the fitted ensemble to a gzip-compressed gob file.
// Every model must expose its fitted parameters.
func (e *Ensemble) Save(fname string) error {

	if e.enc == nil {
		return ErrNotFitted
	}

	blob := ensembleBlob{Classes: e.enc.Classes()}
	for _, m := range e.models {
		pm, ok := m.(paramModel)
		if !ok {
			return fmt.Errorf("%w: model %q does not expose its parameters for persistence", ErrModel, m.Label())
		}
		blob.Models = append(blob.Models, modelBlob{
			Label:     pm.Label(),
			Topology:  pm.Topology().String(),
			NState:    pm.NState(),
			NSeqs:     pm.NSeqs(),
			Init:      pm.Initial(),
			Trans:     pm.Transitions(),
			Means:     pm.Means(),
			Variances: pm.Variances(),
		})
	}

	return writeGob(fname, &blob)
}

// LoadEnsemble reconstructs a fitted ensemble from a file written by
// Save.  The loaded classifier predicts identically to the original.
func LoadEnsemble(fname string) (*Ensemble, error) {

	var blob ensembleBlob
	if err := readGob(fname, &blob); err != nil {
		return nil, err
	}

	models := make([]Model, len(blob.Models))
	for i, mb := range blob.Models {
		kind, err := topology.ParseKind(mb.Topology)
		if err != nil {
			return nil, err
		}
		g, err := hmm.FromParams(mb.Label, kind, mb.Init, mb.Trans, mb.Means, mb.Variances, mb.NSeqs)
		if err != nil {
			return nil, err
		}
		models[i] = g
	}

	e := NewEnsemble()
	if err := e.Fit(models); err != nil {
		return nil, err
	}
	if got := e.enc.Classes(); len(got) != len(blob.Classes) {
		return nil, fmt.Errorf("%w: encoder table does not match persisted models", ErrConfig)
	}

	return e, nil
}

func writeGob(fname string, v interface{}) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)
	defer gid.Close()

	return gob.NewEncoder(gid).Encode(v)
}

func readGob(fname string, v interface{}) error {

	fid, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return err
	}
	defer gid.Close()

	return gob.NewDecoder(gid).Decode(v)
}
