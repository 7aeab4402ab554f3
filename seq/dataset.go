package seq

import (
	"compress/gzip"
	"encoding/gob"
	"os"
)

// Dataset is a labeled sequence collection.
type Dataset struct {
	X      []Sequence
	Labels []string
}

// NewDataset validates the sequences and labels and returns them as a
// Dataset.
func NewDataset(X []Sequence, labels []string) (*Dataset, error) {

	if _, err := CheckDataset(X, labels); err != nil {
		return nil, err
	}

	return &Dataset{X: X, Labels: labels}, nil
}

// Len returns the number of labeled sequences.
func (d *Dataset) Len() int { return len(d.X) }

// Save writes the dataset to a gzip-compressed gob file.
func (d *Dataset) Save(fname string) error {

	fid, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)
	defer gid.Close()

	return gob.NewEncoder(gid).Encode(d)
}

// ReadDataset reads a dataset written by Save and revalidates it.
func ReadDataset(fname string) (*Dataset, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, err
	}
	defer gid.Close()

	var d Dataset
	if err := gob.NewDecoder(gid).Decode(&d); err != nil {
		return nil, err
	}
	if _, err := CheckDataset(d.X, d.Labels); err != nil {
		return nil, err
	}

	return &d, nil
}
