// Package seq holds the canonical in-memory form of observation
// sequences and labeled datasets, and the validation applied to them
// before they reach a classifier.
package seq

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSequences indicates an empty sequence collection.
	ErrNoSequences = errors.New("seq: no sequences provided")

	// ErrEmptySequence indicates a sequence with no frames.
	ErrEmptySequence = errors.New("seq: sequence has no frames")

	// ErrDim indicates inconsistent frame dimensionality.
	ErrDim = errors.New("seq: inconsistent frame dimensionality")

	// ErrCount indicates mismatched sequence and label counts.
	ErrCount = errors.New("seq: sequence and label counts do not match")
)

// Sequence is an ordered collection of frames.  Each frame is a
// fixed-size vector; univariate data uses one-element frames.
type Sequence [][]float64

// Len returns the number of frames.
func (s Sequence) Len() int { return len(s) }

// Dim returns the frame dimensionality, or 0 for an empty sequence.
func (s Sequence) Dim() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Clone returns a deep copy of the sequence.
func (s Sequence) Clone() Sequence {
	c := make(Sequence, len(s))
	for t, frame := range s {
		c[t] = make([]float64, len(frame))
		copy(c[t], frame)
	}
	return c
}

// FromValues wraps a univariate series as a Sequence of one-element frames.
func FromValues(v []float64) Sequence {
	s := make(Sequence, len(v))
	for t, x := range v {
		s[t] = []float64{x}
	}
	return s
}

// Check validates a sequence collection: it must be non-empty, every
// sequence must have at least one frame, and all frames across all
// sequences must share one dimensionality.  Returns that dimensionality.
func Check(X []Sequence) (int, error) {

	if len(X) == 0 {
		return 0, ErrNoSequences
	}

	dim := 0
	for i, x := range X {
		if x.Len() == 0 {
			return 0, fmt.Errorf("%w (sequence %d)", ErrEmptySequence, i)
		}
		for t, frame := range x {
			if dim == 0 {
				dim = len(frame)
			}
			if len(frame) != dim {
				return 0, fmt.Errorf("%w: sequence %d frame %d has %d features, want %d",
					ErrDim, i, t, len(frame), dim)
			}
		}
	}
	if dim == 0 {
		return 0, fmt.Errorf("%w: frames have no features", ErrDim)
	}

	return dim, nil
}

// CheckOne validates a single sequence against an expected dimensionality.
func CheckOne(x Sequence, dim int) error {

	if x.Len() == 0 {
		return ErrEmptySequence
	}
	for t, frame := range x {
		if len(frame) != dim {
			return fmt.Errorf("%w: frame %d has %d features, want %d", ErrDim, t, len(frame), dim)
		}
	}

	return nil
}

// CheckDataset validates a sequence collection together with its labels.
func CheckDataset(X []Sequence, labels []string) (int, error) {

	dim, err := Check(X)
	if err != nil {
		return 0, err
	}
	if len(labels) != len(X) {
		return 0, fmt.Errorf("%w: %d sequences, %d labels", ErrCount, len(X), len(labels))
	}

	return dim, nil
}

// Concat flattens a sequence collection into one frame matrix plus the
// per-sequence lengths needed to recover the original boundaries.  This
// is the form the model fitting boundary accepts.
func Concat(X []Sequence) ([][]float64, []int) {

	var total int
	lengths := make([]int, len(X))
	for i, x := range X {
		lengths[i] = x.Len()
		total += x.Len()
	}

	frames := make([][]float64, 0, total)
	for _, x := range X {
		frames = append(frames, x...)
	}

	return frames, lengths
}

// Split recovers a sequence collection from concatenated frames and
// lengths.  It is the inverse of Concat.
func Split(frames [][]float64, lengths []int) ([]Sequence, error) {

	var total int
	for _, n := range lengths {
		if n < 1 {
			return nil, fmt.Errorf("%w: non-positive length %d", ErrEmptySequence, n)
		}
		total += n
	}
	if total != len(frames) {
		return nil, fmt.Errorf("%w: lengths sum to %d, have %d frames", ErrCount, total, len(frames))
	}

	X := make([]Sequence, len(lengths))
	pos := 0
	for i, n := range lengths {
		X[i] = Sequence(frames[pos : pos+n])
		pos += n
	}

	return X, nil
}
