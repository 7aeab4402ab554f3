// Package dtw computes band-constrained dynamic time warping distances
// between multivariate sequences of possibly differing lengths.
package dtw

import (
	"errors"
	"fmt"
	"math"

	"github.com/eonu/tempora/seq"
)

var (
	// ErrEmpty indicates one or both input sequences are empty.
	ErrEmpty = errors.New("dtw: input sequences must be non-empty")

	// ErrDim indicates mismatched frame dimensionality.
	ErrDim = errors.New("dtw: sequences have different frame dimensionality")

	// ErrRadius indicates a non-positive band radius.
	ErrRadius = errors.New("dtw: radius must be at least 1")
)

// Metric measures the distance between two frames of equal dimensionality.
type Metric func(a, b []float64) float64

// Euclidean is the default frame metric.
func Euclidean(a, b []float64) float64 {

	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}

	return math.Sqrt(s)
}

// Distance computes the time warping distance between a and b, summing
// the frame metric along the optimal alignment path.  The path is
// restricted to a Sakoe-Chiba band of half-width radius, widened as
// needed to cover the length difference between the two sequences.
// Only two DP rows are kept, so alignment paths are not recoverable.
func Distance(a, b seq.Sequence, radius int, metric Metric) (float64, error) {

	n, m := a.Len(), b.Len()
	if n == 0 || m == 0 {
		return 0, ErrEmpty
	}
	if a.Dim() != b.Dim() {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDim, a.Dim(), b.Dim())
	}
	if radius < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrRadius, radius)
	}
	if metric == nil {
		metric = Euclidean
	}

	// The band must be at least as wide as the length difference,
	// otherwise the corner cell is unreachable.
	w := radius
	if d := n - m; d > w {
		w = d
	} else if d := m - n; d > w {
		w = d
	}

	inf := math.Inf(1)
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := 1; j <= m; j++ {
		prev[j] = inf
	}

	for i := 1; i <= n; i++ {
		curr[0] = inf
		lo, hi := i-w, i+w
		if lo < 1 {
			lo = 1
		}
		if hi > m {
			hi = m
		}
		for j := 1; j <= m; j++ {
			if j < lo || j > hi {
				curr[j] = inf
				continue
			}
			best := prev[j]
			if curr[j-1] < best {
				best = curr[j-1]
			}
			if prev[j-1] < best {
				best = prev[j-1]
			}
			curr[j] = metric(a[i-1], b[j-1]) + best
		}
		prev, curr = curr, prev
	}

	return prev[m], nil
}
