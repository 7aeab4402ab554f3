package classifier

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eonu/tempora/seq"
)

// knnRefs is a small reference set with two well-separated clusters:
// class "a" near 0 and class "b" near 5.
func knnRefs() ([]seq.Sequence, []string) {

	X := []seq.Sequence{
		constSeq(0, 3),
		constSeq(5, 3),
		constSeq(0.1, 3),
	}

	return X, []string{"a", "b", "a"}
}

func TestNewKNNConfigErrors(t *testing.T) {

	_, err := NewKNN(0, 1)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewKNN(1, 0)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestKNNFitErrors(t *testing.T) {

	c, err := NewKNN(5, 1)
	require.NoError(t, err)

	X, y := knnRefs()
	assert.ErrorIs(t, c.Fit(X, y), ErrConfig) // fewer references than k

	c, err = NewKNN(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Fit(X, y[:2]), ErrConfig)
	assert.ErrorIs(t, c.Fit(nil, nil), ErrConfig)
}

func TestKNNNotFitted(t *testing.T) {

	c, err := NewKNN(1, 1)
	require.NoError(t, err)

	_, err = c.Encoder()
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = c.PredictOne(constSeq(1, 3))
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = c.Predict([]seq.Sequence{constSeq(1, 3)}, 1)
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, c.Save(filepath.Join(t.TempDir(), "knn.gob.gz")), ErrNotFitted)
}

func TestKNNPredictOne(t *testing.T) {

	c, err := NewKNN(1, 1)
	require.NoError(t, err)
	require.NoError(t, c.Fit(knnRefs()))

	label, err := c.PredictOne(constSeq(5, 4))
	require.NoError(t, err)
	assert.Equal(t, "b", label)

	label, err = c.PredictOne(constSeq(0.2, 4))
	require.NoError(t, err)
	assert.Equal(t, "a", label)
}

func TestKNNMajorityVote(t *testing.T) {

	// With k=3 the two "a" references outvote the single nearest "b".
	c, err := NewKNN(3, 1)
	require.NoError(t, err)
	require.NoError(t, c.Fit(knnRefs()))

	label, err := c.PredictOne(constSeq(4, 3))
	require.NoError(t, err)
	assert.Equal(t, "a", label)
}

func TestKNNBoundaryTieKeepsTrainingOrder(t *testing.T) {

	// Both zero-distance references tie at the k-th boundary; the
	// earlier reference is retained, so the prediction never reaches
	// the random modal tie-break.
	X := []seq.Sequence{constSeq(0, 3), constSeq(0, 3), constSeq(9, 3)}
	y := []string{"a", "b", "c"}

	for seed := uint64(0); seed < 50; seed++ {
		c, err := NewKNN(1, 1, WithSeed(seed))
		require.NoError(t, err)
		require.NoError(t, c.Fit(X, y))

		label, err := c.PredictOne(constSeq(0, 3))
		require.NoError(t, err)
		assert.Equal(t, "a", label)
	}
}

func TestKNNModalTieIsSeededAndBalanced(t *testing.T) {

	// The query is exactly equidistant from one "a" and one "b"
	// reference, so with k=2 every prediction is a modal tie.
	X := []seq.Sequence{constSeq(0, 3), constSeq(10, 3)}
	y := []string{"a", "b"}
	query := constSeq(5, 3)

	const trials = 200
	var nA int
	for seed := uint64(0); seed < trials; seed++ {
		c, err := NewKNN(2, 1, WithSeed(seed))
		require.NoError(t, err)
		require.NoError(t, c.Fit(X, y))

		label, err := c.PredictOne(query)
		require.NoError(t, err)
		if label == "a" {
			nA++
		}

		// The same seed always resolves the same way.
		again, err := c.PredictOne(query)
		require.NoError(t, err)
		assert.Equal(t, label, again)
	}

	frac := float64(nA) / trials
	assert.Greater(t, frac, 0.3)
	assert.Less(t, frac, 0.7)
}

func TestKNNParallelMatchesSerial(t *testing.T) {

	// The batch mixes clear-cut queries with exact modal ties; the
	// per-query tie-break makes chunking invisible.
	X := []seq.Sequence{constSeq(0, 3), constSeq(10, 3)}
	y := []string{"a", "b"}

	c, err := NewKNN(2, 1, WithSeed(7))
	require.NoError(t, err)
	require.NoError(t, c.Fit(X, y))

	queries := []seq.Sequence{
		constSeq(1, 3),
		constSeq(5, 3),
		constSeq(9, 3),
		constSeq(5, 3),
		constSeq(5, 3),
		constSeq(2, 3),
	}

	serial, err := c.Predict(queries, 1)
	require.NoError(t, err)
	parallel, err := c.Predict(queries, 4)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestKNNPredictErrors(t *testing.T) {

	c, err := NewKNN(1, 1)
	require.NoError(t, err)
	require.NoError(t, c.Fit(knnRefs()))

	_, err = c.Predict(nil, 1)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = c.Predict([]seq.Sequence{{{1, 2}}}, 1)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = c.PredictOne(seq.Sequence{})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestKNNEvaluate(t *testing.T) {

	c, err := NewKNN(1, 1)
	require.NoError(t, err)
	require.NoError(t, c.Fit(knnRefs()))

	X := []seq.Sequence{
		constSeq(0.2, 3), // a
		constSeq(4.8, 3), // b
		constSeq(5.1, 3), // b, mislabeled below
	}
	y := []string{"a", "b", "a"}

	acc, cm, err := c.Evaluate(X, y, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, acc, 1e-12)
	assert.Equal(t, 1, cm[0][0])
	assert.Equal(t, 1, cm[0][1])
	assert.Equal(t, 1, cm[1][1])

	_, _, err = c.Evaluate(X, []string{"a", "b", "z"}, 1)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestKNNSaveLoadRoundTrip(t *testing.T) {

	c, err := NewKNN(2, 2, WithSeed(13))
	require.NoError(t, err)

	X := []seq.Sequence{constSeq(0, 3), constSeq(10, 3), constSeq(0.2, 3)}
	require.NoError(t, c.Fit(X, []string{"a", "b", "a"}))

	fname := filepath.Join(t.TempDir(), "knn.gob.gz")
	require.NoError(t, c.Save(fname))

	loaded, err := LoadKNN(fname, WithSeed(13))
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.K())
	assert.Equal(t, 2, loaded.Radius())

	queries := []seq.Sequence{
		constSeq(1, 3),
		constSeq(5, 4),
		constSeq(9, 3),
	}
	want, err := c.Predict(queries, 1)
	require.NoError(t, err)
	got, err := loaded.Predict(queries, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadKNNRejectsUnknownEncoding(t *testing.T) {

	fname := filepath.Join(t.TempDir(), "knn.gob.gz")
	blob := knnBlob{
		K:        1,
		Radius:   1,
		Encoding: "latin-1",
		Refs:     []seq.Sequence{constSeq(0, 3)},
		Labels:   []string{"a"},
	}
	require.NoError(t, writeGob(fname, &blob))

	_, err := LoadKNN(fname)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestKNNCustomMetric(t *testing.T) {

	// A constant metric makes every reference equidistant, forcing the
	// bounded neighbor buffer to keep the earliest references.
	flat := func(a, b []float64) float64 { return 1 }

	c, err := NewKNN(1, 1, WithMetric(flat))
	require.NoError(t, err)
	require.NoError(t, c.Fit(knnRefs()))

	label, err := c.PredictOne(constSeq(5, 3))
	require.NoError(t, err)
	assert.Equal(t, "a", label)
}
