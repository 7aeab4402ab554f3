package classifier

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/eonu/tempora/hmm"
	"github.com/eonu/tempora/seq"
	"github.com/eonu/tempora/topology"
)

// flatModel builds a fitted one-state model whose log-likelihood is a
// pure function of mu, which makes decision boundaries exact.
func flatModel(t *testing.T, label string, mu float64, nseqs int) Model {
	t.Helper()

	g, err := hmm.FromParams(label, topology.Linear,
		[]float64{1},
		[][]float64{{1}},
		[][]float64{{mu}},
		[][]float64{{1}},
		nseqs)
	require.NoError(t, err)

	return g
}

func constSeq(v float64, n int) seq.Sequence {

	x := make(seq.Sequence, n)
	for t := range x {
		x[t] = []float64{v}
	}

	return x
}

// fiveClass is a five-model ensemble with 3 to 7 states per model.
// All states of one model share a mean, so the score of a constant
// query is exact arithmetic, and the two leading classes sit a small
// likelihood margin apart on a query near 3.9 that priors can
// overturn.
func fiveClass(t *testing.T) *Ensemble {
	t.Helper()

	mus := []float64{3.8, 0, 1, 2, 3.95}
	models := make([]Model, len(mus))
	for c, mu := range mus {
		n := 3 + c
		topo, err := topology.New(topology.LeftRight, n)
		require.NoError(t, err)

		means := make([][]float64, n)
		vars := make([][]float64, n)
		for s := 0; s < n; s++ {
			means[s] = []float64{mu}
			vars[s] = []float64{1}
		}

		label := []string{"c0", "c1", "c2", "c3", "c4"}[c]
		g, err := hmm.FromParams(label, topology.LeftRight,
			topo.UniformInitial(), topo.UniformTransitions(), means, vars, 3)
		require.NoError(t, err)
		models[c] = g
	}

	e := NewEnsemble()
	e.SetLogger(log.New(io.Discard, "", 0))
	require.NoError(t, e.Fit(models))

	return e
}

func TestEnsembleFitErrors(t *testing.T) {

	e := NewEnsemble()
	assert.ErrorIs(t, e.Fit(nil), ErrConfig)

	assert.ErrorIs(t, e.Fit([]Model{nil}), ErrModel)

	dup := []Model{
		flatModel(t, "a", 0, 1),
		flatModel(t, "a", 1, 1),
	}
	assert.ErrorIs(t, e.Fit(dup), ErrConfig)
}

func TestEnsembleNotFitted(t *testing.T) {

	e := NewEnsemble()

	_, err := e.Encoder()
	assert.ErrorIs(t, err, ErrNotFitted)

	_, _, err = e.PredictOne(constSeq(1, 5), PredictOptions{})
	assert.ErrorIs(t, err, ErrNotFitted)

	_, _, err = e.Predict([]seq.Sequence{constSeq(1, 5)}, PredictOptions{})
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, e.Save(filepath.Join(t.TempDir(), "e.gob.gz")), ErrNotFitted)
}

func TestPredictOneLikelihoodWins(t *testing.T) {

	e := fiveClass(t)
	query := constSeq(3.9, 90)

	for _, prior := range []Prior{Uniform(), Frequency()} {
		label, scores, err := e.PredictOne(query, PredictOptions{Prior: prior})
		require.NoError(t, err)
		assert.Equal(t, "c4", label)
		assert.Len(t, scores, 5)
	}
}

func TestPredictOnePriorOverturnsSmallMargin(t *testing.T) {

	e := fiveClass(t)
	query := constSeq(3.9, 90)

	// The likelihood margin of c4 over c0 is about 0.34 log units; a
	// near-degenerate prior on c0 outweighs it.
	label, _, err := e.PredictOne(query, PredictOptions{
		Prior: Explicit([]float64{0.96, 0.01, 0.01, 0.01, 0.01}),
	})
	require.NoError(t, err)
	assert.Equal(t, "c0", label)
}

func TestFrequencyPriorUsesTrainingCounts(t *testing.T) {

	// The query is equidistant from both class means, so the decision
	// rests entirely on the prior.
	models := []Model{
		flatModel(t, "a", 0, 1),
		flatModel(t, "b", 0.2, 9),
	}
	e := NewEnsemble()
	require.NoError(t, e.Fit(models))

	query := constSeq(0.1, 10)

	label, _, err := e.PredictOne(query, PredictOptions{Prior: Frequency()})
	require.NoError(t, err)
	assert.Equal(t, "b", label)

	// Under a uniform prior the posteriors tie exactly and the lowest
	// class index wins.
	label, _, err = e.PredictOne(query, PredictOptions{Prior: Uniform()})
	require.NoError(t, err)
	assert.Equal(t, "a", label)
}

func TestPredictOneWarnsAboutWorkers(t *testing.T) {

	e := fiveClass(t)
	var buf bytes.Buffer
	e.SetLogger(log.New(&buf, "", 0))

	_, _, err := e.PredictOne(constSeq(3.9, 10), PredictOptions{Workers: 4})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ignoring workers=4")
}

func TestPredictBatchMatchesSingles(t *testing.T) {

	e := fiveClass(t)

	X := []seq.Sequence{
		constSeq(0.1, 40),
		constSeq(1.1, 40),
		constSeq(2.1, 40),
		constSeq(3.9, 40),
		constSeq(3.7, 40),
	}

	labels, scores, err := e.Predict(X, PredictOptions{Prior: Uniform()})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c0"}, labels)

	for i, x := range X {
		one, sc, err := e.PredictOne(x, PredictOptions{Prior: Uniform()})
		require.NoError(t, err)
		assert.Equal(t, one, labels[i])
		for c := range sc {
			assert.InDelta(t, sc[c], scores[i][c], 1e-6)
		}
	}
}

func TestParallelPredictionMatchesSerial(t *testing.T) {

	e := fiveClass(t)

	X := make([]seq.Sequence, 9)
	for i := range X {
		X[i] = constSeq(float64(i)*0.5, 30+i)
	}

	serial, serialScores, err := e.Predict(X, PredictOptions{Workers: 1})
	require.NoError(t, err)
	parallel, parallelScores, err := e.Predict(X, PredictOptions{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
	for i := range serialScores {
		for c := range serialScores[i] {
			assert.InDelta(t, serialScores[i][c], parallelScores[i][c], 1e-6)
		}
	}
}

func TestPredictIsReproducible(t *testing.T) {

	e := fiveClass(t)
	X := []seq.Sequence{constSeq(3.9, 50), constSeq(0.4, 50)}

	first, firstScores, err := e.Predict(X, PredictOptions{})
	require.NoError(t, err)
	second, secondScores, err := e.Predict(X, PredictOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstScores, secondScores)
}

func TestPredictErrors(t *testing.T) {

	e := fiveClass(t)

	_, _, err := e.Predict(nil, PredictOptions{})
	assert.ErrorIs(t, err, ErrConfig)

	// Frame dimensionality must match the fitted models.
	_, _, err = e.Predict([]seq.Sequence{{{1, 2}}}, PredictOptions{})
	assert.ErrorIs(t, err, hmm.ErrData)

	_, _, err = e.Predict([]seq.Sequence{constSeq(1, 5)}, PredictOptions{
		Prior: Explicit([]float64{0.5, 0.5}),
	})
	assert.ErrorIs(t, err, ErrConfig)

	_, _, err = e.Predict([]seq.Sequence{constSeq(1, 5)}, PredictOptions{
		Prior: Explicit([]float64{1.5, -0.5, 0, 0, 0}),
	})
	assert.ErrorIs(t, err, ErrConfig)

	_, _, err = e.Predict([]seq.Sequence{constSeq(1, 5)}, PredictOptions{
		Prior: Explicit([]float64{0.5, 0.1, 0.1, 0.1, 0.1}),
	})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEvaluate(t *testing.T) {

	e := fiveClass(t)

	X := []seq.Sequence{
		constSeq(0.1, 40), // c1
		constSeq(1.1, 40), // c2
		constSeq(3.9, 40), // c4
		constSeq(3.9, 40), // c4, mislabeled below
	}
	y := []string{"c1", "c2", "c4", "c0"}

	acc, cm, err := e.Evaluate(X, y, PredictOptions{Prior: Uniform()})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-12)

	// Rows are true classes, columns predicted.
	assert.Equal(t, 1, cm[0][4])
	assert.Equal(t, 1, cm[1][1])
	assert.Equal(t, 1, cm[2][2])
	assert.Equal(t, 1, cm[4][4])

	var total int
	for _, row := range cm {
		for _, n := range row {
			total += n
		}
	}
	assert.Equal(t, 4, total)
}

func TestEvaluateErrors(t *testing.T) {

	e := fiveClass(t)
	X := []seq.Sequence{constSeq(1, 5)}

	_, _, err := e.Evaluate(X, []string{"c0", "c1"}, PredictOptions{})
	assert.ErrorIs(t, err, ErrConfig)

	_, _, err = e.Evaluate(X, []string{"mystery"}, PredictOptions{})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEnsembleFittedOnSampledData(t *testing.T) {

	// End to end: sample labeled sequences from well-separated per-class
	// generators, estimate a fresh model per class, and classify a
	// held-out sequence from the last class.
	rng := rand.New(rand.NewSource(29))
	lengths := []int{60, 90, 120}

	var models []Model
	var gen4 *hmm.Gaussian
	for c := 0; c < 5; c++ {
		label := fmt.Sprintf("c%d", c)
		mu := 3 * float64(c)
		g, err := hmm.FromParams(label, topology.Ergodic,
			[]float64{0.5, 0.5},
			[][]float64{{0.9, 0.1}, {0.1, 0.9}},
			[][]float64{{mu}, {mu + 1}},
			[][]float64{{1}, {1}},
			1)
		require.NoError(t, err)
		if c == 4 {
			gen4 = g
		}

		var X []seq.Sequence
		for _, T := range lengths {
			x, _, err := g.Sample(rng, T)
			require.NoError(t, err)
			X = append(X, x)
		}

		fitted, err := hmm.New(label, 2, hmm.WithTopology(topology.Ergodic))
		require.NoError(t, err)
		frames, seqLengths := seq.Concat(X)
		require.NoError(t, fitted.Fit(frames, seqLengths))
		models = append(models, fitted)
	}

	e := NewEnsemble()
	require.NoError(t, e.Fit(models))

	heldOut, _, err := gen4.Sample(rng, 90)
	require.NoError(t, err)

	for _, prior := range []Prior{Uniform(), Frequency()} {
		label, _, err := e.PredictOne(heldOut, PredictOptions{Prior: prior})
		require.NoError(t, err)
		assert.Equal(t, "c4", label)
	}
}

func TestEnsembleSaveLoadRoundTrip(t *testing.T) {

	e := fiveClass(t)
	fname := filepath.Join(t.TempDir(), "ensemble.gob.gz")
	require.NoError(t, e.Save(fname))

	loaded, err := LoadEnsemble(fname)
	require.NoError(t, err)

	enc, err := loaded.Encoder()
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, enc.Classes())

	X := []seq.Sequence{
		constSeq(3.9, 90),
		constSeq(0.2, 90),
		constSeq(2.2, 90),
	}
	want, wantScores, err := e.Predict(X, PredictOptions{})
	require.NoError(t, err)
	got, gotScores, err := loaded.Predict(X, PredictOptions{})
	require.NoError(t, err)

	assert.Equal(t, want, got)
	for i := range wantScores {
		for c := range wantScores[i] {
			assert.InDelta(t, wantScores[i][c], gotScores[i][c], 1e-6)
		}
	}
}
