package dtw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eonu/tempora/seq"
)

func TestDistanceIdentity(t *testing.T) {

	x := seq.FromValues([]float64{0, 1, 2, 3, 2, 1})
	d, err := Distance(x, x, 1, nil)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDistanceWarpsRepeats(t *testing.T) {

	// The repeated final value aligns to a single frame at no cost.
	a := seq.FromValues([]float64{0, 1, 2})
	b := seq.FromValues([]float64{0, 1, 2, 2, 2})

	d, err := Distance(a, b, 1, nil)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDistanceKnownValue(t *testing.T) {

	a := seq.FromValues([]float64{0, 0, 0})
	b := seq.FromValues([]float64{1, 1, 1})

	// Every alignment step costs 1; the shortest path takes 3 of them.
	d, err := Distance(a, b, 1, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3, d, 1e-12)
}

func TestDistanceSymmetry(t *testing.T) {

	a := seq.FromValues([]float64{0, 2, 4, 3})
	b := seq.FromValues([]float64{1, 3, 3, 5, 2})

	dab, err := Distance(a, b, 2, nil)
	require.NoError(t, err)
	dba, err := Distance(b, a, 2, nil)
	require.NoError(t, err)
	assert.InDelta(t, dab, dba, 1e-12)
}

func TestBandWidensToLengthDifference(t *testing.T) {

	// A radius-1 band alone cannot reach the corner cell here; the band
	// must widen to cover the length difference.
	a := seq.FromValues([]float64{0, 0})
	b := seq.FromValues([]float64{0, 0, 0, 0, 0, 0, 0, 0})

	d, err := Distance(a, b, 1, nil)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestTighterBandRaisesDistance(t *testing.T) {

	a := seq.FromValues([]float64{0, 0, 0, 5, 5, 5})
	b := seq.FromValues([]float64{0, 5, 5, 5, 5, 5})

	narrow, err := Distance(a, b, 1, nil)
	require.NoError(t, err)
	wide, err := Distance(a, b, 5, nil)
	require.NoError(t, err)
	assert.Less(t, wide, narrow)
}

func TestMultivariateFrames(t *testing.T) {

	a := seq.Sequence{{0, 0}, {3, 4}}
	b := seq.Sequence{{0, 0}, {0, 0}}

	// The second frame contributes its Euclidean norm.
	d, err := Distance(a, b, 1, nil)
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-12)
}

func TestCustomMetric(t *testing.T) {

	manhattan := func(a, b []float64) float64 {
		var s float64
		for i := range a {
			d := a[i] - b[i]
			if d < 0 {
				d = -d
			}
			s += d
		}
		return s
	}

	a := seq.Sequence{{0, 0}, {3, 4}}
	b := seq.Sequence{{0, 0}, {0, 0}}

	d, err := Distance(a, b, 1, manhattan)
	require.NoError(t, err)
	assert.InDelta(t, 7, d, 1e-12)
}

func TestDistanceErrors(t *testing.T) {

	x := seq.FromValues([]float64{1, 2})

	_, err := Distance(seq.Sequence{}, x, 1, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Distance(x, seq.Sequence{{1, 2}}, 1, nil)
	assert.ErrorIs(t, err, ErrDim)

	_, err = Distance(x, x, 0, nil)
	assert.ErrorIs(t, err, ErrRadius)
}
