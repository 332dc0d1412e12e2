package locs

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSet_Validation(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty", func(t *testing.T) {
		_, err := NewSet(nil, nil, nil)
		assert.ErrorIs(t, err, ErrEmptySet)
	})

	t.Run("rejects mismatched columns", func(t *testing.T) {
		_, err := NewSet([]float64{1, 2}, []float64{1}, []int{0, 0})
		assert.ErrorIs(t, err, ErrColumnLength)
	})

	t.Run("rejects NaN", func(t *testing.T) {
		_, err := NewSet([]float64{1, math.NaN()}, []float64{1, 2}, []int{0, 0})
		assert.True(t, errors.Is(err, ErrNonFinite))
	})

	t.Run("accepts equal columns", func(t *testing.T) {
		s, err := NewSet([]float64{1, 2}, []float64{3, 4}, []int{7, 7})
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())
	})
}

func TestGroupIndex_Partition(t *testing.T) {
	t.Parallel()
	groups := []int{3, 1, 3, 2, 1, 3}
	gi := NewGroupIndex(groups)

	require.Equal(t, 3, gi.Len())
	assert.Equal(t, 1, gi.ID(0))
	assert.Equal(t, 2, gi.ID(1))
	assert.Equal(t, 3, gi.ID(2))
	assert.Equal(t, []int{1, 4}, gi.Indices(0))
	assert.Equal(t, []int{3}, gi.Indices(1))
	assert.Equal(t, []int{0, 2, 5}, gi.Indices(2))
	assert.Equal(t, 3, gi.MaxGroupSize())
	assert.NoError(t, gi.Covers(len(groups)))
	assert.Error(t, gi.Covers(len(groups)+1))
}

func TestSet_GatherScatterRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := NewSet([]float64{0, 1, 2, 3}, []float64{10, 11, 12, 13}, []int{0, 1, 0, 1})
	require.NoError(t, err)

	idx := []int{1, 3}
	x := make([]float64, 2)
	y := make([]float64, 2)
	s.Gather(idx, x, y)
	assert.Equal(t, []float64{1, 3}, x)
	assert.Equal(t, []float64{11, 13}, y)

	s.Scatter(idx, []float64{-1, -3}, []float64{-11, -13})
	want := &Set{
		X:     []float64{0, -1, 2, -3},
		Y:     []float64{10, -11, 12, -13},
		Group: []int{0, 1, 0, 1},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("scatter mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()
	s, err := NewSet(
		[]float64{10, 12, -4, -6, -5},
		[]float64{1, 3, 7, 9, 8},
		[]int{0, 0, 1, 1, 1},
	)
	require.NoError(t, err)

	gi, r, err := Prepare(s)
	require.NoError(t, err)
	require.Equal(t, 2, gi.Len())

	mx, my := s.Mean()
	assert.InDelta(t, 0, mx, 1e-12)
	assert.InDelta(t, 0, my, 1e-12)

	// Each group is centred on its own centre of mass.
	assert.InDelta(t, -1, s.X[0], 1e-12)
	assert.InDelta(t, 1, s.X[1], 1e-12)
	assert.InDelta(t, 1, s.X[2], 1e-12)
	assert.InDelta(t, -1, s.X[3], 1e-12)
	assert.InDelta(t, 0, s.X[4], 1e-12)

	var sq float64
	for i := range s.X {
		sq += s.X[i]*s.X[i] + s.Y[i]*s.Y[i]
	}
	assert.InDelta(t, 2*math.Sqrt(sq/5), r, 1e-12)
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()
	s := &Set{X: []float64{1}, Y: []float64{2}, Group: []int{3}}
	c := s.Clone()
	c.X[0] = 99
	assert.Equal(t, 1.0, s.X[0])
	assert.Nil(t, (*Set)(nil).Clone())
}

func TestSpread(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Spread(&Set{}))
	s := &Set{X: []float64{-1, 1, -1, 1}, Y: []float64{-1, -1, 1, 1}, Group: []int{0, 0, 0, 0}}
	assert.InDelta(t, math.Sqrt2, Spread(s), 1e-12)
	// Translation invariant.
	s2 := &Set{X: []float64{9, 11, 9, 11}, Y: []float64{4, 4, 6, 6}, Group: []int{0, 0, 0, 0}}
	assert.InDelta(t, math.Sqrt2, Spread(s2), 1e-12)
}
