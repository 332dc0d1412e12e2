package xcorr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/particle-average/internal/render"
)

func pattern(n int, pts [][2]int) *render.Image {
	img := render.NewImage(n)
	for _, p := range pts {
		img.Pix[p[1]*n+p[0]] += 1
	}
	return img
}

var asymmetric = [][2]int{{3, 4}, {4, 4}, {9, 5}, {6, 11}, {7, 2}, {12, 9}, {5, 8}}

func TestCorrelate_SelfPeakIsCentred(t *testing.T) {
	t.Parallel()
	for _, n := range []int{16, 17} {
		img := pattern(n, asymmetric)
		c := NewCorrelator(n)
		ref := c.Reference(img)

		peak, err := c.Correlate(ref, img)
		require.NoError(t, err)
		assert.Equal(t, n/2, peak.Row, "n=%d", n)
		assert.Equal(t, n/2, peak.Col, "n=%d", n)
		assert.InDelta(t, float64(len(asymmetric)), peak.Value, 1e-9)
	}
}

func TestCorrelate_FindsTranslation(t *testing.T) {
	t.Parallel()
	const n = 20
	ref := NewReference(pattern(n, asymmetric))

	dx, dy := 3, -2
	moved := make([][2]int, len(asymmetric))
	for i, p := range asymmetric {
		moved[i] = [2]int{p[0] + dx, p[1] + dy}
	}

	c := NewCorrelator(n)
	peak, err := c.Correlate(ref, pattern(n, moved))
	require.NoError(t, err)
	assert.Equal(t, n/2+dy, peak.Row)
	assert.Equal(t, n/2+dx, peak.Col)
	assert.InDelta(t, float64(len(asymmetric)), peak.Value, 1e-9)

	surface := c.Surface()
	require.Len(t, surface, n*n)
	assert.Equal(t, peak.Value, surface[peak.Row*n+peak.Col])
}

func TestCorrelate_TiesPickFirstRowMajor(t *testing.T) {
	t.Parallel()
	const n = 8
	c := NewCorrelator(n)
	ref := c.Reference(render.NewImage(n))

	peak, err := c.Correlate(ref, render.NewImage(n))
	require.NoError(t, err)
	assert.Equal(t, Peak{Row: 0, Col: 0, Value: 0}, peak)
}

func TestCorrelate_DimensionMismatch(t *testing.T) {
	t.Parallel()
	ref := NewReference(render.NewImage(8))
	c := NewCorrelator(8)

	_, err := c.Correlate(ref, render.NewImage(9))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	other := NewCorrelator(9)
	_, err = other.Correlate(ref, render.NewImage(9))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestReference_SharedAcrossCorrelators(t *testing.T) {
	t.Parallel()
	const n = 12
	img := pattern(n, [][2]int{{1, 1}, {2, 5}, {8, 3}})
	ref := NewReference(img)
	assert.Equal(t, n, ref.N())

	a, err := NewCorrelator(n).Correlate(ref, img)
	require.NoError(t, err)
	b, err := NewCorrelator(n).Correlate(ref, img)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
