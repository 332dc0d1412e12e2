package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    float64
		vp   Viewport
		err  error
	}{
		{"oversampling below one", 0.5, Symmetric(5), ErrOversampling},
		{"empty viewport", 1, Viewport{Min: 2, Max: 2}, ErrViewport},
		{"inverted viewport", 1, Viewport{Min: 3, Max: -3}, ErrViewport},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRenderer(tc.s, tc.vp)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestRenderer_Pixels(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer(2.5, Viewport{Min: -3, Max: 3.1})
	require.NoError(t, err)
	// ceil(2.5 * 6.1) = ceil(15.25)
	assert.Equal(t, 16, r.Pixels())
}

func TestRenderer_BoundaryExclusive(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer(1, Viewport{Min: -4, Max: 4})
	require.NoError(t, err)

	tests := []struct {
		name string
		x, y float64
	}{
		{"x at min", -4, 0},
		{"x at max", 4, 0},
		{"y at min", 0, -4},
		{"y at max", 0, 4},
		{"corner", 4, -4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, img := r.Render([]float64{tc.x}, []float64{tc.y})
			assert.Equal(t, 0, n)
			assert.Zero(t, img.Sum())
		})
	}

	n, img := r.Render([]float64{-3.999, 3.999}, []float64{3.999, -3.999})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, img.Sum())
}

func TestRenderer_EnclosingPixel(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer(2, Viewport{Min: -2, Max: 2})
	require.NoError(t, err)
	require.Equal(t, 8, r.Pixels())

	// x=0.3 → col int(2*2.3)=4, y=-1.2 → row int(2*0.8)=1
	n, img := r.Render([]float64{0.3, 0.3, -1.9}, []float64{-1.2, -1.2, 1.9})
	assert.Equal(t, 3, n)
	assert.Equal(t, 2.0, img.At(1, 4))
	assert.Equal(t, 1.0, img.At(7, 0))
	assert.Equal(t, 2.0, img.Max())
}

func TestRenderer_Deterministic(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer(3, Symmetric(10))
	require.NoError(t, err)

	x := []float64{1.1, -2.7, 9.99, 0, 4.4, -10}
	y := []float64{0.2, 3.3, -9.99, 0, -4.4, 1}
	_, a := r.Render(x, y)

	b := r.NewImage()
	b.Pix[0] = 42 // stale content must be cleared
	r.RenderInto(b, x, y)
	assert.Equal(t, a.Pix, b.Pix)
}
