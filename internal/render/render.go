// Package render rasterises localizations into square histogram images.
//
// The reference image and every candidate image of a run must be produced by
// the same Renderer so that cross-correlation compares like with like.
package render

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrOversampling is returned for an oversampling factor below 1 or not finite.
	ErrOversampling = errors.New("oversampling must be a finite value >= 1")
	// ErrViewport is returned for an empty or non-finite viewport.
	ErrViewport = errors.New("viewport must satisfy min < max")
)

// Viewport is the square region [Min, Max) on both axes.
type Viewport struct {
	Min float64
	Max float64
}

// Symmetric returns the viewport [-r, r).
func Symmetric(r float64) Viewport {
	return Viewport{Min: -r, Max: r}
}

// Pixels returns the image side length for the given oversampling.
func (v Viewport) Pixels(oversampling float64) int {
	return int(math.Ceil(oversampling * (v.Max - v.Min)))
}

// Contains reports whether (x, y) lies strictly inside the viewport on both
// axes. Points on either boundary are excluded.
func (v Viewport) Contains(x, y float64) bool {
	return x > v.Min && y > v.Min && x < v.Max && y < v.Max
}

// Renderer turns point sets into count histograms. It is immutable and safe
// for concurrent use; callers supply their own image buffers.
type Renderer struct {
	oversampling float64
	viewport     Viewport
	pixels       int
}

// NewRenderer validates the parameters and fixes the image size.
func NewRenderer(oversampling float64, vp Viewport) (*Renderer, error) {
	if math.IsNaN(oversampling) || math.IsInf(oversampling, 0) || oversampling < 1 {
		return nil, fmt.Errorf("%w: got %g", ErrOversampling, oversampling)
	}
	if math.IsNaN(vp.Min) || math.IsNaN(vp.Max) || math.IsInf(vp.Min, 0) || math.IsInf(vp.Max, 0) || !(vp.Min < vp.Max) {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrViewport, vp.Min, vp.Max)
	}
	return &Renderer{
		oversampling: oversampling,
		viewport:     vp,
		pixels:       vp.Pixels(oversampling),
	}, nil
}

// Oversampling returns the pixels-per-unit factor.
func (r *Renderer) Oversampling() float64 { return r.oversampling }

// Viewport returns the rendered region.
func (r *Renderer) Viewport() Viewport { return r.viewport }

// Pixels returns the side length of rendered images.
func (r *Renderer) Pixels() int { return r.pixels }

// NewImage allocates a zeroed image of the renderer's size.
func (r *Renderer) NewImage() *Image { return NewImage(r.pixels) }

// Render allocates a new image and renders x, y into it. It returns the
// number of points inside the viewport.
func (r *Renderer) Render(x, y []float64) (int, *Image) {
	img := r.NewImage()
	n := r.RenderInto(img, x, y)
	return n, img
}

// RenderInto clears img and accumulates one unit of mass per in-view point
// into the pixel that encloses it. img must have been sized by this renderer.
// It returns the number of points inside the viewport.
func (r *Renderer) RenderInto(img *Image, x, y []float64) int {
	img.Clear()
	s := r.oversampling
	vp := r.viewport
	lo := vp.Min
	n := img.N
	count := 0
	for i := range x {
		px, py := x[i], y[i]
		if !vp.Contains(px, py) {
			continue
		}
		col := int(s * (px - lo))
		row := int(s * (py - lo))
		// s*(hi-lo) can round up to exactly n for points just below hi.
		if col >= n {
			col = n - 1
		}
		if row >= n {
			row = n - 1
		}
		img.Pix[row*n+col]++
		count++
	}
	return count
}
