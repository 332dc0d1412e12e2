// Package xcorr finds the cross-correlation peak between a frozen reference
// image and candidate images of the same size using 2-D FFTs.
//
// A Reference is immutable and may be shared by any number of goroutines.
// A Correlator owns FFT plans and scratch buffers and must be used by one
// goroutine at a time.
package xcorr

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/banshee-data/particle-average/internal/render"
)

// ErrDimensionMismatch is returned when the candidate and reference sizes differ.
var ErrDimensionMismatch = errors.New("candidate and reference image sizes differ")

// quantum is the resolution the correlation surface is snapped to. Images are
// integral counts, so this only removes FFT round-off and keeps exact ties as
// ties.
const quantum = 1e-6

// Peak is the location and height of the correlation maximum. Row and Col
// index the centred surface: zero lag sits at (N/2, N/2).
type Peak struct {
	Row   int
	Col   int
	Value float64
}

// Reference is the conjugated forward transform of a reference image.
type Reference struct {
	n        int
	spectrum []complex128
}

// N returns the side length of the reference image.
func (r *Reference) N() int { return r.n }

// NewReference transforms img and conjugates the spectrum.
func NewReference(img *render.Image) *Reference {
	c := NewCorrelator(img.N)
	return c.Reference(img)
}

// Correlator computes correlation surfaces for one image size.
type Correlator struct {
	n       int
	plan    *fourier.CmplxFFT
	line    []complex128
	out     []complex128
	work    []complex128
	surface []float64
}

// NewCorrelator allocates plans and scratch for n×n images.
func NewCorrelator(n int) *Correlator {
	return &Correlator{
		n:       n,
		plan:    fourier.NewCmplxFFT(n),
		line:    make([]complex128, n),
		out:     make([]complex128, n),
		work:    make([]complex128, n*n),
		surface: make([]float64, n*n),
	}
}

// N returns the image side length this correlator was built for.
func (c *Correlator) N() int { return c.n }

// Reference builds a Reference from img using this correlator's plans.
func (c *Correlator) Reference(img *render.Image) *Reference {
	freq := make([]complex128, img.N*img.N)
	for i, v := range img.Pix {
		freq[i] = complex(v, 0)
	}
	c.fft2(freq, false)
	for i, v := range freq {
		freq[i] = complex(real(v), -imag(v))
	}
	return &Reference{n: img.N, spectrum: freq}
}

// Correlate computes the centred correlation surface of img against ref and
// returns its global maximum. On ties the first pixel in row-major order wins.
func (c *Correlator) Correlate(ref *Reference, img *render.Image) (Peak, error) {
	if img.N != ref.n || img.N != c.n {
		return Peak{}, fmt.Errorf("%w: candidate %dx%d, reference %dx%d, correlator %dx%d",
			ErrDimensionMismatch, img.N, img.N, ref.n, ref.n, c.n, c.n)
	}
	n := c.n
	for i, v := range img.Pix {
		c.work[i] = complex(v, 0)
	}
	c.fft2(c.work, false)
	for i := range c.work {
		c.work[i] *= ref.spectrum[i]
	}
	c.fft2(c.work, true)

	// fourier.CmplxFFT.Sequence is unnormalised.
	scale := 1 / float64(n*n)
	half := n / 2
	peak := Peak{Value: math.Inf(-1)}
	for row := 0; row < n; row++ {
		srcRow := (row - half + n) % n
		for col := 0; col < n; col++ {
			srcCol := (col - half + n) % n
			v := real(c.work[srcRow*n+srcCol]) * scale
			v = math.Round(v/quantum) * quantum
			c.surface[row*n+col] = v
			if v > peak.Value {
				peak = Peak{Row: row, Col: col, Value: v}
			}
		}
	}
	return peak, nil
}

// Surface returns the centred surface from the last Correlate call. It is
// overwritten by the next call.
func (c *Correlator) Surface() []float64 { return c.surface }

// fft2 transforms data in place, rows first then columns.
func (c *Correlator) fft2(data []complex128, inverse bool) {
	n := c.n
	for r := 0; r < n; r++ {
		row := data[r*n : (r+1)*n]
		copy(c.line, row)
		c.transform(row, c.line, inverse)
	}
	for col := 0; col < n; col++ {
		for r := 0; r < n; r++ {
			c.line[r] = data[r*n+col]
		}
		c.transform(c.out, c.line, inverse)
		for r := 0; r < n; r++ {
			data[r*n+col] = c.out[r]
		}
	}
}

func (c *Correlator) transform(dst, src []complex128, inverse bool) {
	if inverse {
		c.plan.Sequence(dst, src)
		return
	}
	c.plan.Coefficients(dst, src)
}
