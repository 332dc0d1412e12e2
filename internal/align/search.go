package align

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/particle-average/internal/render"
	"github.com/banshee-data/particle-average/internal/xcorr"
)

var (
	// ErrInvalidGrid is returned for oversampling or radius values that
	// cannot produce an angle grid.
	ErrInvalidGrid = errors.New("invalid angle grid parameters")
	// ErrEmptyGroupInView is returned when no rotation of a group leaves any
	// of its points inside the viewport.
	ErrEmptyGroupInView = errors.New("group has no localizations in view")
	// ErrNoPeak is returned when a group was rendered but no correlation
	// value exceeded zero, e.g. against an empty reference.
	ErrNoPeak = errors.New("no positive correlation peak")
)

// Task is the read-only context shared by every group search of one
// iteration. None of its fields may be modified while workers use it.
type Task struct {
	Renderer  *render.Renderer
	Reference *xcorr.Reference
	Angles    []float64
}

// Result is the winning transform for one group. The aligned coordinates
// are R(Angle)·p − (DX, DY).
type Result struct {
	Angle  float64
	DX     float64
	DY     float64
	Peak   float64
	InView int
}

// Apply writes the transformed coordinates of x, y into dstX, dstY.
func (r Result) Apply(x, y, dstX, dstY []float64) {
	sin, cos := math.Sincos(r.Angle)
	for i := range x {
		dstX[i] = cos*x[i] - sin*y[i] - r.DX
		dstY[i] = sin*x[i] + cos*y[i] - r.DY
	}
}

// Searcher holds the per-goroutine buffers for the rotation search. It is
// not safe for concurrent use.
type Searcher struct {
	corr *xcorr.Correlator
	img  *render.Image
	rx   []float64
	ry   []float64
}

// NewSearcher allocates buffers for n×n images and groups of up to
// maxGroup localizations. Larger groups grow the buffers on demand.
func NewSearcher(n, maxGroup int) *Searcher {
	return &Searcher{
		corr: xcorr.NewCorrelator(n),
		img:  render.NewImage(n),
		rx:   make([]float64, maxGroup),
		ry:   make([]float64, maxGroup),
	}
}

func (s *Searcher) grow(n int) {
	if cap(s.rx) < n {
		s.rx = make([]float64, n)
		s.ry = make([]float64, n)
	}
	s.rx, s.ry = s.rx[:n], s.ry[:n]
}

// Search rotates x, y through every angle of the grid, renders and
// correlates each rotation against the reference, and keeps the first angle
// that reaches the highest peak. Angles at which no point is in view are
// skipped.
func (s *Searcher) Search(task *Task, x, y []float64) (Result, error) {
	r := task.Renderer
	if r.Pixels() != s.img.N {
		return Result{}, fmt.Errorf("%w: searcher %d, renderer %d",
			xcorr.ErrDimensionMismatch, s.img.N, r.Pixels())
	}
	s.grow(len(x))
	half := float64(r.Pixels()) / 2
	over := r.Oversampling()

	var best Result
	found, inView := false, false
	for _, theta := range task.Angles {
		sin, cos := math.Sincos(theta)
		for i := range x {
			s.rx[i] = cos*x[i] - sin*y[i]
			s.ry[i] = sin*x[i] + cos*y[i]
		}
		count := r.RenderInto(s.img, s.rx, s.ry)
		if count == 0 {
			continue
		}
		inView = true

		peak, err := s.corr.Correlate(task.Reference, s.img)
		if err != nil {
			return Result{}, err
		}
		if peak.Value > best.Peak {
			best = Result{
				Angle:  theta,
				DX:     math.Ceil(float64(peak.Col)-half) / over,
				DY:     math.Ceil(float64(peak.Row)-half) / over,
				Peak:   peak.Value,
				InView: count,
			}
			found = true
		}
	}

	switch {
	case !inView:
		return Result{}, ErrEmptyGroupInView
	case !found:
		return Result{}, ErrNoPeak
	}
	return best, nil
}
