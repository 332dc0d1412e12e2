package locs

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrColumnLength is returned when the x, y and group columns differ in length.
	ErrColumnLength = errors.New("localization columns have different lengths")
	// ErrEmptySet is returned when a set holds no localizations.
	ErrEmptySet = errors.New("localization set is empty")
	// ErrNonFinite is returned when a coordinate is NaN or infinite.
	ErrNonFinite = errors.New("localization coordinate is not finite")
)

// Set is a column-oriented view of 2D localizations. Index i of each column
// describes the same localization. Additional metadata carried by a loader
// is not part of the set.
type Set struct {
	X     []float64
	Y     []float64
	Group []int
}

// NewSet builds a set from the given columns without copying them.
func NewSet(x, y []float64, group []int) (*Set, error) {
	s := &Set{X: x, Y: y, Group: group}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of localizations.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.X)
}

// Validate checks the column lengths and that every coordinate is finite.
func (s *Set) Validate() error {
	if s == nil || len(s.X) == 0 {
		return ErrEmptySet
	}
	if len(s.Y) != len(s.X) || len(s.Group) != len(s.X) {
		return fmt.Errorf("%w: x=%d y=%d group=%d", ErrColumnLength, len(s.X), len(s.Y), len(s.Group))
	}
	for i := range s.X {
		if math.IsNaN(s.X[i]) || math.IsInf(s.X[i], 0) || math.IsNaN(s.Y[i]) || math.IsInf(s.Y[i], 0) {
			return fmt.Errorf("%w: index %d (%g, %g)", ErrNonFinite, i, s.X[i], s.Y[i])
		}
	}
	return nil
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	c := &Set{
		X:     make([]float64, len(s.X)),
		Y:     make([]float64, len(s.Y)),
		Group: make([]int, len(s.Group)),
	}
	copy(c.X, s.X)
	copy(c.Y, s.Y)
	copy(c.Group, s.Group)
	return c
}

// Mean returns the mean x and mean y over all localizations.
func (s *Set) Mean() (float64, float64) {
	if s.Len() == 0 {
		return 0, 0
	}
	return stat.Mean(s.X, nil), stat.Mean(s.Y, nil)
}

// Gather copies the coordinates at idx into x and y, which must have len(idx).
func (s *Set) Gather(idx []int, x, y []float64) {
	for k, i := range idx {
		x[k] = s.X[i]
		y[k] = s.Y[i]
	}
}

// Scatter writes x and y back to the positions named by idx.
func (s *Set) Scatter(idx []int, x, y []float64) {
	for k, i := range idx {
		s.X[i] = x[k]
		s.Y[i] = y[k]
	}
}
