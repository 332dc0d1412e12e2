package locs

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CenterGroups moves every group so that its centre of mass sits at the
// origin. This is the coarse pre-alignment a loader performs before the
// rotation search.
func CenterGroups(s *Set, gi *GroupIndex) {
	var gx, gy []float64
	for k := 0; k < gi.Len(); k++ {
		idx := gi.Indices(k)
		if cap(gx) < len(idx) {
			gx = make([]float64, len(idx))
			gy = make([]float64, len(idx))
		}
		gx, gy = gx[:len(idx)], gy[:len(idx)]
		s.Gather(idx, gx, gy)
		floats.AddConst(-stat.Mean(gx, nil), gx)
		floats.AddConst(-stat.Mean(gy, nil), gy)
		s.Scatter(idx, gx, gy)
	}
}

// Recenter subtracts the global mean x and mean y from every localization.
func Recenter(s *Set) {
	if s.Len() == 0 {
		return
	}
	mx, my := s.Mean()
	floats.AddConst(-mx, s.X)
	floats.AddConst(-my, s.Y)
}

// BoundingRadius returns 2*sqrt(mean(x²+y²)) over the set. The set is
// expected to be recentred already.
func BoundingRadius(s *Set) float64 {
	if s.Len() == 0 {
		return 0
	}
	sq := floats.Dot(s.X, s.X) + floats.Dot(s.Y, s.Y)
	return 2 * math.Sqrt(sq/float64(s.Len()))
}

// Prepare establishes the loader precondition in place: validate, build the
// group index, centre each group, recentre globally and derive the radius.
func Prepare(s *Set) (*GroupIndex, float64, error) {
	if err := s.Validate(); err != nil {
		return nil, 0, err
	}
	gi := NewGroupIndex(s.Group)
	CenterGroups(s, gi)
	Recenter(s)
	return gi, BoundingRadius(s), nil
}

// Spread returns the RMS distance of the localizations from their mean, or
// 0 for an empty set. It shrinks as groups are brought into register.
func Spread(s *Set) float64 {
	if s.Len() == 0 {
		return 0
	}
	mx, my := s.Mean()
	var sum float64
	for i := range s.X {
		dx, dy := s.X[i]-mx, s.Y[i]-my
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / float64(s.Len()))
}
