// Package testutil provides shared test utilities and fixtures.
//
// The particle fixtures are synthetic localization patterns used across the
// render, align and average tests.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/particle-average/internal/locs"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Point is a single 2D localization.
type Point struct {
	X, Y float64
}

// Particle returns an asymmetric pattern of 20 localizations centred near
// the origin. Every coordinate sits in the middle of a unit pixel and no two
// localizations share a unit pixel.
func Particle() []Point {
	return []Point{
		{0.5, 0.5}, {1.5, 0.5}, {2.5, 0.5}, {3.5, 0.5},
		{0.5, 1.5}, {0.5, 2.5}, {0.5, 3.5}, {0.5, 4.5},
		{-2.5, -3.5}, {-3.5, -3.5}, {-4.5, -2.5},
		{5.5, -4.5}, {6.5, -4.5}, {6.5, -5.5},
		{-6.5, 4.5}, {-5.5, 6.5}, {2.5, 7.5},
		{-1.5, -7.5}, {7.5, 2.5}, {-7.5, -0.5},
	}
}

// Transform rotates pts by deg degrees about the origin and then translates
// them by (dx, dy).
func Transform(pts []Point, deg, dx, dy float64) []Point {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{
			X: cos*p.X - sin*p.Y + dx,
			Y: sin*p.X + cos*p.Y + dy,
		}
	}
	return out
}

// XY splits points into coordinate columns.
func XY(pts []Point) ([]float64, []float64) {
	x := make([]float64, len(pts))
	y := make([]float64, len(pts))
	for i, p := range pts {
		x[i], y[i] = p.X, p.Y
	}
	return x, y
}

// BuildSet concatenates groups into one set; group k gets id k.
func BuildSet(groups ...[]Point) *locs.Set {
	s := &locs.Set{}
	for id, g := range groups {
		for _, p := range g {
			s.X = append(s.X, p.X)
			s.Y = append(s.Y, p.Y)
			s.Group = append(s.Group, id)
		}
	}
	return s
}

// Jitter returns a copy of pts with a deterministic pseudo-random offset of
// at most amp on each axis.
func Jitter(pts []Point, amp float64, seed uint64) []Point {
	out := make([]Point, len(pts))
	state := seed | 1
	next := func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%2001)/1000 - 1
	}
	for i, p := range pts {
		out[i] = Point{X: p.X + amp*next(), Y: p.Y + amp*next()}
	}
	return out
}
