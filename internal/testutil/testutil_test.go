package testutil

import (
	"math"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestParticle_DistinctUnitPixels(t *testing.T) {
	t.Parallel()
	seen := make(map[[2]int]bool)
	for _, p := range Particle() {
		key := [2]int{int(math.Floor(p.X)), int(math.Floor(p.Y))}
		if seen[key] {
			t.Fatalf("pixel %v used twice", key)
		}
		seen[key] = true
	}
}

func TestTransform_PreservesDistances(t *testing.T) {
	t.Parallel()
	pts := Particle()
	moved := Transform(pts, 37, 3, -2)
	for i := 1; i < len(pts); i++ {
		want := math.Hypot(pts[i].X-pts[0].X, pts[i].Y-pts[0].Y)
		got := math.Hypot(moved[i].X-moved[0].X, moved[i].Y-moved[0].Y)
		if math.Abs(want-got) > 1e-9 {
			t.Errorf("distance %d changed: %g -> %g", i, want, got)
		}
	}
}

func TestBuildSet_AssignsGroupIDs(t *testing.T) {
	t.Parallel()
	s := BuildSet(Particle()[:2], Particle()[:3])
	if s.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", s.Len())
	}
	want := []int{0, 0, 1, 1, 1}
	for i, g := range want {
		if s.Group[i] != g {
			t.Errorf("Group[%d] = %d, want %d", i, s.Group[i], g)
		}
	}
}

func TestJitter_Deterministic(t *testing.T) {
	t.Parallel()
	a := Jitter(Particle(), 0.1, 7)
	b := Jitter(Particle(), 0.1, 7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("jitter differs at %d", i)
		}
		if math.Abs(a[i].X-Particle()[i].X) > 0.1+1e-12 {
			t.Errorf("jitter exceeds amplitude at %d", i)
		}
	}
}
