package align

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/particle-average/internal/locs"
	"github.com/banshee-data/particle-average/internal/render"
	"github.com/banshee-data/particle-average/internal/testutil"
	"github.com/banshee-data/particle-average/internal/xcorr"
)

func TestAngleGrid_Properties(t *testing.T) {
	t.Parallel()
	cases := []struct{ s, r float64 }{
		{1, 20}, {1, 1.5}, {10, 2.3}, {4.5, 0.7}, {1, 0.2}, {1, 0}, {100, 3},
	}
	for _, tc := range cases {
		grid, err := AngleGrid(tc.s, tc.r)
		require.NoError(t, err)
		require.NotEmpty(t, grid)
		assert.Equal(t, 0.0, grid[0])
		for i, a := range grid {
			assert.GreaterOrEqual(t, a, 0.0)
			assert.Less(t, a, 2*math.Pi)
			if i > 0 {
				assert.Greater(t, a, grid[i-1], "s=%g r=%g i=%d", tc.s, tc.r, i)
			}
		}
	}
}

func TestAngleStep(t *testing.T) {
	t.Parallel()
	step, err := AngleStep(2, 10)
	require.NoError(t, err)
	assert.InDelta(t, math.Asin(0.05), step, 1e-15)

	step, err = AngleStep(1, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, step, 1e-15)

	grid, err := AngleGrid(1, 0.5)
	require.NoError(t, err)
	assert.Len(t, grid, 4)

	_, err = AngleStep(0.5, 10)
	assert.ErrorIs(t, err, ErrInvalidGrid)
	_, err = AngleStep(1, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func newTask(t *testing.T, oversampling, radius float64, ref []testutil.Point) *Task {
	t.Helper()
	r, err := render.NewRenderer(oversampling, render.Symmetric(radius))
	require.NoError(t, err)
	x, y := testutil.XY(ref)
	_, img := r.Render(x, y)
	angles, err := AngleGrid(oversampling, radius)
	require.NoError(t, err)
	return &Task{Renderer: r, Reference: xcorr.NewReference(img), Angles: angles}
}

func TestSearch_SelfAlignmentIsIdentity(t *testing.T) {
	t.Parallel()
	pts := testutil.Particle()
	task := newTask(t, 1, 20, pts)
	s := NewSearcher(task.Renderer.Pixels(), len(pts))

	x, y := testutil.XY(pts)
	res, err := s.Search(task, x, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Angle)
	assert.Equal(t, 0.0, res.DX)
	assert.Equal(t, 0.0, res.DY)
	assert.InDelta(t, float64(len(pts)), res.Peak, 1e-9)
	assert.Equal(t, len(pts), res.InView)
}

func TestSearch_RecoversRotationAndShift(t *testing.T) {
	t.Parallel()
	a := testutil.Particle()
	b := testutil.Transform(a, 37, 3, -2)
	task := newTask(t, 1, 20, a)
	step := task.Angles[1]

	s := NewSearcher(task.Renderer.Pixels(), len(b))
	x, y := testutil.XY(b)
	res, err := s.Search(task, x, y)
	require.NoError(t, err)

	// Undoing a +37° rotation means rotating by 323°.
	want := 2*math.Pi - 37*math.Pi/180
	assert.InDelta(t, want, res.Angle, step+1e-9)

	// The shift is measured after rotation, so the offset it removes is
	// R(θ)·(3, -2).
	sin, cos := math.Sincos(res.Angle)
	assert.InDelta(t, cos*3-sin*-2, res.DX, 1.0)
	assert.InDelta(t, sin*3+cos*-2, res.DY, 1.0)

	// Rotating the shift back into the particle frame recovers the offset.
	ox := cos*res.DX + sin*res.DY
	oy := -sin*res.DX + cos*res.DY
	assert.InDelta(t, 3, ox, 1.5)
	assert.InDelta(t, -2, oy, 1.5)

	// Applying the result brings B back onto A within a pixel.
	nx := make([]float64, len(b))
	ny := make([]float64, len(b))
	res.Apply(x, y, nx, ny)
	for i, p := range a {
		assert.InDelta(t, p.X, nx[i], 1.5, "x[%d]", i)
		assert.InDelta(t, p.Y, ny[i], 1.5, "y[%d]", i)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	t.Parallel()
	a := testutil.Particle()
	b := testutil.Jitter(testutil.Transform(a, 121, -1.5, 2), 0.3, 11)
	task := newTask(t, 2, 15, a)
	x, y := testutil.XY(b)

	first, err := NewSearcher(task.Renderer.Pixels(), len(b)).Search(task, x, y)
	require.NoError(t, err)
	reused := NewSearcher(task.Renderer.Pixels(), 1)
	for i := 0; i < 3; i++ {
		again, err := reused.Search(task, x, y)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearch_EmptyGroupInView(t *testing.T) {
	t.Parallel()
	task := newTask(t, 1, 5, testutil.Particle()[:4])
	s := NewSearcher(task.Renderer.Pixels(), 2)

	// Beyond the viewport corner at every rotation.
	_, err := s.Search(task, []float64{50, -60}, []float64{50, 10})
	assert.ErrorIs(t, err, ErrEmptyGroupInView)
}

func TestSearch_NoPeakAgainstEmptyReference(t *testing.T) {
	t.Parallel()
	r, err := render.NewRenderer(1, render.Symmetric(6))
	require.NoError(t, err)
	angles, err := AngleGrid(1, 6)
	require.NoError(t, err)
	task := &Task{Renderer: r, Reference: xcorr.NewReference(r.NewImage()), Angles: angles}

	_, err = NewSearcher(r.Pixels(), 1).Search(task, []float64{0.5}, []float64{0.5})
	assert.ErrorIs(t, err, ErrNoPeak)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	t.Parallel()
	task := newTask(t, 1, 10, testutil.Particle())
	_, err := NewSearcher(task.Renderer.Pixels()+1, 1).Search(task, []float64{0}, []float64{0})
	assert.ErrorIs(t, err, xcorr.ErrDimensionMismatch)
}

func TestAligner_WritesOnlyItsGroup(t *testing.T) {
	t.Parallel()
	a := testutil.Particle()
	b := testutil.Transform(a, 37, 3, -2)
	set := testutil.BuildSet(a, b)
	before := set.Clone()
	gi := locs.NewGroupIndex(set.Group)
	require.Equal(t, 2, gi.Len())

	task := newTask(t, 1, 20, a)
	al := NewAligner(task.Renderer.Pixels(), 1)
	res, err := al.Align(task, NewGroup(set, gi.ID(1), gi.Indices(1)))
	require.NoError(t, err)
	assert.NotZero(t, res.Angle)

	// Group 0 is untouched.
	for _, i := range gi.Indices(0) {
		assert.Equal(t, before.X[i], set.X[i])
		assert.Equal(t, before.Y[i], set.Y[i])
	}
	// Group 1 moved onto group 0.
	for k, i := range gi.Indices(1) {
		assert.InDelta(t, a[k].X, set.X[i], 1.5)
		assert.InDelta(t, a[k].Y, set.Y[i], 1.5)
	}
}

func TestAligner_FailureLeavesGroupUnchanged(t *testing.T) {
	t.Parallel()
	set := &locs.Set{X: []float64{100, 101}, Y: []float64{100, 99}, Group: []int{4, 4}}
	before := set.Clone()
	task := newTask(t, 1, 5, testutil.Particle()[:3])

	_, err := NewAligner(task.Renderer.Pixels(), 2).Align(task, NewGroup(set, 4, []int{0, 1}))
	assert.ErrorIs(t, err, ErrEmptyGroupInView)
	if diff := cmp.Diff(before, set, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("set changed on failure (-want +got):\n%s", diff)
	}
}
