// Package align implements the per-group rotation search: the angle grid,
// the search over rendered rotations, and the in-place write-back of the
// winning rotation and shift.
package align
