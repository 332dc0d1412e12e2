package locs

import (
	"fmt"
	"sort"
)

// GroupIndex maps each group id to the ordered indices of its localizations.
// It is built once before any iteration and never modified afterwards, so it
// can be shared between goroutines without locking.
type GroupIndex struct {
	ids     []int
	indices [][]int
	maxSize int
	total   int
}

// NewGroupIndex builds the index from a group column. Group ids are ordered
// ascending; indices inside a group keep their original order.
func NewGroupIndex(groups []int) *GroupIndex {
	byID := make(map[int][]int)
	for i, g := range groups {
		byID[g] = append(byID[g], i)
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	gi := &GroupIndex{
		ids:     ids,
		indices: make([][]int, len(ids)),
		total:   len(groups),
	}
	for k, id := range ids {
		gi.indices[k] = byID[id]
		if n := len(gi.indices[k]); n > gi.maxSize {
			gi.maxSize = n
		}
	}
	return gi
}

// Len returns the number of groups.
func (gi *GroupIndex) Len() int { return len(gi.ids) }

// ID returns the group id at position k.
func (gi *GroupIndex) ID(k int) int { return gi.ids[k] }

// Indices returns the localization indices of the group at position k.
// The returned slice must not be modified.
func (gi *GroupIndex) Indices(k int) []int { return gi.indices[k] }

// MaxGroupSize returns the size of the largest group.
func (gi *GroupIndex) MaxGroupSize() int { return gi.maxSize }

// Covers reports whether the group index sets partition [0, n) exactly:
// every index appears in exactly one group and no index is out of range.
func (gi *GroupIndex) Covers(n int) error {
	if gi.total != n {
		return fmt.Errorf("group index built for %d localizations, set has %d", gi.total, n)
	}
	seen := make([]bool, n)
	for k, idx := range gi.indices {
		for _, i := range idx {
			if i < 0 || i >= n {
				return fmt.Errorf("group %d: index %d out of range [0, %d)", gi.ids[k], i, n)
			}
			if seen[i] {
				return fmt.Errorf("group %d: index %d assigned twice", gi.ids[k], i)
			}
			seen[i] = true
		}
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("index %d belongs to no group", i)
		}
	}
	return nil
}
