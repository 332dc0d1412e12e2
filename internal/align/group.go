package align

import (
	"github.com/banshee-data/particle-average/internal/locs"
)

// Group is a handle on one group's localizations inside the shared store.
// Tasks are given whole groups and groups never share indices, so a Group
// may be read and written without locking while other groups are updated
// concurrently.
type Group struct {
	ID  int
	set *locs.Set
	idx []int
}

// NewGroup scopes a handle to the given indices of set.
func NewGroup(set *locs.Set, id int, idx []int) Group {
	return Group{ID: id, set: set, idx: idx}
}

// Indices returns the localization indices covered by the handle.
func (g Group) Indices() []int { return g.idx }

// Len returns the number of localizations in the group.
func (g Group) Len() int { return len(g.idx) }

// Aligner runs the rotation search for whole groups and writes the result
// back. Like Searcher it belongs to a single goroutine.
type Aligner struct {
	*Searcher
	ox, oy []float64
	nx, ny []float64
}

// NewAligner allocates an aligner for n×n images and groups of up to maxGroup
// localizations.
func NewAligner(n, maxGroup int) *Aligner {
	return &Aligner{
		Searcher: NewSearcher(n, maxGroup),
		ox:       make([]float64, maxGroup),
		oy:       make([]float64, maxGroup),
		nx:       make([]float64, maxGroup),
		ny:       make([]float64, maxGroup),
	}
}

func (a *Aligner) resize(n int) {
	if cap(a.ox) < n {
		a.ox, a.oy = make([]float64, n), make([]float64, n)
		a.nx, a.ny = make([]float64, n), make([]float64, n)
	}
	a.ox, a.oy = a.ox[:n], a.oy[:n]
	a.nx, a.ny = a.nx[:n], a.ny[:n]
}

// Align searches the group's current coordinates against the task reference
// and replaces them with the transformed coordinates. The new coordinates are
// computed in full before the store is touched; on error the group is left
// unchanged.
func (a *Aligner) Align(task *Task, g Group) (Result, error) {
	a.resize(g.Len())
	g.set.Gather(g.idx, a.ox, a.oy)

	res, err := a.Search(task, a.ox, a.oy)
	if err != nil {
		return Result{}, err
	}
	res.Apply(a.ox, a.oy, a.nx, a.ny)
	g.set.Scatter(g.idx, a.nx, a.ny)
	return res, nil
}
