package average

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/particle-average/internal/align"
	"github.com/banshee-data/particle-average/internal/locs"
	"github.com/banshee-data/particle-average/internal/render"
	"github.com/banshee-data/particle-average/internal/xcorr"
)

// run holds everything prepared for one Start call.
type run struct {
	id     string
	req    Request
	ctrl   *Controller
	ctx    context.Context
	cancel context.CancelFunc

	set      *locs.Set
	gi       *locs.GroupIndex
	pool     *pool
	renderer *render.Renderer
	angles   []float64
	corr     *xcorr.Correlator
	refImg   *render.Image
	// aligners is indexed by pool worker id.
	aligners []*align.Aligner
	chunks   [][2]int

	events   *mailbox
	interval time.Duration
	started  time.Time
	done     chan struct{}
}

// outcome is a worker's completion notification for one group.
type outcome struct {
	group int
	res   align.Result
	err   error
}

// iteration is the state shared between the run goroutine and the workers
// for one pass over the groups.
type iteration struct {
	run   *run
	index int
	task  *align.Task

	processed atomic.Int64
	completed atomic.Int64
	skipped   atomic.Int64
	pending   sync.WaitGroup
	notify    chan outcome
}

func (r *run) loop() error {
	for i := 1; i <= r.req.Iterations; i++ {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		r.ctrl.setIteration(i)
		if err := r.iterate(i); err != nil {
			return err
		}
	}
	return nil
}

// iterate performs one full pass: freeze the reference, align every group
// on the pool, recentre, and publish the result.
func (r *run) iterate(i int) error {
	start := time.Now()
	r.renderer.RenderInto(r.refImg, r.set.X, r.set.Y)
	it := &iteration{
		run:   r,
		index: i,
		task: &align.Task{
			Renderer:  r.renderer,
			Reference: r.corr.Reference(r.refImg),
			Angles:    r.angles,
		},
		notify: make(chan outcome, r.gi.Len()),
	}
	diagf("run %s iteration %d/%d: reference rendered, %d chunks", r.id, i, r.req.Iterations, len(r.chunks))

	finished := make(chan struct{})
	it.pending.Add(len(r.chunks))
	dispatchErr := make(chan error, 1)
	go func() {
		for k, ch := range r.chunks {
			if err := r.pool.submit(job{it: it, first: ch[0], last: ch[1]}); err != nil {
				it.pending.Add(-(len(r.chunks) - k))
				dispatchErr <- err
				break
			}
		}
		it.pending.Wait()
		close(finished)
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	warnings, failures := 0, 0
	var fatal error
	handle := func(o outcome) {
		if o.err == nil {
			tracef("run %s iteration %d group %d: angle=%.4f dx=%.3f dy=%.3f peak=%.1f in_view=%d",
				r.id, i, o.group, o.res.Angle, o.res.DX, o.res.DY, o.res.Peak, o.res.InView)
			return
		}
		gerr := &GroupError{Group: o.group, Iteration: i, Err: o.err}
		if errors.Is(o.err, xcorr.ErrDimensionMismatch) && fatal == nil {
			// Every later group would fail the same way.
			fatal = gerr
			r.cancel()
		}
		kind := EventGroupFailure
		if IsWarning(o.err) {
			kind = EventGroupWarning
			warnings++
			tracef("%v", gerr)
		} else {
			failures++
			opsf("%v", gerr)
		}
		r.events.post(Event{Kind: kind, RunID: r.id, Iteration: i, Group: o.group, Time: time.Now(), Err: gerr})
	}

wait:
	for {
		select {
		case o := <-it.notify:
			handle(o)
		case <-ticker.C:
			r.events.post(Event{Kind: EventProgress, RunID: r.id, Iteration: i, Group: -1, Time: time.Now(),
				Snapshot: it.snapshot(start, warnings, failures, nil)})
		case <-finished:
			break wait
		}
	}
	for drained := false; !drained; {
		select {
		case o := <-it.notify:
			handle(o)
		default:
			drained = true
		}
	}
	r.ctrl.addGroupCounts(warnings, failures)

	select {
	case err := <-dispatchErr:
		return err
	default:
	}
	if fatal != nil {
		return fatal
	}
	if it.skipped.Load() > 0 {
		diagf("run %s iteration %d cancelled: %d groups skipped", r.id, i, it.skipped.Load())
		return r.ctx.Err()
	}

	locs.Recenter(r.set)
	snap := it.snapshot(start, warnings, failures, r.set.Clone())
	snap.Done = true
	r.events.post(Event{Kind: EventProgress, RunID: r.id, Iteration: i, Group: -1, Time: time.Now(), Snapshot: snap})
	diagf("run %s iteration %d/%d done in %v: warnings=%d failures=%d",
		r.id, i, r.req.Iterations, time.Since(start), warnings, failures)
	return nil
}

func (it *iteration) snapshot(start time.Time, warnings, failures int, coords *locs.Set) *ProgressSnapshot {
	// completed is read first so it never exceeds processed.
	completed := it.completed.Load()
	processed := it.processed.Load()
	return &ProgressSnapshot{
		Iteration:       it.index,
		Iterations:      it.run.req.Iterations,
		GroupsProcessed: int(processed),
		GroupsCompleted: int(completed),
		Groups:          it.run.gi.Len(),
		Warnings:        warnings,
		Failures:        failures,
		Elapsed:         time.Since(start),
		Coordinates:     coords,
	}
}

// runChunk is executed by pool worker id for group ordinals [first, last).
// Cancellation is checked before each group.
func (it *iteration) runChunk(id, first, last int) {
	defer it.pending.Done()
	al := it.run.aligners[id]
	for k := first; k < last; k++ {
		if it.run.ctx.Err() != nil {
			it.skipped.Add(int64(last - k))
			return
		}
		it.processed.Add(1)
		res, err := it.alignGroup(al, k)
		it.completed.Add(1)
		it.notify <- outcome{group: it.run.gi.ID(k), res: res, err: err}
	}
}

// alignGroup updates one group in place. A panic inside the task is
// reported as ErrWorkerFailure.
func (it *iteration) alignGroup(al *align.Aligner, k int) (res align.Result, err error) {
	gi := it.run.gi
	id := gi.ID(k)
	defer func() {
		if p := recover(); p != nil {
			res = align.Result{}
			if perr, ok := p.(error); ok {
				err = fmt.Errorf("%w: %w", ErrWorkerFailure, perr)
				return
			}
			err = fmt.Errorf("%w: %v", ErrWorkerFailure, p)
		}
	}()

	hooks := it.run.ctrl.hooks
	if hooks.beforeAlign != nil {
		hooks.beforeAlign(it.index, id)
	}
	res, err = al.Align(it.task, align.NewGroup(it.run.set, id, gi.Indices(k)))
	if err != nil {
		return res, err
	}
	if hooks.afterAlign != nil {
		hooks.afterAlign(it.index, id, gi.Indices(k))
	}
	return res, nil
}

// isCancellation reports whether err ended a run because it was stopped.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
