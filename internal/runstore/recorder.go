package runstore

import (
	"errors"
	"sync"

	"github.com/banshee-data/particle-average/internal/average"
	"github.com/banshee-data/particle-average/internal/locs"
)

// Recorder writes the events of one run to a Store. Create it after Start
// succeeds and pass it every event the run delivers.
type Recorder struct {
	store *Store

	mu       sync.Mutex
	run      Run
	finished bool
}

// NewRecorder inserts the run row and returns a recorder for its events.
func NewRecorder(store *Store, run Run) (*Recorder, error) {
	if run.RunID == "" {
		return nil, errors.New("runstore: run id is required")
	}
	run.Status = StatusRunning
	if err := store.InsertRun(&run); err != nil {
		return nil, err
	}
	diagf("recording run %s", run.RunID)
	return &Recorder{store: store, run: run}, nil
}

// Observe records ev. Events of other runs are ignored.
func (r *Recorder) Observe(ev average.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.RunID != r.run.RunID || r.finished {
		return nil
	}

	switch ev.Kind {
	case average.EventProgress:
		s := ev.Snapshot
		if s == nil || !s.Done {
			return nil
		}
		r.run.IterationsCompleted = s.Iteration
		r.run.Warnings += s.Warnings
		r.run.Failures += s.Failures
		return r.store.InsertIteration(&Iteration{
			RunID:           r.run.RunID,
			Iteration:       s.Iteration,
			GroupsCompleted: s.GroupsCompleted,
			Warnings:        s.Warnings,
			Failures:        s.Failures,
			Duration:        s.Elapsed,
			Spread:          locs.Spread(s.Coordinates),
			CreatedAt:       ev.Time.UnixNano(),
		})

	case average.EventGroupWarning, average.EventGroupFailure:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return r.store.InsertGroupEvent(&GroupEvent{
			RunID:     r.run.RunID,
			Iteration: ev.Iteration,
			GroupID:   ev.Group,
			Kind:      ev.Kind.String(),
			Message:   msg,
			CreatedAt: ev.Time.UnixNano(),
		})

	case average.EventStopped, average.EventRunFailed:
		r.finished = true
		switch {
		case ev.Kind == average.EventRunFailed:
			r.run.Status = StatusFailed
		case ev.Err != nil:
			r.run.Status = StatusStopped
		default:
			r.run.Status = StatusComplete
		}
		if ev.Err != nil {
			r.run.Error = ev.Err.Error()
		}
		finished := ev.Time.UnixNano()
		r.run.FinishedAt = &finished
		return r.store.FinishRun(&r.run)
	}
	return nil
}

// SetDropped records the number of intermediate snapshots the run dropped.
// It takes effect on the next terminal event.
func (r *Recorder) SetDropped(n uint64) {
	r.mu.Lock()
	r.run.DroppedSnapshots = int(n)
	r.mu.Unlock()
}

// Run returns a copy of the run as recorded so far.
func (r *Recorder) Run() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}
