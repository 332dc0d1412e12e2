package average

import (
	"time"

	"github.com/banshee-data/particle-average/internal/locs"
)

// EventKind classifies events on the progress stream.
type EventKind int

const (
	// EventProgress carries a ProgressSnapshot.
	EventProgress EventKind = iota
	// EventGroupWarning reports a group skipped for a recoverable reason.
	EventGroupWarning
	// EventGroupFailure reports a group skipped because its task failed.
	EventGroupFailure
	// EventRunFailed is the terminal event of a run ended by a fatal error.
	EventRunFailed
	// EventStopped is the terminal event of a run that finished or was cancelled.
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventGroupWarning:
		return "group_warning"
	case EventGroupFailure:
		return "group_failure"
	case EventRunFailed:
		return "run_failed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ProgressSnapshot describes a run's progress at one point in time. It is
// never modified after it has been published.
type ProgressSnapshot struct {
	Iteration  int
	Iterations int
	// GroupsProcessed counts groups whose task has started in this iteration.
	GroupsProcessed int
	// GroupsCompleted counts groups whose task has finished in this iteration,
	// including those that ended with a warning or failure.
	GroupsCompleted int
	Groups          int
	Warnings        int
	Failures        int
	Elapsed         time.Duration
	// Coordinates is a copy of the store, set only when Done is true.
	Coordinates *locs.Set
	Done        bool
}

// Event is one entry of the progress stream.
type Event struct {
	Kind      EventKind
	RunID     string
	Iteration int
	// Group is the group id for group events, -1 otherwise.
	Group    int
	Time     time.Time
	Snapshot *ProgressSnapshot
	// Err is a *GroupError for group events, the cause for EventRunFailed,
	// and nil or the context error for EventStopped.
	Err error
}

// droppable reports whether the event is an intermediate snapshot that may be
// replaced by a newer one under backpressure.
func (e Event) droppable() bool {
	return e.Kind == EventProgress && e.Snapshot != nil && !e.Snapshot.Done
}
