package average

import (
	"errors"
	"fmt"

	"github.com/banshee-data/particle-average/internal/align"
)

var (
	// ErrRunInProgress is returned when a run is started, or a dataset loaded,
	// while another run is active. Runs are rejected, never queued.
	ErrRunInProgress = errors.New("averaging run already in progress")
	// ErrNoDataset is returned when Start is called before Load.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrInvalidRequest is returned for out-of-range run parameters.
	ErrInvalidRequest = errors.New("invalid averaging request")
	// ErrDegenerateDataset is returned when a dataset has no usable extent.
	ErrDegenerateDataset = errors.New("degenerate dataset")
	// ErrPoolClosed is returned when the worker pool has been shut down.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrClosed is returned by any call on a closed controller.
	ErrClosed = errors.New("controller is closed")
	// ErrResourceExhausted is returned when preparing a run fails to size or
	// allocate its buffers. It is reported before any iteration starts.
	ErrResourceExhausted = errors.New("cannot allocate resources for run")
	// ErrWorkerFailure wraps an unexpected fault inside a group task.
	ErrWorkerFailure = errors.New("worker failure")
)

// GroupError reports a group whose update was skipped in one iteration.
type GroupError struct {
	Group     int
	Iteration int
	Err       error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("iteration %d, group %d: %v", e.Iteration, e.Group, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// IsWarning reports whether err is a recoverable per-group condition that
// is expected on real data rather than a fault.
func IsWarning(err error) bool {
	return errors.Is(err, align.ErrEmptyGroupInView) || errors.Is(err, align.ErrNoPeak)
}
