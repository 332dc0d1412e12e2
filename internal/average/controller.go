package average

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/particle-average/internal/align"
	"github.com/banshee-data/particle-average/internal/locs"
	"github.com/banshee-data/particle-average/internal/render"
	"github.com/banshee-data/particle-average/internal/xcorr"
)

// State is the lifecycle state of a Controller.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateFailed  State = "failed"
)

// Config holds the controller settings that outlive a single run.
type Config struct {
	// Workers fixes the pool size. Zero derives it from WorkerFraction.
	Workers int
	// WorkerFraction is the share of GOMAXPROCS used for the pool.
	WorkerFraction float64
	// ProgressInterval is the period of intermediate progress snapshots.
	ProgressInterval time.Duration
	// MaxImagePixels caps the side² of the rendered images of one run.
	MaxImagePixels int
	// EventBuffer is the capacity of the channel returned by Start.
	EventBuffer int
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		WorkerFraction:   0.75,
		ProgressInterval: 500 * time.Millisecond,
		MaxImagePixels:   2048 * 2048,
		EventBuffer:      16,
	}
}

// PoolSize returns the number of workers the config yields on this machine.
func (c Config) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := int(c.WorkerFraction * float64(runtime.GOMAXPROCS(0)))
	if n < 1 {
		n = 1
	}
	return n
}

// Request holds the parameters of one averaging run.
type Request struct {
	Oversampling float64 `json:"oversampling"`
	Iterations   int     `json:"iterations"`
}

// Validate checks the request ranges.
func (r Request) Validate() error {
	if math.IsNaN(r.Oversampling) || math.IsInf(r.Oversampling, 0) || r.Oversampling < 1 {
		return fmt.Errorf("%w: oversampling must be a finite value >= 1, got %v", ErrInvalidRequest, r.Oversampling)
	}
	if r.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be >= 0, got %d", ErrInvalidRequest, r.Iterations)
	}
	return nil
}

// Status is a point-in-time copy of the controller state.
type Status struct {
	State         State  `json:"state"`
	RunID         string `json:"run_id,omitempty"`
	Iteration     int    `json:"iteration"`
	Iterations    int    `json:"iterations"`
	Groups        int    `json:"groups"`
	Localizations int    `json:"localizations"`
	Workers       int    `json:"workers"`
	Warnings      int    `json:"warnings"`
	Failures      int    `json:"failures"`
	Dropped       uint64 `json:"dropped_snapshots"`
	Error         string `json:"error,omitempty"`
}

// testHooks are called from worker goroutines around each group update.
type testHooks struct {
	beforeAlign func(iteration, group int)
	afterAlign  func(iteration, group int, idx []int)
}

// Controller runs iterative averaging over one loaded dataset at a time.
// At most one run is active; further Start calls are rejected until it ends.
type Controller struct {
	cfg Config

	mu     sync.RWMutex
	status Status
	set    *locs.Set
	gi     *locs.GroupIndex
	radius float64
	pool   *pool
	run    *run
	closed bool

	hooks testHooks
}

// New creates a controller with no dataset.
func New(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.WorkerFraction <= 0 {
		cfg.WorkerFraction = def.WorkerFraction
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.MaxImagePixels <= 0 {
		cfg.MaxImagePixels = def.MaxImagePixels
	}
	if cfg.EventBuffer < 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	return &Controller{cfg: cfg, status: Status{State: StateIdle}}
}

// Load takes ownership of set as the coordinate store, replacing any
// previous dataset. The set must already be centred (see locs.Prepare).
// The previous worker pool is shut down before the new one starts.
func (c *Controller) Load(set *locs.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	gi := locs.NewGroupIndex(set.Group)
	if err := gi.Covers(set.Len()); err != nil {
		return err
	}
	radius := locs.BoundingRadius(set)
	if !(radius > 0) || math.IsInf(radius, 0) {
		return fmt.Errorf("%w: bounding radius %v", ErrDegenerateDataset, radius)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.status.State == StateRunning {
		return ErrRunInProgress
	}
	if c.pool != nil {
		c.pool.shutdown()
	}
	c.set, c.gi, c.radius = set, gi, radius
	c.pool = newPool(c.cfg.PoolSize())
	c.run = nil
	c.status = Status{
		State:         StateIdle,
		Groups:        gi.Len(),
		Localizations: set.Len(),
		Workers:       c.pool.size,
	}
	diagf("dataset loaded: localizations=%d groups=%d radius=%.3f", set.Len(), gi.Len(), radius)
	return nil
}

// Start validates req, prepares every buffer the run needs and launches it in
// the background. The returned channel carries the run's events and is
// closed after the terminal EventStopped or EventRunFailed. Callers must
// drain it.
func (c *Controller) Start(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return nil, ErrClosed
	case c.status.State == StateRunning:
		return nil, ErrRunInProgress
	case c.set == nil:
		return nil, ErrNoDataset
	case c.pool == nil || c.pool.closed:
		return nil, ErrPoolClosed
	}

	r, err := c.prepare(req)
	if err != nil {
		opsf("run preparation failed: %v", err)
		return nil, err
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	c.run = r
	c.status.State = StateRunning
	c.status.RunID = r.id
	c.status.Iteration = 0
	c.status.Iterations = req.Iterations
	c.status.Warnings, c.status.Failures, c.status.Dropped = 0, 0, 0
	c.status.Error = ""

	diagf("run %s started: oversampling=%v iterations=%d pixels=%d angles=%d workers=%d",
		r.id, req.Oversampling, req.Iterations, r.renderer.Pixels(), len(r.angles), len(r.aligners))
	go c.execute(r)
	return r.events.out, nil
}

// prepare sizes and allocates everything a run needs. Any failure is
// reported as ErrResourceExhausted and leaves the controller untouched.
func (c *Controller) prepare(req Request) (r *run, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", ErrResourceExhausted, p)
		}
	}()

	vp := render.Symmetric(c.radius)
	side := math.Ceil(req.Oversampling * (vp.Max - vp.Min))
	if math.IsInf(side, 0) || side*side > float64(c.cfg.MaxImagePixels) {
		return nil, fmt.Errorf("%w: %v×%v image exceeds limit of %d pixels",
			ErrResourceExhausted, side, side, c.cfg.MaxImagePixels)
	}
	renderer, err := render.NewRenderer(req.Oversampling, vp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	angles, err := align.AngleGrid(req.Oversampling, c.radius)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	n := renderer.Pixels()
	aligners := make([]*align.Aligner, c.pool.size)
	for i := range aligners {
		aligners[i] = align.NewAligner(n, c.gi.MaxGroupSize())
	}

	return &run{
		id:       uuid.NewString(),
		req:      req,
		ctrl:     c,
		set:      c.set,
		gi:       c.gi,
		pool:     c.pool,
		renderer: renderer,
		angles:   angles,
		corr:     xcorr.NewCorrelator(n),
		refImg:   renderer.NewImage(),
		aligners: aligners,
		chunks:   chunks(c.gi.Len(), c.pool.size),
		events:   newMailbox(c.cfg.EventBuffer),
		interval: c.cfg.ProgressInterval,
		done:     make(chan struct{}),
	}, nil
}

// execute is the run goroutine.
func (c *Controller) execute(r *run) {
	r.started = time.Now()
	err := r.loop()

	c.mu.Lock()
	c.status.Dropped = r.events.Dropped()
	ev := Event{Kind: EventStopped, RunID: r.id, Iteration: c.status.Iteration, Group: -1, Time: time.Now()}
	switch {
	case err == nil:
		c.status.State = StateStopped
		diagf("run %s finished after %d iterations in %v", r.id, r.req.Iterations, time.Since(r.started))
	case isCancellation(err):
		c.status.State = StateStopped
		ev.Err = err
		diagf("run %s stopped during iteration %d: %v", r.id, c.status.Iteration, err)
	default:
		c.status.State = StateFailed
		c.status.Error = err.Error()
		ev.Kind = EventRunFailed
		ev.Err = err
		opsf("run %s failed: %v", r.id, err)
	}
	c.mu.Unlock()

	r.cancel()
	r.events.post(ev)
	r.events.close()
	close(r.done)
}

// Stop cancels the active run and waits for it to end. It is a no-op when
// no run is active.
func (c *Controller) Stop() {
	c.mu.RLock()
	r := c.run
	c.mu.RUnlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Wait blocks until the active run, if any, has ended.
func (c *Controller) Wait() {
	c.mu.RLock()
	r := c.run
	c.mu.RUnlock()
	if r != nil {
		<-r.done
	}
}

// Close stops any run and shuts the worker pool down. Further calls on the
// controller fail with ErrClosed. Safe to call more than once.
func (c *Controller) Close() error {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pool != nil {
		c.pool.shutdown()
	}
	return nil
}

// Status returns a copy of the current controller state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Coordinates returns a copy of the coordinate store. It fails while a run
// is active since workers are writing to the store.
func (c *Controller) Coordinates() (*locs.Set, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status.State == StateRunning {
		return nil, ErrRunInProgress
	}
	if c.set == nil {
		return nil, ErrNoDataset
	}
	return c.set.Clone(), nil
}

// Radius returns the bounding radius of the loaded dataset.
func (c *Controller) Radius() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.radius
}

// AverageImage renders the current store at the given oversampling, the
// same way each iteration renders its reference.
func (c *Controller) AverageImage(oversampling float64) (*render.Image, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status.State == StateRunning {
		return nil, ErrRunInProgress
	}
	if c.set == nil {
		return nil, ErrNoDataset
	}
	vp := render.Symmetric(c.radius)
	if side := math.Ceil(oversampling * (vp.Max - vp.Min)); side*side > float64(c.cfg.MaxImagePixels) {
		return nil, fmt.Errorf("%w: %v×%v image exceeds limit of %d pixels",
			ErrResourceExhausted, side, side, c.cfg.MaxImagePixels)
	}
	r, err := render.NewRenderer(oversampling, vp)
	if err != nil {
		return nil, err
	}
	_, img := r.Render(c.set.X, c.set.Y)
	return img, nil
}

func (c *Controller) setIteration(i int) {
	c.mu.Lock()
	c.status.Iteration = i
	c.mu.Unlock()
}

func (c *Controller) addGroupCounts(warnings, failures int) {
	c.mu.Lock()
	c.status.Warnings += warnings
	c.status.Failures += failures
	c.mu.Unlock()
}
