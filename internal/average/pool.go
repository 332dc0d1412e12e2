package average

import (
	"sync"
)

// job is one contiguous chunk of group ordinals for one iteration.
type job struct {
	it    *iteration
	first int
	last  int // exclusive
}

// pool is a fixed set of worker goroutines created once per loaded dataset
// and reused by every iteration of every run on that dataset.
type pool struct {
	size   int
	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	p := &pool{size: size, jobs: make(chan job)}
	p.wg.Add(size)
	for id := 0; id < size; id++ {
		go p.worker(id)
	}
	diagf("worker pool started: workers=%d", size)
	return p
}

func (p *pool) worker(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		j.it.runChunk(id, j.first, j.last)
	}
}

// submit hands a job to the next free worker. It blocks until a worker
// accepts it and fails once the pool is shut down.
func (p *pool) submit(j job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.jobs <- j
	return nil
}

// shutdown stops accepting jobs and waits for the workers to exit. Workers
// finish the chunk they hold first. Safe to call more than once.
func (p *pool) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
	diagf("worker pool stopped: workers=%d", p.size)
}

// chunks splits nGroups ordinals into contiguous ranges of
// max(1, nGroups/workers) groups. The last range may be shorter.
func chunks(nGroups, workers int) [][2]int {
	if nGroups <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := nGroups / workers
	if size < 1 {
		size = 1
	}
	out := make([][2]int, 0, (nGroups+size-1)/size)
	for first := 0; first < nGroups; first += size {
		last := first + size
		if last > nGroups {
			last = nGroups
		}
		out = append(out, [2]int{first, last})
	}
	return out
}
