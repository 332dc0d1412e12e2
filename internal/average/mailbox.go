package average

import (
	"sync"
	"sync/atomic"
)

// mailbox decouples the controller from the event consumer. Posting never
// blocks: events queue in memory and a forwarding goroutine hands them to
// the consumer channel. When the consumer falls behind, a pending
// intermediate snapshot at the tail of the queue is replaced by a newer one.
// Every other event is delivered.
type mailbox struct {
	mu      sync.Mutex
	queue   []Event
	closed  bool
	wake    chan struct{}
	out     chan Event
	dropped atomic.Uint64
}

func newMailbox(buffer int) *mailbox {
	if buffer < 0 {
		buffer = 0
	}
	m := &mailbox{
		wake: make(chan struct{}, 1),
		out:  make(chan Event, buffer),
	}
	go m.forward()
	return m
}

// post enqueues ev. Posting after close is a no-op.
func (m *mailbox) post(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if n := len(m.queue); n > 0 && ev.droppable() && m.queue[n-1].droppable() {
		m.queue[n-1] = ev
		m.dropped.Add(1)
	} else {
		m.queue = append(m.queue, ev)
	}
	m.mu.Unlock()
	m.signal()
}

// close marks the end of the stream. Queued events are still delivered and
// the consumer channel is closed after the last one.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Dropped returns the number of intermediate snapshots replaced before
// delivery.
func (m *mailbox) Dropped() uint64 { return m.dropped.Load() }

func (m *mailbox) forward() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			<-m.wake
			continue
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.out <- ev
	}
}
