package engine

import (
	"sync"

	"github.com/roach88/ledgersync/internal/remote"
)

// EventType distinguishes the two kinds of loop input.
type EventType int

const (
	// EventTypeMutation is a local operation submitted by a caller.
	EventTypeMutation EventType = iota + 1
	// EventTypeChange is a changefeed event from the remote store.
	EventTypeChange
)

// Event is one unit of work for the Run loop.
type Event struct {
	Type     EventType
	Mutation *mutation
	Change   *remote.Change
}

// mutation runs on the loop goroutine; its error goes back to the caller.
type mutation struct {
	name string
	run  func() error
	done chan error // buffered, size 1
}

// eventQueue is an unbounded FIFO shared by callers, the changefeed
// forwarders and the Run loop. Enqueue never blocks, so a burst of remote
// changes cannot stall a subscription goroutine.
//
// A buffered signal channel of size 1 lets Run wait on the queue and a
// context at once.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Clear the slot so the backing array does not pin the event.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait signals that events may be available. The channel is closed when
// the queue is.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes the waiter. Queued events can
// still be dequeued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns every queued event.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}
