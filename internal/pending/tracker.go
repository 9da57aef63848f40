// Package pending tracks records this client has just written to the remote
// store, so the changefeed echo of that write can be recognized and dropped.
//
// A marker lives for TTL after Add. Expiry always happens, whether or not the
// marker was removed earlier, so a lost echo never hides a later external
// change to the same record for longer than TTL.
package pending

import (
	"sync"
	"time"
)

// TTL is how long a marker stays pending after Add.
const TTL = 5 * time.Second

// Clock schedules marker expiry. AfterFunc runs f after d and returns a
// function that cancels it (reporting whether it was still scheduled).
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SystemClock schedules expiry with time.AfterFunc.
type SystemClock struct{}

// AfterFunc implements Clock.
func (SystemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Key builds the marker key for a record: "table:id".
func Key(table, id string) string {
	return table + ":" + id
}

type marker struct {
	gen  uint64
	stop func() bool
}

// Tracker is the set of pending markers.
//
// Thread-safety: all methods are safe for concurrent use. Expiry callbacks
// run on the clock's goroutine and take the same lock.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	markers map[string]marker
	gen     uint64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides the marker lifetime.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

// WithClock injects the clock used for expiry (tests use a fake clock).
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// NewTracker creates an empty tracker with TTL and the system clock.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		ttl:     TTL,
		clock:   SystemClock{},
		markers: make(map[string]marker),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add marks key pending and schedules its removal after the TTL. Adding a
// key that is already pending restarts its expiry.
func (t *Tracker) Add(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.markers[key]; ok {
		old.stop()
	}
	t.gen++
	gen := t.gen
	stop := t.clock.AfterFunc(t.ttl, func() { t.expire(key, gen) })
	t.markers[key] = marker{gen: gen, stop: stop}
}

// expire removes key only if it still belongs to the Add that scheduled this
// callback; a later Add of the same key has its own timer.
func (t *Tracker) expire(key string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.markers[key]; ok && m.gen == gen {
		delete(t.markers, key)
	}
}

// Remove drops the marker. Removing an absent key is a no-op.
func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(key)
}

func (t *Tracker) removeLocked(key string) bool {
	m, ok := t.markers[key]
	if !ok {
		return false
	}
	m.stop()
	delete(t.markers, key)
	return true
}

// Contains reports whether key is pending.
func (t *Tracker) Contains(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.markers[key]
	return ok
}

// Consume removes key and reports whether it was pending, as one step.
func (t *Tracker) Consume(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(key)
}

// Len returns the number of pending markers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.markers)
}

// Reset drops every marker and cancels their timers.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.markers {
		t.removeLocked(key)
	}
}
