package remote

import "sync"

// Feed is a Subscription backed by an unbounded FIFO buffer. Store adapters
// Push changes from their listener goroutine; a pump goroutine hands them to
// the Changes channel so a slow consumer never blocks the listener.
type Feed struct {
	mu      sync.Mutex
	pending []Change
	ended   bool
	signal  chan struct{} // buffered, size 1
	out     chan Change
	done    chan struct{}
	once    sync.Once
	onClose func() error
}

// NewFeed starts a feed. onClose, if set, runs once on Close to release the
// adapter's listener.
func NewFeed(onClose func() error) *Feed {
	f := &Feed{
		pending: make([]Change, 0, 16),
		signal:  make(chan struct{}, 1),
		out:     make(chan Change),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go f.pump()
	return f
}

// Push queues a change. Returns false once the feed has ended or closed.
func (f *Feed) Push(c Change) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended {
		return false
	}
	f.pending = append(f.pending, c)
	select {
	case f.signal <- struct{}{}:
	default:
	}
	return true
}

// End marks the source as finished. Buffered changes are still delivered,
// then Changes is closed.
func (f *Feed) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended {
		return
	}
	f.ended = true
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Changes implements Subscription.
func (f *Feed) Changes() <-chan Change {
	return f.out
}

// Close implements Subscription. Undelivered changes are dropped.
func (f *Feed) Close() error {
	var err error
	f.once.Do(func() {
		f.End()
		close(f.done)
		if f.onClose != nil {
			err = f.onClose()
		}
	})
	return err
}

func (f *Feed) next() (Change, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return Change{}, false, f.ended
	}
	c := f.pending[0]
	f.pending[0] = Change{}
	f.pending = f.pending[1:]
	return c, true, false
}

func (f *Feed) pump() {
	defer close(f.out)
	for {
		c, ok, ended := f.next()
		if !ok {
			if ended {
				return
			}
			select {
			case <-f.signal:
				continue
			case <-f.done:
				return
			}
		}
		select {
		case f.out <- c:
		case <-f.done:
			return
		}
	}
}
