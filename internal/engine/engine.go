package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/pending"
	"github.com/roach88/ledgersync/internal/remote"
)

// Persister writes collections of the ledger to local storage.
// localstore.Ledger implements it.
type Persister interface {
	Save(ctx context.Context, state *ledger.State, keys ...string) error
}

// Origin says where an applied event came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Applied describes one event the loop has finished with. Observers run on
// the loop goroutine and must not call back into the engine.
type Applied struct {
	// Revision is the clock value the event took, 0 if it changed nothing.
	Revision int64  `json:"revision"`
	Origin   Origin `json:"origin"`
	// Op is the operation name for local events and the change type for
	// remote ones.
	Op    string       `json:"op"`
	Table remote.Table `json:"table"`
	Key   string       `json:"key"`
	// Echo is set for a remote event recognized as this session's own write.
	Echo bool `json:"echo,omitempty"`
}

// Stats counts loop activity since New.
type Stats struct {
	Mutations      int64
	Merged         int64
	Echoes         int64
	DecodeFailures int64
	WriteFailures  int64
}

const (
	// DefaultWriteTimeout bounds one dispatched remote write batch.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultResubscribeDelay is the pause before reopening a changefeed.
	DefaultResubscribeDelay = 2 * time.Second
)

// Engine owns the local ledger replica and keeps it in step with the remote
// store.
//
// Thread-safety model:
//   - operations (AddCustomer, RegisterPayment, ...) and Snapshot: safe from
//     any goroutine; they queue work for Run and wait for the result
//   - Run: exactly one goroutine
//   - Start, Close, Flush: safe from any goroutine
type Engine struct {
	state   *ledger.State
	remote  remote.Store
	local   Persister
	tracker *pending.Tracker
	ids     ledger.IDGenerator
	catalog []ledger.StockItem
	today   func() string
	clock   *Clock
	queue   *eventQueue
	log     zerolog.Logger
	observe func(Applied)

	writeTimeout     time.Duration
	resubscribeDelay time.Duration
	writes           sync.WaitGroup

	mutations      atomic.Int64
	merged         atomic.Int64
	echoes         atomic.Int64
	decodeFailures atomic.Int64
	writeFailures  atomic.Int64

	subMu     sync.Mutex
	subCancel context.CancelFunc
	subWG     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithRemote connects the engine to a shared store. Without one the engine
// runs offline: local operations apply and persist, nothing is sent.
func WithRemote(s remote.Store) Option {
	return func(e *Engine) { e.remote = s }
}

// WithPersister sets where touched collections are saved after each change.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.local = p }
}

// WithTracker replaces the pending-write tracker.
func WithTracker(t *pending.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithIDs sets the generator for new record ids.
func WithIDs(g ledger.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithCatalog sets the stock list used when the ledger is reset.
func WithCatalog(items []ledger.StockItem) Option {
	return func(e *Engine) { e.catalog = items }
}

// WithToday sets the date source for entries the engine dates itself.
func WithToday(f func() string) Option {
	return func(e *Engine) { e.today = f }
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithObserver registers a callback for every finished event.
func WithObserver(f func(Applied)) Option {
	return func(e *Engine) { e.observe = f }
}

// WithWriteTimeout bounds each dispatched remote write batch.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) { e.writeTimeout = d }
}

// WithResubscribeDelay sets the pause before reopening an ended changefeed.
func WithResubscribeDelay(d time.Duration) Option {
	return func(e *Engine) { e.resubscribeDelay = d }
}

// New creates an engine owning state. A nil state starts from the default
// catalog.
func New(state *ledger.State, opts ...Option) *Engine {
	e := &Engine{
		state:            state,
		ids:              ledger.UUIDv7Generator{},
		catalog:          ledger.DefaultCatalog(),
		today:            ledger.Today,
		clock:            NewClock(),
		queue:            newEventQueue(),
		log:              zerolog.Nop(),
		writeTimeout:     DefaultWriteTimeout,
		resubscribeDelay: DefaultResubscribeDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = pending.NewTracker()
	}
	if e.state == nil {
		e.state = ledger.NewState(e.catalog)
	}
	return e
}

// Run is the single-writer loop. It applies queued mutations and changes
// in FIFO order until ctx is cancelled or Stop is called, then fails any
// mutation still queued with ErrStopped.
//
// Failures inside an event are logged and the loop moves on.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Msg("engine starting")
	defer e.failQueued()

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			if e.queue.Len() == 0 && e.queue.isClosed() {
				e.log.Info().Msg("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queued events are applied.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) failQueued() {
	for _, ev := range e.queue.Drain() {
		if ev.Type == EventTypeMutation && ev.Mutation != nil {
			ev.Mutation.done <- ErrStopped
		}
	}
}

func (e *Engine) process(ev Event) {
	switch ev.Type {
	case EventTypeMutation:
		if ev.Mutation == nil {
			e.log.Error().Msg("mutation event without mutation")
			return
		}
		ev.Mutation.done <- ev.Mutation.run()
	case EventTypeChange:
		if ev.Change == nil {
			e.log.Error().Msg("change event without change")
			return
		}
		e.applyChange(*ev.Change)
	default:
		e.log.Error().Int("type", int(ev.Type)).Msg("unknown event type")
	}
}

// submit queues run for the loop and waits for its result. If ctx ends
// first the caller stops waiting but the mutation still runs.
func (e *Engine) submit(ctx context.Context, name string, run func() error) error {
	m := &mutation{name: name, run: run, done: make(chan error, 1)}
	if !e.queue.Enqueue(Event{Type: EventTypeMutation, Mutation: m}) {
		return ErrStopped
	}
	select {
	case err := <-m.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit finishes a local mutation: mark its records pending, save the
// touched collections, then hand the remote writes to a background
// goroutine.
func (e *Engine) commit(op string, table remote.Table, key string, touched []string, batch writeBatch) {
	rev := e.clock.Next()
	e.mutations.Add(1)
	e.markPending(batch)
	e.persist(touched...)
	e.dispatch(op, batch)

	e.log.Debug().Str("op", op).Str("table", string(table)).Str("record_id", key).Int64("seq", rev).Msg("local change applied")
	e.notify(Applied{Revision: rev, Origin: OriginLocal, Op: op, Table: table, Key: key})
}

// persist saves collections of the ledger. Failures are logged only.
func (e *Engine) persist(keys ...string) {
	if e.local == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
	defer cancel()
	if err := e.local.Save(ctx, e.state, keys...); err != nil {
		e.log.Error().Err(err).Strs("keys", keys).Msg("persist local ledger")
	}
}

func (e *Engine) notify(a Applied) {
	if e.observe != nil {
		e.observe(a)
	}
}

// Snapshot returns a deep copy of the ledger as of every event queued
// before the call.
func (e *Engine) Snapshot(ctx context.Context) (*ledger.State, error) {
	var out *ledger.State
	err := e.submit(ctx, "snapshot", func() error {
		out = e.state.Clone()
		return nil
	})
	return out, err
}

// Revision returns the number of events that changed the ledger.
func (e *Engine) Revision() int64 {
	return e.clock.Current()
}

// Pending returns the number of records awaiting their changefeed echo.
func (e *Engine) Pending() int {
	return e.tracker.Len()
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Mutations:      e.mutations.Load(),
		Merged:         e.merged.Load(),
		Echoes:         e.echoes.Load(),
		DecodeFailures: e.decodeFailures.Load(),
		WriteFailures:  e.writeFailures.Load(),
	}
}
