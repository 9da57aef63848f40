package engine

import (
	"context"
	"time"

	"github.com/roach88/ledgersync/internal/remote"
)

// Start reconciles with the remote store and opens one changefeed per
// table. A failed bootstrap is logged and the session goes on with the
// local ledger. Start returns once every changefeed has made its first
// subscribe attempt; tables that failed keep retrying in the background.
func (e *Engine) Start(ctx context.Context) error {
	if e.remote == nil {
		return nil
	}
	e.subMu.Lock()
	if e.subCancel != nil {
		e.subMu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.subCancel = cancel
	e.subMu.Unlock()

	if _, err := e.Bootstrap(ctx); err != nil {
		e.log.Error().Err(err).Msg("bootstrap failed, continuing with local ledger")
	}

	ready := make(chan struct{}, len(remote.Tables))
	for _, table := range remote.Tables {
		table := table
		e.subWG.Add(1)
		go func() {
			defer e.subWG.Done()
			e.follow(subCtx, table, ready)
		}()
	}
	for range remote.Tables {
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the changefeeds and waits for their goroutines. Queued
// changes are still applied by Run.
func (e *Engine) Close() error {
	e.subMu.Lock()
	cancel := e.subCancel
	e.subCancel = nil
	e.subMu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.subWG.Wait()
	return nil
}

// follow keeps one table's changefeed open, forwarding every change into
// the queue. A feed that fails to open or ends is reopened after the
// resubscribe delay until ctx is done.
func (e *Engine) follow(ctx context.Context, table remote.Table, ready chan<- struct{}) {
	log := e.log.With().Str("table", string(table)).Logger()
	signalled := false
	signal := func() {
		if !signalled {
			signalled = true
			ready <- struct{}{}
		}
	}
	defer signal()

	for {
		sub, err := e.remote.Subscribe(ctx, table)
		signal()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("subscribe failed")
		} else {
			log.Debug().Msg("changefeed open")
			if !e.forward(ctx, sub) {
				return
			}
			log.Warn().Msg("changefeed ended, resubscribing")
		}

		timer := time.NewTimer(e.resubscribeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// forward relays one subscription. Returns false when following should
// stop for good.
func (e *Engine) forward(ctx context.Context, sub remote.Subscription) bool {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return false
		case c, ok := <-sub.Changes():
			if !ok {
				return ctx.Err() == nil
			}
			if !e.HandleChange(c) {
				return false
			}
		}
	}
}
