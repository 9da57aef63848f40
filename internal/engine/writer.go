package engine

import (
	"context"

	"github.com/roach88/ledgersync/internal/pending"
	"github.com/roach88/ledgersync/internal/remote"
)

// writeOp is one remote upsert or delete.
type writeOp struct {
	table  remote.Table
	delete bool
	rows   []remote.Row
	filter remote.Filter
	// keys lists the records a delete is expected to echo.
	keys []string
}

type writeBatch []writeOp

func upsertOp(table remote.Table, rows ...remote.Row) writeOp {
	return writeOp{table: table, rows: rows}
}

func deleteOp(table remote.Table, filter remote.Filter, keys ...string) writeOp {
	return writeOp{table: table, delete: true, filter: filter, keys: keys}
}

func (op writeOp) pendingKeys() []string {
	if op.delete {
		return op.keys
	}
	keys := make([]string, 0, len(op.rows))
	for _, r := range op.rows {
		if k := r.Key(op.table); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// markPending records every key the batch will echo back through the
// changefeed. It runs on the loop before the write is sent, so the echo
// can never arrive first.
func (e *Engine) markPending(batch writeBatch) {
	if e.remote == nil {
		return
	}
	for _, op := range batch {
		for _, k := range op.pendingKeys() {
			e.tracker.Add(pending.Key(string(op.table), k))
		}
	}
}

// dispatch sends the batch on its own goroutine, in order. A failed write
// is logged and the rest of the batch still runs; nothing is rolled back.
func (e *Engine) dispatch(op string, batch writeBatch) {
	if e.remote == nil || len(batch) == 0 {
		return
	}
	e.writes.Add(1)
	go func() {
		defer e.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
		defer cancel()

		for _, w := range batch {
			if err := e.execute(ctx, w); err != nil {
				e.writeFailures.Add(1)
				e.log.Error().Err(err).Str("op", op).Str("table", string(w.table)).Msg("remote write failed")
			}
		}
	}()
}

func (e *Engine) execute(ctx context.Context, w writeOp) error {
	if w.delete {
		if err := e.remote.Delete(ctx, w.table, w.filter); err != nil {
			return newWriteError("delete", w.table, err)
		}
		return nil
	}

	err := e.remote.Upsert(ctx, w.table, w.rows)
	if mc, ok := remote.AsMissingColumn(err); ok && remote.IsOptionalColumn(w.table, mc.Column) {
		e.log.Warn().Str("table", string(w.table)).Str("column", mc.Column).Msg("remote store lacks optional column, retrying without it")
		err = e.remote.Upsert(ctx, w.table, remote.WithoutColumn(w.rows, mc.Column))
	}
	if err != nil {
		return newWriteError("upsert", w.table, err)
	}
	return nil
}

// Flush waits for every dispatched remote write to finish. Call it at
// session teardown, after the last operation has returned.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
