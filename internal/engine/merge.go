package engine

import (
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/pending"
	"github.com/roach88/ledgersync/internal/remote"
)

// HandleChange queues a changefeed event for the loop. Returns false once
// the engine has stopped.
func (e *Engine) HandleChange(c remote.Change) bool {
	return e.queue.Enqueue(Event{Type: EventTypeChange, Change: &c})
}

// applyChange decodes a changefeed event and merges it into the ledger,
// unless it is the echo of one of this session's own writes.
func (e *Engine) applyChange(c remote.Change) {
	rec, err := remote.Decode(c.Table, c.Row())
	if err != nil {
		e.decodeFailures.Add(1)
		e.log.Warn().Err(newDecodeError(c, err)).Msg("changefeed event dropped")
		return
	}
	key := rec.Key()
	log := e.log.With().Str("table", string(c.Table)).Str("record_id", key).Str("type", string(c.Type)).Logger()

	if e.tracker.Consume(pending.Key(string(c.Table), key)) {
		e.echoes.Add(1)
		log.Debug().Msg("own write echoed")
		e.notify(Applied{Origin: OriginRemote, Op: string(c.Type), Table: c.Table, Key: key, Echo: true})
		return
	}

	touched := e.merge(c.Type, rec)
	if len(touched) == 0 {
		log.Debug().Msg("remote change ignored")
		e.notify(Applied{Origin: OriginRemote, Op: string(c.Type), Table: c.Table, Key: key})
		return
	}
	rev := e.clock.Next()
	e.merged.Add(1)
	e.persist(touched...)
	log.Debug().Int64("seq", rev).Msg("remote change merged")
	e.notify(Applied{Revision: rev, Origin: OriginRemote, Op: string(c.Type), Table: c.Table, Key: key})
}

// merge applies a decoded record and returns the collections it changed.
// Conflicts resolve by overwrite; the only exceptions are that paid amounts
// never decrease and payment records are deduplicated by id.
func (e *Engine) merge(t remote.ChangeType, rec remote.Record) []string {
	switch r := rec.(type) {
	case remote.CustomerRecord:
		return e.mergeCustomer(t, r)
	case remote.SaleRecord:
		return e.mergeSale(t, r)
	case remote.StockRecord:
		return e.mergeStock(t, r)
	case remote.PurchaseRecord:
		return e.mergePurchase(t, r)
	case remote.PaymentRecordRow:
		return e.mergePayment(t, r)
	}
	return nil
}

func (e *Engine) mergeCustomer(t remote.ChangeType, r remote.CustomerRecord) []string {
	if t == remote.ChangeDelete {
		if _, ok := e.state.RemoveCustomer(r.ID); !ok {
			return nil
		}
		return touchCustomers
	}
	e.state.UpsertCustomer(r.Customer)
	return touchCustomers
}

func (e *Engine) mergeSale(t remote.ChangeType, r remote.SaleRecord) []string {
	switch t {
	case remote.ChangeDelete:
		if _, ok := e.state.RemoveInvoice(r.ID); !ok {
			return nil
		}
		return touchCustomers

	case remote.ChangeUpdate:
		if _, inv, ok := e.state.FindInvoice(r.ID); ok {
			inv.MergePayments(r.Invoice, r.HasHistory)
			return touchCustomers
		}
		// An update for an invoice never seen is taken as its insert.
		fallthrough

	default:
		inserted, err := e.state.InsertInvoice(ledger.Reconciled(r.Invoice))
		if err != nil {
			e.log.Warn().Err(err).Str("record_id", r.ID).Msg("sale for unknown customer dropped")
			return nil
		}
		if !inserted {
			return nil
		}
		return touchCustomers
	}
}

func (e *Engine) mergeStock(t remote.ChangeType, r remote.StockRecord) []string {
	if t == remote.ChangeDelete {
		if !e.state.RemoveStock(r.ProductName) {
			return nil
		}
		return touchStock
	}
	item := r.StockItem
	if !r.HasHistory {
		if cur, ok := e.state.StockItem(item.ProductName); ok {
			item.Movements = append([]ledger.Movement{}, cur.Movements...)
		}
	}
	e.state.UpsertStock(item)
	return touchStock
}

func (e *Engine) mergePurchase(t remote.ChangeType, r remote.PurchaseRecord) []string {
	if t == remote.ChangeDelete {
		if !e.state.RemovePurchase(r.ID) {
			return nil
		}
		return touchPurchases
	}
	e.state.UpsertPurchase(r.PurchaseEntry)
	return touchPurchases
}

func (e *Engine) mergePayment(t remote.ChangeType, r remote.PaymentRecordRow) []string {
	_, inv, ok := e.state.FindInvoice(r.InvoiceID)
	if t == remote.ChangeDelete {
		// Delete events may carry only the primary key.
		if !ok {
			inv, ok = e.state.FindPayment(r.ID)
		}
		if !ok || !inv.RemovePayment(r.ID) {
			return nil
		}
		return touchCustomers
	}
	if !ok || !inv.AddPayment(r.PaymentRecord) {
		return nil
	}
	return touchCustomers
}
