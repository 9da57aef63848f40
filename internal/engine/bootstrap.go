package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/localstore"
	"github.com/roach88/ledgersync/internal/remote"
)

// BootstrapResult says what the startup reconciliation did.
type BootstrapResult struct {
	// Reset is set when the remote store was empty and the local ledger
	// was cleared back to the catalog.
	Reset bool
	// Purchases is the number of purchases taken from the remote snapshot.
	Purchases int
}

// Bootstrap reconciles the local ledger with the remote store once, before
// the changefeeds open:
//   - remote purchases, customers and sales all empty: the local ledger is
//     reset (no customers, no purchases, catalog stock at zero)
//   - remote purchases present: local purchases are replaced by them
//
// Customers and stock are otherwise left for the changefeeds to converge.
// Offline engines do nothing.
func (e *Engine) Bootstrap(ctx context.Context) (BootstrapResult, error) {
	if e.remote == nil {
		return BootstrapResult{}, nil
	}

	snapshot := make(map[remote.Table][]remote.Row, 3)
	for _, table := range []remote.Table{remote.TablePurchases, remote.TableCustomers, remote.TableSales} {
		rows, err := e.remote.Select(ctx, table, nil)
		if err != nil {
			return BootstrapResult{}, newBootstrapError(table, err)
		}
		snapshot[table] = rows
	}

	purchases := make([]ledger.PurchaseEntry, 0, len(snapshot[remote.TablePurchases]))
	for _, row := range snapshot[remote.TablePurchases] {
		rec, err := remote.Decode(remote.TablePurchases, row)
		if err != nil {
			e.decodeFailures.Add(1)
			e.log.Warn().Err(err).Msg("bootstrap: purchase row dropped")
			continue
		}
		purchases = append(purchases, rec.(remote.PurchaseRecord).PurchaseEntry)
	}
	empty := len(snapshot[remote.TablePurchases]) == 0 &&
		len(snapshot[remote.TableCustomers]) == 0 &&
		len(snapshot[remote.TableSales]) == 0

	var res BootstrapResult
	err := e.submit(ctx, "bootstrap", func() error {
		switch {
		case empty:
			e.state.Customers = []ledger.Customer{}
			e.state.Purchases = []ledger.PurchaseEntry{}
			e.state.Stock = make([]ledger.StockItem, 0, len(e.catalog))
			for _, item := range e.catalog {
				item = item.Clone()
				item.AvailableKg = decimal.Zero
				item.Movements = []ledger.Movement{}
				e.state.UpsertStock(item)
			}
			res.Reset = true
			e.clock.Next()
			e.persist(localstore.Keys...)
		case len(purchases) > 0:
			e.state.Purchases = purchases
			res.Purchases = len(purchases)
			e.clock.Next()
			e.persist(localstore.KeyPurchases)
		}
		return nil
	})
	if err != nil {
		return BootstrapResult{}, err
	}
	e.log.Info().Bool("reset", res.Reset).Int("purchases", res.Purchases).Msg("bootstrap complete")
	return res, nil
}
