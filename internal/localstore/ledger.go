package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/ledgersync/internal/ledger"
)

// Blob keys of the persisted ledger collections.
const (
	KeyCustomers = "customers"
	KeyStock     = "stock"
	KeyPurchases = "purchases"
)

// Keys lists every persisted collection.
var Keys = []string{KeyCustomers, KeyStock, KeyPurchases}

// Ledger persists a ledger.State as one blob per collection.
type Ledger struct {
	store  Store
	schema *Schema
}

// NewLedger wraps store.
func NewLedger(store Store) (*Ledger, error) {
	schema, err := NewSchema()
	if err != nil {
		return nil, err
	}
	return &Ledger{store: store, schema: schema}, nil
}

// Load reads every collection. A collection whose blob is missing, corrupt
// or fails the schema falls back to its default: no customers, no
// purchases, and catalog as stock. Each fallback other than a missing blob
// is reported in problems; the returned state is always usable.
func (l *Ledger) Load(ctx context.Context, catalog []ledger.StockItem) (*ledger.State, []error) {
	state := ledger.NewState(catalog)
	var problems []error

	for _, key := range Keys {
		data, ok, err := l.store.Get(ctx, key)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if !ok {
			continue
		}
		if err := l.schema.Validate(key, data); err != nil {
			problems = append(problems, err)
			continue
		}
		if err := decodeInto(state, key, data); err != nil {
			problems = append(problems, fmt.Errorf("%s blob: %w", key, err))
		}
	}
	return state, problems
}

func decodeInto(state *ledger.State, key string, data []byte) error {
	switch key {
	case KeyCustomers:
		var customers []ledger.Customer
		if err := json.Unmarshal(data, &customers); err != nil {
			return err
		}
		for i := range customers {
			if customers[i].Invoices == nil {
				customers[i].Invoices = []ledger.Invoice{}
			}
			for j := range customers[i].Invoices {
				if customers[i].Invoices[j].Payments == nil {
					customers[i].Invoices[j].Payments = []ledger.PaymentRecord{}
				}
			}
		}
		state.Customers = customers
	case KeyStock:
		var stock []ledger.StockItem
		if err := json.Unmarshal(data, &stock); err != nil {
			return err
		}
		state.Stock = []ledger.StockItem{}
		for _, item := range stock {
			state.UpsertStock(item)
		}
	case KeyPurchases:
		var purchases []ledger.PurchaseEntry
		if err := json.Unmarshal(data, &purchases); err != nil {
			return err
		}
		state.Purchases = purchases
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// Save writes the given collections of state; with no keys it writes all
// of them. Every collection is attempted; failures are joined.
func (l *Ledger) Save(ctx context.Context, state *ledger.State, keys ...string) error {
	if len(keys) == 0 {
		keys = Keys
	}
	var errs []error
	for _, key := range keys {
		var v any
		switch key {
		case KeyCustomers:
			v = state.Customers
		case KeyStock:
			v = state.Stock
		case KeyPurchases:
			v = state.Purchases
		default:
			errs = append(errs, fmt.Errorf("save: unknown key %q", key))
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", key, err))
			continue
		}
		if err := l.store.Put(ctx, key, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
