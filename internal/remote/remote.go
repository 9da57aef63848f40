// Package remote defines the contract between the sync engine and the shared
// remote store, plus the row codec that turns store rows into typed ledger
// records.
//
// Rows are snake_case column maps. Adapters (memstore, redisstore, pgstore,
// httpstore) move rows and change events; only this package knows how a row
// maps onto a ledger type.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Table names a remote table.
type Table string

const (
	TableCustomers      Table = "customers"
	TableSales          Table = "sales"
	TablePurchases      Table = "purchases"
	TableStock          Table = "stock"
	TablePaymentRecords Table = "payment_records"
)

// Tables lists every table in subscription order.
var Tables = []Table{TableCustomers, TableSales, TableStock, TablePurchases, TablePaymentRecords}

// ErrUnknownTable is returned for a table name outside Tables.
var ErrUnknownTable = errors.New("unknown table")

// ParseTable validates a table name.
func ParseTable(name string) (Table, error) {
	for _, t := range Tables {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
}

// PrimaryKey returns the primary key column: product_name for stock, id
// everywhere else.
func (t Table) PrimaryKey() string {
	if t == TableStock {
		return "product_name"
	}
	return "id"
}

// Row is one record as the store sees it.
type Row map[string]any

// Key returns the row's primary key value as a string ("" if absent).
func (r Row) Key(t Table) string {
	v, ok := r[t.PrimaryKey()]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter selects rows whose Column value is one of Values.
type Filter struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// ByKey filters on the table's primary key.
func ByKey(t Table, keys ...string) Filter {
	return Filter{Column: t.PrimaryKey(), Values: keys}
}

// Matches reports whether the row passes the filter. Values are compared in
// their string form.
func (f Filter) Matches(r Row) bool {
	v, ok := r[f.Column]
	if !ok || v == nil {
		return false
	}
	s := fmt.Sprint(v)
	for _, want := range f.Values {
		if s == want {
			return true
		}
	}
	return false
}

// ChangeType is the kind of a changefeed event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one changefeed event. New is set for INSERT and UPDATE, Old for
// DELETE (and for UPDATE when the store knows it).
type Change struct {
	Table Table      `json:"table"`
	Type  ChangeType `json:"type"`
	New   Row        `json:"new,omitempty"`
	Old   Row        `json:"old,omitempty"`
}

// Row returns the row that identifies the changed record.
func (c Change) Row() Row {
	if c.Type == ChangeDelete || c.New == nil {
		return c.Old
	}
	return c.New
}

// Key returns the primary key of the changed record.
func (c Change) Key() string {
	r := c.Row()
	if r == nil {
		return ""
	}
	return r.Key(c.Table)
}

// Subscription is one table's changefeed. Changes is closed once the
// subscription ends, either through Close or because the store went away.
type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// Store is the shared remote store.
//
// Delivery is at-least-once and unordered across tables. Writes from every
// client, this one included, show up on every subscription to the table.
type Store interface {
	// Upsert inserts or replaces rows by primary key.
	Upsert(ctx context.Context, table Table, rows []Row) error
	// Delete removes every row matching the filter.
	Delete(ctx context.Context, table Table, filter Filter) error
	// Select returns rows matching the filter, or all rows when filter is nil.
	Select(ctx context.Context, table Table, filter *Filter) ([]Row, error)
	// Subscribe opens a changefeed for one table.
	Subscribe(ctx context.Context, table Table) (Subscription, error)
}

// OptionalColumns lists columns a store may not have yet. A write rejected
// for one of these is retried once without it.
var OptionalColumns = map[Table][]string{
	TableSales: {"payment_history"},
}

// IsOptionalColumn reports whether column may be dropped from writes to table.
func IsOptionalColumn(table Table, column string) bool {
	for _, c := range OptionalColumns[table] {
		if c == column {
			return true
		}
	}
	return false
}

// MissingColumnError reports a write naming a column the store's schema
// lacks.
type MissingColumnError struct {
	Table  Table
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %s has no column %q", e.Table, e.Column)
}

// AsMissingColumn extracts a *MissingColumnError from err.
func AsMissingColumn(err error) (*MissingColumnError, bool) {
	var mc *MissingColumnError
	if errors.As(err, &mc) {
		return mc, true
	}
	return nil, false
}

// WithoutColumn returns copies of rows with column removed.
func WithoutColumn(rows []Row, column string) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		c := r.Clone()
		delete(c, column)
		out[i] = c
	}
	return out
}
