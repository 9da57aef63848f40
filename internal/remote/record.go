package remote

import (
	"fmt"

	"github.com/roach88/ledgersync/internal/ledger"
)

// Record is a decoded row. The concrete type depends on the table:
//
//	customers        CustomerRecord
//	sales            SaleRecord
//	stock            StockRecord
//	purchases        PurchaseRecord
//	payment_records  PaymentRecordRow
type Record interface {
	Table() Table
	Key() string
}

// CustomerRecord carries a customer's scalar fields; Invoices is always empty.
type CustomerRecord struct {
	ledger.Customer
}

func (CustomerRecord) Table() Table  { return TableCustomers }
func (r CustomerRecord) Key() string { return r.ID }

// SaleRecord is an invoice row. HasHistory is false when the row had no
// payment_history column, so the caller can keep the history it already has.
type SaleRecord struct {
	ledger.Invoice
	HasHistory bool
}

func (SaleRecord) Table() Table  { return TableSales }
func (r SaleRecord) Key() string { return r.ID }

// StockRecord is a stock row. HasHistory mirrors SaleRecord.HasHistory for
// the movement log.
type StockRecord struct {
	ledger.StockItem
	HasHistory bool
}

func (StockRecord) Table() Table  { return TableStock }
func (r StockRecord) Key() string { return r.ProductName }

// PurchaseRecord is a purchase row.
type PurchaseRecord struct {
	ledger.PurchaseEntry
}

func (PurchaseRecord) Table() Table  { return TablePurchases }
func (r PurchaseRecord) Key() string { return r.ID }

// PaymentRecordRow is a standalone payment record row.
type PaymentRecordRow struct {
	ledger.PaymentRecord
}

func (PaymentRecordRow) Table() Table  { return TablePaymentRecords }
func (r PaymentRecordRow) Key() string { return r.ID }

// DecodeError describes a row that could not be decoded.
type DecodeError struct {
	Table  Table
	Column string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("decode %s row: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("decode %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode converts a row into the typed record for its table.
func Decode(table Table, row Row) (Record, error) {
	if row == nil {
		return nil, &DecodeError{Table: table, Err: fmt.Errorf("empty row")}
	}
	d := rowDecoder{table: table, row: row}
	var rec Record
	switch table {
	case TableCustomers:
		rec = d.customer()
	case TableSales:
		rec = d.sale()
	case TableStock:
		rec = d.stock()
	case TablePurchases:
		rec = d.purchase()
	case TablePaymentRecords:
		rec = d.payment()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if d.err != nil {
		return nil, d.err
	}
	if rec.Key() == "" {
		return nil, &DecodeError{Table: table, Column: table.PrimaryKey(), Err: fmt.Errorf("missing primary key")}
	}
	return rec, nil
}

func (d *rowDecoder) customer() CustomerRecord {
	return CustomerRecord{Customer: ledger.Customer{
		ID:            d.str("id"),
		Name:          d.str("name"),
		TaxID:         d.str("tax_id"),
		Address:       d.str("address"),
		Phone:         d.str("phone"),
		WalletBalance: d.decimal("wallet_balance"),
		CreditLimit:   d.decimal("credit_limit"),
		Invoices:      []ledger.Invoice{},
	}}
}

func (d *rowDecoder) sale() SaleRecord {
	history, has := d.payments("payment_history")
	return SaleRecord{
		Invoice: ledger.Invoice{
			ID:          d.str("id"),
			CustomerID:  d.str("customer_id"),
			ProductName: ledger.NormalizeProductName(d.str("product_name")),
			WeightKg:    d.decimal("weight_kg"),
			PricePerKg:  d.decimal("price_per_kg"),
			Total:       d.decimal("total"),
			Date:        d.date("date"),
			IsPaid:      d.boolean("is_paid"),
			PaidAmount:  d.decimal("paid_amount"),
			PaidAt:      d.date("paid_at"),
			Payments:    history,
		},
		HasHistory: has,
	}
}

func (d *rowDecoder) stock() StockRecord {
	history, has := d.movements("history")
	return StockRecord{
		StockItem: ledger.StockItem{
			ProductName: ledger.NormalizeProductName(d.str("product_name")),
			AvailableKg: d.decimal("available_kg"),
			BasePrice:   d.decimal("base_price"),
			LastUpdated: d.date("last_updated"),
			Movements:   history,
		},
		HasHistory: has,
	}
}

func (d *rowDecoder) purchase() PurchaseRecord {
	return PurchaseRecord{PurchaseEntry: ledger.PurchaseEntry{
		ID:          d.str("id"),
		ProductName: ledger.NormalizeProductName(d.str("product_name")),
		WeightKg:    d.decimal("weight_kg"),
		PricePerKg:  d.decimal("price_per_kg"),
		Total:       d.decimal("total"),
		Date:        d.date("date"),
		Supplier:    d.str("supplier"),
	}}
}

func (d *rowDecoder) payment() PaymentRecordRow {
	return PaymentRecordRow{PaymentRecord: ledger.PaymentRecord{
		ID:        d.str("id"),
		InvoiceID: d.str("sale_id"),
		Date:      d.date("date"),
		Amount:    d.decimal("amount"),
		Method:    d.str("method"),
	}}
}

// EncodeCustomer builds the customers row. Invoices travel as sales rows.
func EncodeCustomer(c ledger.Customer) Row {
	return Row{
		"id":             c.ID,
		"name":           c.Name,
		"tax_id":         c.TaxID,
		"address":        c.Address,
		"phone":          c.Phone,
		"wallet_balance": number(c.WalletBalance),
		"credit_limit":   number(c.CreditLimit),
	}
}

// EncodeSale builds the sales row, payment history included.
func EncodeSale(inv ledger.Invoice) Row {
	history := make([]any, len(inv.Payments))
	for i, p := range inv.Payments {
		history[i] = map[string]any(EncodePayment(p))
	}
	return Row{
		"id":              inv.ID,
		"customer_id":     inv.CustomerID,
		"product_name":    inv.ProductName,
		"weight_kg":       number(inv.WeightKg),
		"price_per_kg":    number(inv.PricePerKg),
		"total":           number(inv.Total),
		"date":            inv.Date,
		"is_paid":         inv.IsPaid,
		"paid_amount":     number(inv.PaidAmount),
		"paid_at":         nullable(inv.PaidAt),
		"payment_history": history,
	}
}

// EncodeStock builds the stock row, movement log included.
func EncodeStock(item ledger.StockItem) Row {
	history := make([]any, len(item.Movements))
	for i, m := range item.Movements {
		mv := map[string]any{
			"date":  m.Date,
			"delta": number(m.Delta),
			"type":  string(m.Type),
		}
		if m.Note != "" {
			mv["note"] = m.Note
		}
		history[i] = mv
	}
	return Row{
		"product_name": item.ProductName,
		"available_kg": number(item.AvailableKg),
		"base_price":   number(item.BasePrice),
		"last_updated": nullable(item.LastUpdated),
		"history":      history,
	}
}

// EncodePurchase builds the purchases row.
func EncodePurchase(p ledger.PurchaseEntry) Row {
	return Row{
		"id":           p.ID,
		"product_name": p.ProductName,
		"weight_kg":    number(p.WeightKg),
		"price_per_kg": number(p.PricePerKg),
		"total":        number(p.Total),
		"date":         p.Date,
		"supplier":     p.Supplier,
	}
}

// EncodePayment builds the payment_records row.
func EncodePayment(p ledger.PaymentRecord) Row {
	return Row{
		"id":      p.ID,
		"sale_id": p.InvoiceID,
		"date":    p.Date,
		"amount":  number(p.Amount),
		"method":  p.Method,
	}
}
