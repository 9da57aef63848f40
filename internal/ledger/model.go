package ledger

import (
	"github.com/shopspring/decimal"
)

// Epsilon is the settlement tolerance (one cent). An invoice whose paid amount
// is within Epsilon of its total counts as paid.
var Epsilon = decimal.New(1, -2)

// MovementType tags a stock movement.
type MovementType string

const (
	// MovementExit is stock leaving through a sale.
	MovementExit MovementType = "exit"
	// MovementAdjustment is a manual correction (or a cancelled sale).
	MovementAdjustment MovementType = "adjustment"
)

// Customer is a buyer with an ordered list of invoices (newest first).
type Customer struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TaxID         string          `json:"taxId"`
	Address       string          `json:"address"`
	Phone         string          `json:"phone"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	CreditLimit   decimal.Decimal `json:"creditLimit"`
	Invoices      []Invoice       `json:"invoices"`
}

// Debt returns the sum of pending balances over all invoices.
func (c *Customer) Debt() decimal.Decimal {
	total := decimal.Zero
	for _, inv := range c.Invoices {
		if p := inv.Pending(); p.IsPositive() {
			total = total.Add(p)
		}
	}
	return total
}

// OverCreditLimit reports whether the customer's debt exceeds the advisory
// credit limit. A zero limit means no limit.
func (c *Customer) OverCreditLimit() bool {
	if !c.CreditLimit.IsPositive() {
		return false
	}
	return c.Debt().GreaterThan(c.CreditLimit)
}

// Invoice is a single sale owed by a customer (a "sale entry").
type Invoice struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customerId"`
	ProductName string          `json:"productName"`
	WeightKg    decimal.Decimal `json:"weightKg"`
	PricePerKg  decimal.Decimal `json:"pricePerKg"`
	Total       decimal.Decimal `json:"total"`
	Date        string          `json:"date"`
	IsPaid      bool            `json:"isPaid"`
	PaidAmount  decimal.Decimal `json:"paidAmount"`
	PaidAt      string          `json:"paidAt,omitempty"`
	Payments    []PaymentRecord `json:"paymentHistory"`
}

// Pending returns Total - PaidAmount. It is negative when the invoice was
// overpaid within the tolerance.
func (inv *Invoice) Pending() decimal.Decimal {
	return inv.Total.Sub(inv.PaidAmount)
}

// Outstanding reports whether the invoice still has a positive balance.
func (inv *Invoice) Outstanding() bool {
	return inv.Pending().IsPositive()
}

// HasPayment reports whether a payment with the given id is already recorded.
func (inv *Invoice) HasPayment(id string) bool {
	for _, p := range inv.Payments {
		if p.ID == id {
			return true
		}
	}
	return false
}

// PaymentsTotal sums the recorded payment history.
func (inv *Invoice) PaymentsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range inv.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// refreshPaid recomputes IsPaid from PaidAmount and stamps PaidAt the first
// time the invoice becomes paid.
func (inv *Invoice) refreshPaid(date string) {
	paid := inv.PaidAmount.GreaterThanOrEqual(inv.Total.Sub(Epsilon))
	if paid && inv.PaidAt == "" {
		inv.PaidAt = date
	}
	inv.IsPaid = paid
}

// PaymentRecord is one append-only entry in an invoice's payment history.
type PaymentRecord struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"saleId"`
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}

// Movement is a signed change to a stock item's available weight.
type Movement struct {
	Date  string          `json:"date"`
	Delta decimal.Decimal `json:"delta"`
	Type  MovementType    `json:"type"`
	Note  string          `json:"note,omitempty"`
}

// StockItem is keyed by its normalized product name.
type StockItem struct {
	ProductName string          `json:"productName"`
	AvailableKg decimal.Decimal `json:"availableKg"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	LastUpdated string          `json:"lastUpdated"`
	Movements   []Movement      `json:"history"`
}

// PurchaseEntry records goods bought from a supplier. It never mutates stock.
type PurchaseEntry struct {
	ID          string          `json:"id"`
	ProductName string          `json:"productName"`
	WeightKg    decimal.Decimal `json:"weightKg"`
	PricePerKg  decimal.Decimal `json:"pricePerKg"`
	Total       decimal.Decimal `json:"total"`
	Date        string          `json:"date"`
	Supplier    string          `json:"supplier"`
}
