package ledger

import "github.com/shopspring/decimal"

// NewCustomer builds a customer with an empty wallet and no invoices.
func NewCustomer(id string, in CustomerInput) Customer {
	return Customer{
		ID:            id,
		Name:          in.Name,
		TaxID:         in.TaxID,
		Address:       in.Address,
		Phone:         in.Phone,
		WalletBalance: decimal.Zero,
		CreditLimit:   in.CreditLimit,
		Invoices:      []Invoice{},
	}
}

// NewInvoice builds an unpaid invoice. Total is fixed here and never
// recomputed.
func NewInvoice(id string, in SaleInput) Invoice {
	return Invoice{
		ID:          id,
		CustomerID:  in.CustomerID,
		ProductName: NormalizeProductName(in.ProductName),
		WeightKg:    in.WeightKg,
		PricePerKg:  in.PricePerKg,
		Total:       in.WeightKg.Mul(in.PricePerKg),
		Date:        in.Date,
		PaidAmount:  decimal.Zero,
		Payments:    []PaymentRecord{},
	}
}

// NewPurchase builds a purchase entry.
func NewPurchase(id string, in PurchaseInput) PurchaseEntry {
	return PurchaseEntry{
		ID:          id,
		ProductName: NormalizeProductName(in.ProductName),
		WeightKg:    in.WeightKg,
		PricePerKg:  in.PricePerKg,
		Total:       in.WeightKg.Mul(in.PricePerKg),
		Date:        in.Date,
		Supplier:    in.Supplier,
	}
}

// Record appends a movement and moves the available weight by its delta.
func (item *StockItem) Record(m Movement) {
	item.AvailableKg = item.AvailableKg.Add(m.Delta)
	item.Movements = append(item.Movements, m)
	item.LastUpdated = m.Date
}

// SyncPaid raises PaidAmount to cover the payment history and recomputes
// IsPaid. date stamps PaidAt if this is the first transition to paid.
func (inv *Invoice) SyncPaid(date string) {
	if sum := inv.PaymentsTotal(); sum.GreaterThan(inv.PaidAmount) {
		inv.PaidAmount = sum
	}
	inv.refreshPaid(date)
}

// AddPayment appends a payment and adds its amount to PaidAmount unless one
// with the same id is recorded. Returns false for a duplicate.
func (inv *Invoice) AddPayment(p PaymentRecord) bool {
	if inv.HasPayment(p.ID) {
		return false
	}
	inv.Payments = append(inv.Payments, p)
	inv.PaidAmount = inv.PaidAmount.Add(p.Amount)
	inv.refreshPaid(p.Date)
	return true
}

// RemovePayment drops a payment from the history. PaidAmount is left as is.
func (inv *Invoice) RemovePayment(id string) bool {
	for i, p := range inv.Payments {
		if p.ID == id {
			inv.Payments = append(inv.Payments[:i], inv.Payments[i+1:]...)
			return true
		}
	}
	return false
}

// MergePayments folds a remote copy of the invoice into this one. Only
// payment fields change: PaidAmount never decreases, the history is replaced
// only when the remote copy carries one, and PaidAt keeps the earliest date.
func (inv *Invoice) MergePayments(remote Invoice, hasHistory bool) {
	if hasHistory {
		inv.Payments = append([]PaymentRecord{}, remote.Payments...)
	}
	if remote.PaidAmount.GreaterThan(inv.PaidAmount) {
		inv.PaidAmount = remote.PaidAmount
	}
	if remote.PaidAt != "" && (inv.PaidAt == "" || remote.PaidAt < inv.PaidAt) {
		inv.PaidAt = remote.PaidAt
	}
	fallback := inv.PaidAt
	if fallback == "" {
		fallback = inv.Date
	}
	inv.SyncPaid(lastPaymentDate(inv, fallback))
}

// Reconciled returns a copy of an invoice received from another replica
// with its paid state made consistent with its own history.
func Reconciled(inv Invoice) Invoice {
	out := cloneInvoice(inv)
	out.ProductName = NormalizeProductName(out.ProductName)
	if out.PaidAmount.IsNegative() {
		out.PaidAmount = decimal.Zero
	}
	out.SyncPaid(lastPaymentDate(&out, out.Date))
	return out
}

func lastPaymentDate(inv *Invoice, fallback string) string {
	if n := len(inv.Payments); n > 0 && inv.Payments[n-1].Date != "" {
		return inv.Payments[n-1].Date
	}
	return fallback
}

// Clone returns a deep copy of the customer.
func (c Customer) Clone() Customer { return cloneCustomer(c) }

// Clone returns a deep copy of the invoice.
func (inv Invoice) Clone() Invoice { return cloneInvoice(inv) }

// Clone returns a deep copy of the stock item.
func (item StockItem) Clone() StockItem {
	item.Movements = append([]Movement{}, item.Movements...)
	return item
}
