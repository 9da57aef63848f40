package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MethodWallet tags payments funded from a customer's wallet credit.
const MethodWallet = "wallet"

// PaymentRequest describes one payment to spread over a customer's invoices.
type PaymentRequest struct {
	Amount          decimal.Decimal
	Date            string
	Method          string
	TargetInvoiceID string
}

// Allocation is the outcome of allocating a payment. It is computed against
// a customer without modifying it; Apply writes it back.
//
// Invoices holds updated copies of every touched invoice in allocation
// order, and Payments the record appended to each (same order).
type Allocation struct {
	CustomerID  string
	Invoices    []Invoice
	Payments    []PaymentRecord
	WalletDelta decimal.Decimal
}

// Applied returns the sum of the amounts paid into invoices.
func (a Allocation) Applied() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Empty reports whether the allocation changes nothing.
func (a Allocation) Empty() bool {
	return len(a.Invoices) == 0 && a.WalletDelta.IsZero()
}

// Apply writes the allocation into the customer it was computed for. The
// customer receives copies, so the allocation stays valid after later
// changes to the customer.
func (a Allocation) Apply(c *Customer) {
	for _, upd := range a.Invoices {
		for i := range c.Invoices {
			if c.Invoices[i].ID == upd.ID {
				c.Invoices[i] = cloneInvoice(upd)
				break
			}
		}
	}
	c.WalletBalance = c.WalletBalance.Add(a.WalletDelta)
	if c.WalletBalance.IsNegative() {
		c.WalletBalance = decimal.Zero
	}
}

// Allocate spreads a payment over the customer's outstanding invoices,
// oldest first (FIFO debt aging). A target invoice, when given, is paid
// first regardless of its date. Whatever is left once every invoice is
// settled is credited to the wallet.
//
// The amount must be positive. The sum of the new payment records plus the
// wallet delta always equals the amount exactly.
func Allocate(c *Customer, req PaymentRequest, ids IDGenerator) (Allocation, error) {
	if !req.Amount.IsPositive() {
		return Allocation{}, Invalid("amount", "must be greater than 0")
	}
	if req.TargetInvoiceID != "" && !ownsInvoice(c, req.TargetInvoiceID) {
		return Allocation{}, Invalid("targetInvoiceId", "invoice %s does not belong to customer %s", req.TargetInvoiceID, c.ID)
	}
	return allocate(c, req, ids, false), nil
}

// SettleAll pays every outstanding invoice its exact pending balance. A
// customer with nothing outstanding yields an empty allocation.
func SettleAll(c *Customer, date, method string, ids IDGenerator) Allocation {
	return allocate(c, PaymentRequest{Date: date, Method: method}, ids, true)
}

// SpendWallet pays outstanding invoices out of the customer's wallet credit.
// Credit that cannot be used stays in the wallet, so WalletDelta is the
// negated applied amount.
func SpendWallet(c *Customer, date string, ids IDGenerator) (Allocation, error) {
	if !c.WalletBalance.IsPositive() {
		return Allocation{}, Invalid("walletBalance", "customer %s has no wallet credit", c.ID)
	}
	a := allocate(c, PaymentRequest{Amount: c.WalletBalance, Date: date, Method: MethodWallet}, ids, false)
	a.WalletDelta = a.WalletDelta.Sub(c.WalletBalance)
	return a, nil
}

func allocate(c *Customer, req PaymentRequest, ids IDGenerator, settle bool) Allocation {
	out := Allocation{CustomerID: c.ID, WalletDelta: decimal.Zero}

	order := allocationOrder(c.Invoices, req.TargetInvoiceID)
	remaining := req.Amount
	for _, idx := range order {
		if !settle && !remaining.IsPositive() {
			break
		}
		inv := cloneInvoice(c.Invoices[idx])
		payNow := inv.Pending()
		if !settle {
			payNow = decimal.Min(remaining, payNow)
			remaining = remaining.Sub(payNow)
		}

		inv.PaidAmount = inv.PaidAmount.Add(payNow)
		inv.refreshPaid(req.Date)
		rec := PaymentRecord{
			ID:        ids.NewID(),
			InvoiceID: inv.ID,
			Date:      req.Date,
			Amount:    payNow,
			Method:    req.Method,
		}
		inv.Payments = append(inv.Payments, rec)

		out.Invoices = append(out.Invoices, inv)
		out.Payments = append(out.Payments, rec)
	}

	if !settle && remaining.IsPositive() {
		out.WalletDelta = remaining
	}
	return out
}

// allocationOrder returns indexes of outstanding invoices sorted by date
// ascending, with the target (if outstanding) moved to the front.
func allocationOrder(invoices []Invoice, target string) []int {
	order := make([]int, 0, len(invoices))
	for i := range invoices {
		if invoices[i].Outstanding() {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return invoices[order[a]].Date < invoices[order[b]].Date
	})
	if target == "" {
		return order
	}
	for pos, idx := range order {
		if invoices[idx].ID == target {
			copy(order[1:pos+1], order[:pos])
			order[0] = idx
			break
		}
	}
	return order
}

func ownsInvoice(c *Customer, id string) bool {
	for i := range c.Invoices {
		if c.Invoices[i].ID == id {
			return true
		}
	}
	return false
}
