package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvoice_FixesTotal(t *testing.T) {
	inv := NewInvoice("s1", SaleInput{
		CustomerID:  "c1",
		ProductName: "  maize ",
		WeightKg:    dec("12.5"),
		PricePerKg:  dec("0.4"),
		Date:        "2026-03-01",
	})
	assert.Equal(t, "MAIZE", inv.ProductName)
	assert.True(t, inv.Total.Equal(dec("5")))
	assert.False(t, inv.IsPaid)
	assert.NotNil(t, inv.Payments)
}

func TestNewPurchase(t *testing.T) {
	p := NewPurchase("b1", PurchaseInput{ProductName: "rice", WeightKg: dec("3"), PricePerKg: dec("1.1"), Date: "2026-03-01", Supplier: "Coop"})
	assert.Equal(t, "RICE", p.ProductName)
	assert.True(t, p.Total.Equal(dec("3.3")))
}

func TestStockItem_Record(t *testing.T) {
	item := StockItem{ProductName: "MAIZE", AvailableKg: dec("5")}
	item.Record(Movement{Date: "2026-03-02", Delta: dec("-7"), Type: MovementAdjustment})

	assert.True(t, item.AvailableKg.Equal(dec("-2")))
	assert.Equal(t, "2026-03-02", item.LastUpdated)
	require.Len(t, item.Movements, 1)
}

func TestInvoice_AddPayment(t *testing.T) {
	inv := newInvoice("s1", "2026-01-01", "10")

	assert.True(t, inv.AddPayment(PaymentRecord{ID: "p1", InvoiceID: "s1", Date: "2026-01-02", Amount: dec("4")}))
	assert.False(t, inv.AddPayment(PaymentRecord{ID: "p1", InvoiceID: "s1", Date: "2026-01-02", Amount: dec("4")}), "duplicate id")
	assert.True(t, inv.PaidAmount.Equal(dec("4")))
	assert.False(t, inv.IsPaid)

	assert.True(t, inv.AddPayment(PaymentRecord{ID: "p2", InvoiceID: "s1", Date: "2026-01-05", Amount: dec("5.995")}))
	assert.True(t, inv.IsPaid, "within a cent of the total")
	assert.Equal(t, "2026-01-05", inv.PaidAt)
}

func TestInvoice_RemovePaymentKeepsPaidAmount(t *testing.T) {
	inv := newInvoice("s1", "2026-01-01", "10")
	inv.AddPayment(PaymentRecord{ID: "p1", Date: "2026-01-02", Amount: dec("10")})

	assert.True(t, inv.RemovePayment("p1"))
	assert.False(t, inv.RemovePayment("p1"))
	assert.Empty(t, inv.Payments)
	assert.True(t, inv.PaidAmount.Equal(dec("10")))
	assert.True(t, inv.IsPaid)
}

func TestInvoice_AddPaymentAfterRemoveIsAdditive(t *testing.T) {
	inv := newInvoice("s1", "2026-01-01", "10")
	require.True(t, inv.AddPayment(PaymentRecord{ID: "p1", Date: "2026-01-02", Amount: dec("4")}))
	require.True(t, inv.RemovePayment("p1"))

	assert.True(t, inv.AddPayment(PaymentRecord{ID: "p3", Date: "2026-01-03", Amount: dec("3")}))
	assert.True(t, inv.PaidAmount.Equal(dec("7")))
	assert.False(t, inv.IsPaid)
}

func TestInvoice_MergePayments(t *testing.T) {
	t.Run("paid amount never decreases", func(t *testing.T) {
		inv := newInvoice("s1", "2026-01-01", "10")
		inv.AddPayment(PaymentRecord{ID: "p1", Date: "2026-01-02", Amount: dec("6")})

		stale := newInvoice("s1", "2026-01-01", "10")
		stale.PaidAmount = dec("2")
		inv.MergePayments(stale, false)

		assert.True(t, inv.PaidAmount.Equal(dec("6")))
		assert.Len(t, inv.Payments, 1, "history kept when the row has none")
	})

	t.Run("history replaced and paid raised", func(t *testing.T) {
		inv := newInvoice("s1", "2026-01-01", "10")
		remote := newInvoice("s1", "2026-01-01", "10")
		remote.Payments = []PaymentRecord{
			{ID: "p1", Date: "2026-01-03", Amount: dec("4")},
			{ID: "p2", Date: "2026-01-04", Amount: dec("6")},
		}
		inv.MergePayments(remote, true)

		assert.Len(t, inv.Payments, 2)
		assert.True(t, inv.PaidAmount.Equal(dec("10")))
		assert.True(t, inv.IsPaid)
		assert.Equal(t, "2026-01-04", inv.PaidAt)
	})

	t.Run("earliest paid date wins", func(t *testing.T) {
		inv := newInvoice("s1", "2026-01-01", "10")
		inv.AddPayment(PaymentRecord{ID: "p1", Date: "2026-01-09", Amount: dec("10")})

		remote := inv
		remote.PaidAt = "2026-01-07"
		inv.MergePayments(remote, false)
		assert.Equal(t, "2026-01-07", inv.PaidAt)
	})
}

func TestReconciled(t *testing.T) {
	inv := newInvoice("s1", "2026-01-01", "10")
	inv.ProductName = "maize"
	inv.Payments = []PaymentRecord{{ID: "p1", Date: "2026-01-02", Amount: dec("10")}}

	out := Reconciled(inv)
	assert.Equal(t, "MAIZE", out.ProductName)
	assert.True(t, out.PaidAmount.Equal(dec("10")))
	assert.True(t, out.IsPaid)
	assert.Equal(t, "2026-01-02", out.PaidAt)
	assert.True(t, inv.PaidAmount.IsZero(), "input untouched")
}
