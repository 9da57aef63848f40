package ledger

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newInvoice(id, date, total string) Invoice {
	return Invoice{
		ID:          id,
		CustomerID:  "cust-1",
		ProductName: "MAIZE",
		WeightKg:    dec(total),
		PricePerKg:  decimal.NewFromInt(1),
		Total:       dec(total),
		Date:        date,
		PaidAmount:  decimal.Zero,
		Payments:    []PaymentRecord{},
	}
}

// twoInvoiceCustomer owes 100 (older) and 50 (newer), newest first.
func twoInvoiceCustomer() *Customer {
	return &Customer{
		ID:            "cust-1",
		Name:          "Amina Traders",
		WalletBalance: decimal.Zero,
		Invoices: []Invoice{
			newInvoice("sale-new", "2026-02-10", "50"),
			newInvoice("sale-old", "2026-01-05", "100"),
		},
	}
}

func invoiceByID(t *testing.T, c *Customer, id string) Invoice {
	t.Helper()
	for _, inv := range c.Invoices {
		if inv.ID == id {
			return inv
		}
	}
	require.Failf(t, "invoice not found", "id=%s", id)
	return Invoice{}
}

func TestAllocate_FIFOOldestFirst(t *testing.T) {
	c := twoInvoiceCustomer()
	ids := NewSequenceGenerator("pay")

	a, err := Allocate(c, PaymentRequest{Amount: dec("120"), Date: "2026-03-01", Method: "cash"}, ids)
	require.NoError(t, err)
	a.Apply(c)

	older := invoiceByID(t, c, "sale-old")
	newer := invoiceByID(t, c, "sale-new")

	assert.True(t, older.IsPaid)
	assert.True(t, older.PaidAmount.Equal(dec("100")))
	assert.Equal(t, "2026-03-01", older.PaidAt)

	assert.False(t, newer.IsPaid)
	assert.True(t, newer.PaidAmount.Equal(dec("20")))
	assert.True(t, newer.Pending().Equal(dec("30")))
	assert.Empty(t, newer.PaidAt)

	assert.True(t, c.WalletBalance.IsZero())
	require.Len(t, a.Payments, 2)
	assert.Equal(t, "pay-1", a.Payments[0].ID)
	assert.Equal(t, "sale-old", a.Payments[0].InvoiceID)
	assert.Equal(t, "pay-2", a.Payments[1].ID)
	assert.Equal(t, "sale-new", a.Payments[1].InvoiceID)
	assert.Equal(t, "sale-new", c.Invoices[0].ID)
}

func TestAllocate_TargetInvoiceFirst(t *testing.T) {
	c := twoInvoiceCustomer()

	a, err := Allocate(c, PaymentRequest{
		Amount:          dec("30"),
		Date:            "2026-03-01",
		Method:          "transfer",
		TargetInvoiceID: "sale-new",
	}, NewSequenceGenerator("pay"))
	require.NoError(t, err)
	a.Apply(c)

	newer := invoiceByID(t, c, "sale-new")
	older := invoiceByID(t, c, "sale-old")
	assert.True(t, newer.Pending().Equal(dec("20")))
	assert.True(t, older.PaidAmount.IsZero())
	assert.Empty(t, older.Payments)
	require.Len(t, newer.Payments, 1)
	assert.Equal(t, "transfer", newer.Payments[0].Method)
}

func TestAllocate_ExcessGoesToWallet(t *testing.T) {
	c := twoInvoiceCustomer()
	c.WalletBalance = dec("5")

	a, err := Allocate(c, PaymentRequest{Amount: dec("175.25"), Date: "2026-03-01"}, NewSequenceGenerator("pay"))
	require.NoError(t, err)
	assert.True(t, a.WalletDelta.Equal(dec("25.25")))
	a.Apply(c)

	assert.True(t, c.WalletBalance.Equal(dec("30.25")))
	assert.True(t, c.Debt().IsZero())
	assert.Empty(t, c.Check())
}

func TestAllocate_NoOutstandingCreditsWallet(t *testing.T) {
	c := &Customer{ID: "cust-1", WalletBalance: decimal.Zero}

	a, err := Allocate(c, PaymentRequest{Amount: dec("40"), Date: "2026-03-01"}, NewSequenceGenerator("pay"))
	require.NoError(t, err)
	assert.Empty(t, a.Invoices)
	assert.True(t, a.WalletDelta.Equal(dec("40")))
}

func TestAllocate_Conservation(t *testing.T) {
	amounts := []string{"0.01", "1", "33.33", "99.99", "100", "149.99", "150", "150.01", "1000"}
	for _, amt := range amounts {
		t.Run(amt, func(t *testing.T) {
			c := twoInvoiceCustomer()
			c.Invoices = append(c.Invoices, newInvoice("sale-mid", "2026-01-20", "12.34"))

			a, err := Allocate(c, PaymentRequest{Amount: dec(amt), Date: "2026-03-01"}, NewSequenceGenerator("pay"))
			require.NoError(t, err)

			assert.True(t, a.Applied().Add(a.WalletDelta).Equal(dec(amt)),
				"applied %s + wallet %s != %s", a.Applied(), a.WalletDelta, amt)

			a.Apply(c)
			for _, inv := range c.Invoices {
				assert.False(t, inv.PaidAmount.GreaterThan(inv.Total), "invoice %s overpaid", inv.ID)
			}
			assert.Empty(t, c.Check())
		})
	}
}

func TestAllocate_SameDateKeepsListOrder(t *testing.T) {
	c := &Customer{ID: "cust-1", WalletBalance: decimal.Zero, Invoices: []Invoice{
		newInvoice("first", "2026-01-01", "10"),
		newInvoice("second", "2026-01-01", "10"),
	}}

	a, err := Allocate(c, PaymentRequest{Amount: dec("10"), Date: "2026-01-02"}, NewSequenceGenerator("pay"))
	require.NoError(t, err)
	require.Len(t, a.Invoices, 1)
	assert.Equal(t, "first", a.Invoices[0].ID)
}

func TestAllocate_DoesNotMutateCustomer(t *testing.T) {
	c := twoInvoiceCustomer()

	_, err := Allocate(c, PaymentRequest{Amount: dec("120"), Date: "2026-03-01"}, NewSequenceGenerator("pay"))
	require.NoError(t, err)

	for _, inv := range c.Invoices {
		assert.True(t, inv.PaidAmount.IsZero())
		assert.Empty(t, inv.Payments)
	}
}

func TestAllocation_ApplyCopiesInvoices(t *testing.T) {
	c := twoInvoiceCustomer()
	ids := NewSequenceGenerator("pay")

	first, err := Allocate(c, PaymentRequest{Amount: dec("10"), Date: "2026-03-01"}, ids)
	require.NoError(t, err)
	first.Apply(c)
	second, err := Allocate(c, PaymentRequest{Amount: dec("20"), Date: "2026-03-02"}, ids)
	require.NoError(t, err)
	second.Apply(c)

	old := &c.Invoices[1]
	require.True(t, old.RemovePayment(first.Payments[0].ID))

	require.Len(t, second.Invoices[0].Payments, 2)
	assert.Equal(t, first.Payments[0].ID, second.Invoices[0].Payments[0].ID)
}

func TestAllocate_Validation(t *testing.T) {
	c := twoInvoiceCustomer()
	ids := NewSequenceGenerator("pay")

	_, err := Allocate(c, PaymentRequest{Amount: decimal.Zero, Date: "2026-03-01"}, ids)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Allocate(c, PaymentRequest{Amount: dec("-5"), Date: "2026-03-01"}, ids)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Allocate(c, PaymentRequest{Amount: dec("5"), Date: "2026-03-01", TargetInvoiceID: "nope"}, ids)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "targetInvoiceId", verr.Field)
}

func TestAllocate_PaidTargetFallsBackToFIFO(t *testing.T) {
	c := twoInvoiceCustomer()
	settled := SettleAll(c, "2026-02-15", "cash", NewSequenceGenerator("settle"))
	settled.Apply(c)
	c.Invoices = append([]Invoice{newInvoice("sale-latest", "2026-03-01", "10")}, c.Invoices...)

	a, err := Allocate(c, PaymentRequest{Amount: dec("4"), Date: "2026-03-02", TargetInvoiceID: "sale-old"}, NewSequenceGenerator("pay"))
	require.NoError(t, err)
	require.Len(t, a.Invoices, 1)
	assert.Equal(t, "sale-latest", a.Invoices[0].ID)
}

func TestSettleAll(t *testing.T) {
	c := twoInvoiceCustomer()
	c.Invoices[0].PaidAmount = dec("20")
	c.Invoices[0].Payments = []PaymentRecord{{ID: "old-pay", InvoiceID: "sale-new", Date: "2026-02-11", Amount: dec("20")}}

	a := SettleAll(c, "2026-03-01", "cash", NewSequenceGenerator("settle"))
	require.Len(t, a.Payments, 2)
	assert.True(t, a.Applied().Equal(dec("130")))
	assert.True(t, a.WalletDelta.IsZero())
	a.Apply(c)

	for _, inv := range c.Invoices {
		assert.True(t, inv.IsPaid, "invoice %s", inv.ID)
		assert.True(t, inv.Pending().IsZero())
		assert.Equal(t, "2026-03-01", inv.PaidAt)
	}
	assert.Len(t, invoiceByID(t, c, "sale-new").Payments, 2)
	assert.Empty(t, c.Check())
}

func TestSettleAll_Idempotent(t *testing.T) {
	c := twoInvoiceCustomer()
	ids := NewSequenceGenerator("settle")

	SettleAll(c, "2026-03-01", "cash", ids).Apply(c)
	before := c.Invoices[0].Payments

	second := SettleAll(c, "2026-03-02", "cash", ids)
	assert.True(t, second.Empty())
	second.Apply(c)
	assert.Equal(t, before, c.Invoices[0].Payments)
}

func TestSpendWallet(t *testing.T) {
	c := twoInvoiceCustomer()
	c.WalletBalance = dec("60")

	a, err := SpendWallet(c, "2026-03-01", NewSequenceGenerator("pay"))
	require.NoError(t, err)
	assert.True(t, a.WalletDelta.Equal(dec("-60")))
	a.Apply(c)

	assert.True(t, c.WalletBalance.IsZero())
	older := invoiceByID(t, c, "sale-old")
	assert.True(t, older.PaidAmount.Equal(dec("60")))
	assert.Equal(t, MethodWallet, older.Payments[0].Method)
}

func TestSpendWallet_KeepsUnusedCredit(t *testing.T) {
	c := twoInvoiceCustomer()
	c.WalletBalance = dec("200")

	a, err := SpendWallet(c, "2026-03-01", NewSequenceGenerator("pay"))
	require.NoError(t, err)
	a.Apply(c)

	assert.True(t, c.WalletBalance.Equal(dec("50")))
	assert.True(t, c.Debt().IsZero())
}

func TestSpendWallet_EmptyWallet(t *testing.T) {
	c := twoInvoiceCustomer()

	_, err := SpendWallet(c, "2026-03-01", NewSequenceGenerator("pay"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAllocate_Golden(t *testing.T) {
	c := &Customer{
		ID:            "cust-1",
		Name:          "Amina Traders",
		WalletBalance: decimal.Zero,
		CreditLimit:   decimal.NewFromInt(500),
		Invoices: []Invoice{
			{
				ID: "sale-b", CustomerID: "cust-1", ProductName: "RICE",
				WeightKg: decimal.NewFromInt(50), PricePerKg: decimal.NewFromInt(1), Total: decimal.NewFromInt(50),
				Date: "2026-02-10", PaidAmount: decimal.Zero, Payments: []PaymentRecord{},
			},
			{
				ID: "sale-a", CustomerID: "cust-1", ProductName: "MAIZE",
				WeightKg: decimal.NewFromInt(250), PricePerKg: dec("0.4"), Total: decimal.NewFromInt(100),
				Date: "2026-01-05", PaidAmount: decimal.Zero, Payments: []PaymentRecord{},
			},
		},
	}

	a, err := Allocate(c, PaymentRequest{Amount: decimal.NewFromInt(120), Date: "2026-03-01", Method: "cash"}, NewSequenceGenerator("pay"))
	require.NoError(t, err)
	a.Apply(c)

	got, err := json.MarshalIndent(c, "", "  ")
	require.NoError(t, err)
	got = append(got, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "allocate_fifo", got)
}
