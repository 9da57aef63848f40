package localstore

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/ledger"
)

func sampleState() *ledger.State {
	s := ledger.NewState(ledger.DefaultCatalog())
	s.UpsertCustomer(ledger.Customer{
		ID:            "c1",
		Name:          "Ada",
		WalletBalance: decimal.RequireFromString("2.50"),
	})
	_, _ = s.InsertInvoice(ledger.Invoice{
		ID:          "s1",
		CustomerID:  "c1",
		ProductName: "MAIZE",
		WeightKg:    decimal.NewFromInt(10),
		PricePerKg:  decimal.RequireFromString("0.42"),
		Total:       decimal.RequireFromString("4.2"),
		Date:        "2026-03-01",
		PaidAmount:  decimal.NewFromInt(1),
		Payments: []ledger.PaymentRecord{
			{ID: "p1", InvoiceID: "s1", Date: "2026-03-02", Amount: decimal.NewFromInt(1), Method: "cash"},
		},
	})
	item, _ := s.StockItem("maize")
	item.AvailableKg = decimal.NewFromInt(-10)
	item.Movements = append(item.Movements, ledger.Movement{Date: "2026-03-01", Delta: decimal.NewFromInt(-10), Type: ledger.MovementExit})
	s.UpsertPurchase(ledger.PurchaseEntry{
		ID:          "b1",
		ProductName: "RICE",
		WeightKg:    decimal.NewFromInt(100),
		PricePerKg:  decimal.RequireFromString("0.8"),
		Total:       decimal.NewFromInt(80),
		Date:        "2026-02-20",
		Supplier:    "Coop",
	})
	return s
}

func newLedger(t *testing.T) (*Ledger, *Memory) {
	t.Helper()
	mem := NewMemory()
	l, err := NewLedger(mem)
	require.NoError(t, err)
	return l, mem
}

func TestLedger_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	want := sampleState()

	require.NoError(t, l.Save(ctx, want))
	got, problems := l.Load(ctx, ledger.DefaultCatalog())
	require.Empty(t, problems)

	require.Len(t, got.Customers, 1)
	inv := got.Customers[0].Invoices[0]
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("4.2")))
	assert.True(t, got.Customers[0].WalletBalance.Equal(decimal.RequireFromString("2.5")))
	require.Len(t, inv.Payments, 1)
	assert.Equal(t, "p1", inv.Payments[0].ID)

	item, ok := got.StockItem("maize")
	require.True(t, ok)
	assert.True(t, item.AvailableKg.Equal(decimal.NewFromInt(-10)))
	require.Len(t, item.Movements, 1)

	require.Len(t, got.Purchases, 1)
	assert.Equal(t, "Coop", got.Purchases[0].Supplier)
	assert.Empty(t, got.Check())
}

func TestLedger_RoundTripSQLite(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	l, err := NewLedger(s)
	require.NoError(t, err)
	require.NoError(t, l.Save(ctx, sampleState()))
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	l, err = NewLedger(reopened)
	require.NoError(t, err)
	defer l.Close()

	got, problems := l.Load(ctx, nil)
	require.Empty(t, problems)
	assert.Len(t, got.Customers, 1)
	assert.Len(t, got.Purchases, 1)
	assert.Len(t, got.Stock, len(ledger.DefaultCatalog()))
}

func TestLedger_MissingBlobsUseDefaults(t *testing.T) {
	l, _ := newLedger(t)

	got, problems := l.Load(context.Background(), ledger.DefaultCatalog())
	assert.Empty(t, problems)
	assert.Empty(t, got.Customers)
	assert.Empty(t, got.Purchases)
	assert.Equal(t, ledger.DefaultCatalog(), got.Stock)
}

func TestLedger_BadBlobsFallBack(t *testing.T) {
	tests := []struct {
		name string
		key  string
		data string
	}{
		{"corrupt json", KeyCustomers, `[{"id":`},
		{"wrong shape", KeyCustomers, `{"id":"c1"}`},
		{"null", KeyPurchases, `null`},
		{"bad date", KeyPurchases, `[{"id":"p","productName":"RICE","weightKg":"1","pricePerKg":"1","total":"1","date":"20/02/2026","supplier":""}]`},
		{"bad movement type", KeyStock, `[{"productName":"MAIZE","availableKg":"0","basePrice":"0","lastUpdated":"","history":[{"date":"2026-01-01","delta":"1","type":"entry"}]}]`},
		{"empty id", KeyCustomers, `[{"id":"","name":"","taxId":"","address":"","phone":"","walletBalance":"0","creditLimit":"0","invoices":[]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			l, mem := newLedger(t)
			require.NoError(t, mem.Put(ctx, tt.key, []byte(tt.data)))

			got, problems := l.Load(ctx, ledger.DefaultCatalog())
			require.Len(t, problems, 1)
			var se *SchemaError
			assert.ErrorAs(t, problems[0], &se)
			assert.Equal(t, tt.key, se.Key)

			assert.Empty(t, got.Customers)
			assert.Empty(t, got.Purchases)
			assert.Len(t, got.Stock, len(ledger.DefaultCatalog()))
		})
	}
}

func TestLedger_OneBadBlobKeepsTheOthers(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t)
	require.NoError(t, l.Save(ctx, sampleState()))
	require.NoError(t, mem.Put(ctx, KeyStock, []byte(`"garbage"`)))

	got, problems := l.Load(ctx, ledger.DefaultCatalog())
	assert.Len(t, problems, 1)
	assert.Len(t, got.Customers, 1)
	assert.Len(t, got.Purchases, 1)
	item, ok := got.StockItem("maize")
	require.True(t, ok)
	assert.True(t, item.AvailableKg.IsZero(), "stock reset to catalog")
}

func TestLedger_SaveSelectedKeys(t *testing.T) {
	ctx := context.Background()
	l, mem := newLedger(t)

	require.NoError(t, l.Save(ctx, sampleState(), KeyPurchases))
	assert.Equal(t, 1, mem.Puts())
	_, ok, _ := mem.Get(ctx, KeyCustomers)
	assert.False(t, ok)

	assert.Error(t, l.Save(ctx, sampleState(), "invoices"))
}

func TestSchema_AcceptsNumbersForDecimals(t *testing.T) {
	s, err := NewSchema()
	require.NoError(t, err)

	err = s.Validate(KeyPurchases, []byte(`[{"id":"p","productName":"RICE","weightKg":1.5,"pricePerKg":2,"total":"3","date":"2026-02-20","supplier":"x","extra":true}]`))
	assert.NoError(t, err)

	err = s.Validate("invoices", []byte(`[]`))
	assert.Error(t, err)
}
