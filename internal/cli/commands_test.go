package cli

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/remote/memstore"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCLI_OfflineWorkflow(t *testing.T) {
	env := newCLIEnv(t, nil)

	var items []ledger.StockItem
	env.runJSON(&items, "stock", "adjust", "maize", "--kg", "100", "--note", "delivery")
	require.Len(t, items, 1)
	assert.True(t, items[0].AvailableKg.Equal(dec("100")))

	var c ledger.Customer
	env.runJSON(&c, "customer", "add", "--name", "Ada", "--phone", "555-0100")
	require.NotEmpty(t, c.ID)

	var invoices []ledger.Invoice
	env.runJSON(&invoices, "sale", "add", "--customer", c.ID, "--product", "Maize", "--kg", "10", "--price", "2")
	require.Len(t, invoices, 1)
	assert.Equal(t, "MAIZE", invoices[0].ProductName)
	assert.Equal(t, testToday, invoices[0].Date)
	assert.True(t, invoices[0].Total.Equal(dec("20")))

	var alloc allocationView
	env.runJSON(&alloc, "pay", c.ID, "--amount", "25")
	assert.True(t, alloc.Applied.Equal(dec("20")))
	assert.True(t, alloc.WalletDelta.Equal(dec("5")))
	require.Len(t, alloc.Payments, 1)
	assert.Equal(t, invoices[0].ID, alloc.Payments[0].InvoiceID)

	var detail customerDetail
	env.runJSON(&detail, "customer", "show", c.ID)
	assert.True(t, detail.WalletBalance.Equal(dec("5")))
	assert.True(t, detail.Debt.IsZero())
	require.Len(t, detail.Invoices, 1)
	assert.True(t, detail.Invoices[0].IsPaid)
	assert.Equal(t, testToday, detail.Invoices[0].PaidAt)

	env.runJSON(&items, "stock", "list")
	var maize ledger.StockItem
	for _, item := range items {
		if item.ProductName == "MAIZE" {
			maize = item
		}
	}
	assert.True(t, maize.AvailableKg.Equal(dec("90")))

	var report checkReport
	env.runJSON(&report, "check")
	assert.True(t, report.OK)
}

func TestCLI_SettleAndWallet(t *testing.T) {
	env := newCLIEnv(t, nil)
	env.runJSON(nil, "stock", "adjust", "rice", "--kg", "50")
	var c ledger.Customer
	env.runJSON(&c, "customer", "add", "--name", "Bob")
	env.runJSON(nil, "sale", "add", "--customer", c.ID, "--product", "rice", "--kg", "4", "--price", "2.5", "--date", "2026-03-01")
	env.runJSON(nil, "sale", "add", "--customer", c.ID, "--product", "rice", "--kg", "2", "--price", "2.5", "--date", "2026-03-02")

	// A partial payment goes to the oldest invoice.
	var alloc allocationView
	env.runJSON(&alloc, "pay", c.ID, "--amount", "3")
	require.Len(t, alloc.Payments, 1)

	env.runJSON(&alloc, "settle", c.ID, "--method", "transfer")
	assert.True(t, alloc.Applied.Equal(dec("12")), alloc.Applied.String())
	for _, p := range alloc.Payments {
		assert.Equal(t, "transfer", p.Method)
	}

	var detail customerDetail
	env.runJSON(&detail, "customer", "show", c.ID)
	assert.True(t, detail.Debt.IsZero())

	code, exit := env.runFail("wallet", "apply", c.ID)
	assert.Equal(t, ErrCodeInvalidInput, code.Code)
	assert.Equal(t, ExitFailure, exit)
}

func TestCLI_Rejections(t *testing.T) {
	env := newCLIEnv(t, nil)
	var c ledger.Customer
	env.runJSON(&c, "customer", "add", "--name", "Ada")

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"negative payment", []string{"pay", c.ID, "--amount", "-5"}, ErrCodeInvalidInput},
		{"garbage amount", []string{"pay", c.ID, "--amount", "lots"}, ErrCodeInvalidInput},
		{"unstocked product", []string{"sale", "add", "--customer", c.ID, "--product", "saffron", "--kg", "1", "--price", "9"}, ErrCodeInvalidInput},
		{"bad date", []string{"purchase", "add", "--product", "rice", "--kg", "1", "--price", "1", "--date", "15/03/2026"}, ErrCodeInvalidInput},
		{"unknown customer", []string{"customer", "delete", "nobody"}, ErrCodeNotFound},
		{"unknown sale", []string{"sale", "delete", "nothing"}, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exit := env.runFail(tt.args...)
			assert.Equal(t, tt.code, got.Code, got.Message)
			assert.Equal(t, ExitFailure, exit)
		})
	}

	var list customerList
	env.runJSON(&list, "customer", "list")
	require.Len(t, list, 1, "rejected operations change nothing")
	assert.Equal(t, 0, list[0].Invoices)
}

func TestCLI_PurchasesDoNotTouchStock(t *testing.T) {
	env := newCLIEnv(t, nil)

	var added purchaseList
	env.runJSON(&added, "purchase", "add", "--product", "beans", "--kg", "30", "--price", "1.1", "--supplier", "Coop")
	require.Len(t, added, 1)
	assert.True(t, added[0].Total.Equal(dec("33")))

	var items stockList
	env.runJSON(&items, "stock", "list")
	for _, item := range items {
		assert.True(t, item.AvailableKg.IsZero(), item.ProductName)
	}

	env.runJSON(nil, "purchase", "delete", added[0].ID)
	var purchases purchaseList
	env.runJSON(&purchases, "purchase", "list")
	assert.Empty(t, purchases)
}

func TestCLI_TextOutput(t *testing.T) {
	env := newCLIEnv(t, nil)
	_, err := env.run("customer", "add", "--name", "Ada")
	require.NoError(t, err)

	out, err := env.run("customer", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Ada")

	out, err = env.run("check")
	require.NoError(t, err)
	assert.Equal(t, "ledger ok\n", out)
}

func TestCLI_WritesThroughToRemote(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	env := newCLIEnv(t, store)

	var c ledger.Customer
	env.runJSON(&c, "customer", "add", "--name", "Ada")
	env.runJSON(nil, "stock", "adjust", "maize", "--kg", "5")

	rows, err := store.Select(ctx, remote.TableCustomers, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, c.ID, rows[0]["id"])

	filter := remote.ByKey(remote.TableStock, "MAIZE")
	rows, err = store.Select(ctx, remote.TableStock, &filter)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Zero(t, store.Subscribers(remote.TableSales), "sessions release their changefeeds")
}

func TestCLI_BootstrapTakesRemotePurchases(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Upsert(ctx, remote.TablePurchases, []remote.Row{
		remote.EncodePurchase(ledger.PurchaseEntry{ID: "remote-1", ProductName: "RICE", WeightKg: dec("10"), PricePerKg: dec("1"), Total: dec("10"), Date: testToday}),
	}))
	env := newCLIEnv(t, store)

	var purchases purchaseList
	env.runJSON(&purchases, "purchase", "list")
	require.Len(t, purchases, 1)
	assert.Equal(t, "remote-1", purchases[0].ID)
}

func TestCLI_WatchNeedsRemote(t *testing.T) {
	env := newCLIEnv(t, nil)
	got, exit := env.runFail("watch")
	assert.Equal(t, ExitCommandError, exit)
	assert.Contains(t, got.Message, "LEDGER_REMOTE_URL")
}
