package pgstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/roach88/ledgersync/internal/remote"
)

func TestMapError_UndefinedColumn(t *testing.T) {
	err := fmt.Errorf("exec: %w", &pgconn.PgError{
		Code:    "42703",
		Message: `column "payment_history" of relation "sales" does not exist`,
	})

	mapped := mapError(remote.TableSales, err)
	mc, ok := remote.AsMissingColumn(mapped)
	require.True(t, ok)
	assert.Equal(t, remote.TableSales, mc.Table)
	assert.Equal(t, "payment_history", mc.Column)
}

func TestMapError_PassThrough(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	assert.Same(t, error(unique), mapError(remote.TableSales, unique))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapError(remote.TableSales, plain))
}

func TestSQLValues(t *testing.T) {
	values, err := sqlValues(remote.Row{
		"id":              "s1",
		"total":           json.Number("10.50"),
		"is_paid":         true,
		"paid_at":         nil,
		"payment_history": []any{map[string]any{"id": "p1", "amount": json.Number("5")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "10.50", values["total"])
	assert.Equal(t, true, values["is_paid"])
	assert.Nil(t, values["paid_at"])
	assert.JSONEq(t, `[{"id":"p1","amount":5}]`, values["payment_history"].(string))
}

func TestUpdateColumns(t *testing.T) {
	cols := updateColumns(remote.TableStock, remote.Row{"product_name": "RICE", "base_price": 1, "available_kg": 2})
	assert.Equal(t, []string{"available_kg", "base_price"}, cols)
}

func TestDecodeNotification(t *testing.T) {
	c, err := decodeNotification(`{"table":"sales","type":"UPDATE","new":{"id":"s1","total":12.5,"date":"2026-03-01"},"old":{"id":"s1","total":10}}`)
	require.NoError(t, err)
	assert.Equal(t, remote.ChangeUpdate, c.Type)
	assert.Equal(t, "s1", c.Key())
	assert.Equal(t, json.Number("12.5"), c.New["total"])

	rec, err := remote.Decode(c.Table, c.New)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", rec.(remote.SaleRecord).Date)

	_, err = decodeNotification(`{"table":"users","type":"INSERT"}`)
	assert.ErrorIs(t, err, remote.ErrUnknownTable)
}

func TestChannelAndQuote(t *testing.T) {
	assert.Equal(t, "ledger_payment_records", channel(remote.TablePaymentRecords))
	assert.Equal(t, `"sales"`, quote("sales"))
	assert.Equal(t, `"we""ird"`, quote(`we"ird`))
}

func TestTriggerSQL(t *testing.T) {
	stmts := triggerSQL("stock")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `DROP TRIGGER IF EXISTS ledger_notify ON "stock"`)
	assert.Contains(t, stmts[1], "EXECUTE FUNCTION ledger_notify_change()")
}

func TestModels_AmountsKeepFullPrecision(t *testing.T) {
	cache := &sync.Map{}
	for _, m := range models() {
		sch, err := schema.Parse(m, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		for _, f := range sch.Fields {
			if f.FieldType.String() == "decimal.Decimal" {
				assert.Equal(t, schema.DataType("numeric"), f.DataType, "%s.%s", sch.Table, f.DBName)
			}
		}
	}
}
