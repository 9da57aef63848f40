package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/ledgersync/internal/ledger"
)

// rowDecoder reads typed columns out of a row, keeping the first error.
// Absent and null columns decode to zero values.
type rowDecoder struct {
	table Table
	row   Row
	err   error
}

func (d *rowDecoder) fail(column string, err error) {
	if d.err == nil {
		d.err = &DecodeError{Table: d.table, Column: column, Err: err}
	}
}

func (d *rowDecoder) str(column string) string {
	switch v := d.row[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (d *rowDecoder) decimal(column string) decimal.Decimal {
	v, err := toDecimal(d.row[column])
	if err != nil {
		d.fail(column, err)
		return decimal.Zero
	}
	return v
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return n, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint64:
		return decimal.NewFromUint64(n), nil
	case string:
		return parseNumericString(n)
	case []byte:
		return parseNumericString(string(n))
	case fmt.Stringer:
		return parseNumericString(n.String())
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func parseNumericString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// date normalizes ISO dates, RFC 3339 timestamps and time.Time values to
// YYYY-MM-DD.
func (d *rowDecoder) date(column string) string {
	s, err := toDate(d.row[column])
	if err != nil {
		d.fail(column, err)
	}
	return s
}

func toDate(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case time.Time:
		if t.IsZero() {
			return "", nil
		}
		return t.Format(ledger.DateLayout), nil
	case *time.Time:
		if t == nil {
			return "", nil
		}
		return toDate(*t)
	case []byte:
		return toDate(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", nil
		}
		if len(s) >= len(ledger.DateLayout) && ledger.ValidDate(s[:len(ledger.DateLayout)]) {
			return s[:len(ledger.DateLayout)], nil
		}
		return "", fmt.Errorf("%q is not a date", s)
	default:
		return "", fmt.Errorf("unsupported date type %T", v)
	}
}

func (d *rowDecoder) boolean(column string) bool {
	switch v := d.row[column].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			d.fail(column, err)
		}
		return b
	default:
		n, err := toDecimal(v)
		if err != nil {
			d.fail(column, err)
			return false
		}
		return !n.IsZero()
	}
}

// payments decodes a jsonb payment history. The second result is false when
// the row does not carry the column (or carries null).
func (d *rowDecoder) payments(column string) ([]ledger.PaymentRecord, bool) {
	items, ok := d.list(column)
	if !ok {
		return nil, false
	}
	out := make([]ledger.PaymentRecord, 0, len(items))
	for i, item := range items {
		sub := rowDecoder{table: d.table, row: item}
		p := sub.payment().PaymentRecord
		if sub.err != nil {
			d.fail(fmt.Sprintf("%s[%d]", column, i), sub.err)
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

func (d *rowDecoder) movements(column string) ([]ledger.Movement, bool) {
	items, ok := d.list(column)
	if !ok {
		return []ledger.Movement{}, false
	}
	out := make([]ledger.Movement, 0, len(items))
	for i, item := range items {
		sub := rowDecoder{table: d.table, row: item}
		m := ledger.Movement{
			Date:  sub.date("date"),
			Delta: sub.decimal("delta"),
			Type:  ledger.MovementType(sub.str("type")),
			Note:  sub.str("note"),
		}
		if sub.err != nil {
			d.fail(fmt.Sprintf("%s[%d]", column, i), sub.err)
			return []ledger.Movement{}, false
		}
		out = append(out, m)
	}
	return out, true
}

// list reads a JSON array of objects stored either natively or as encoded
// JSON text.
func (d *rowDecoder) list(column string) ([]Row, bool) {
	raw, ok := d.row[column]
	if !ok || raw == nil {
		return nil, false
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		rows := make([]Row, len(v))
		for i, m := range v {
			rows[i] = m
		}
		return rows, true
	case []Row:
		return v, true
	case string:
		return d.listJSON(column, []byte(v))
	case []byte:
		return d.listJSON(column, v)
	case json.RawMessage:
		return d.listJSON(column, v)
	default:
		d.fail(column, fmt.Errorf("unsupported list type %T", raw))
		return nil, false
	}
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		switch m := it.(type) {
		case map[string]any:
			rows = append(rows, m)
		case Row:
			rows = append(rows, m)
		default:
			d.fail(column, fmt.Errorf("list element is %T, want object", it))
			return nil, false
		}
	}
	return rows, true
}

func (d *rowDecoder) listJSON(column string, data []byte) ([]Row, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		d.fail(column, err)
		return nil, false
	}
	if rows == nil {
		return nil, false
	}
	return rows, true
}

// number renders a decimal as an exact JSON number.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NormalizeRow round-trips a row through JSON so values take the shapes a
// networked store would deliver (json.Number, []any, map[string]any).
func NormalizeRow(r Row) (Row, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out Row
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
