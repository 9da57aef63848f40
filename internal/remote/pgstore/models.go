package pgstore

import (
	"time"

	"github.com/shopspring/decimal"
)

// The models only describe the schema for AutoMigrate. Reads and writes go
// through column maps so rows stay remote.Row end to end.

type customerModel struct {
	ID            string          `gorm:"type:text;primaryKey"`
	Name          string          `gorm:"type:text;not null;default:''"`
	TaxID         string          `gorm:"column:tax_id;type:text;not null;default:''"`
	Address       string          `gorm:"type:text;not null;default:''"`
	Phone         string          `gorm:"type:text;not null;default:''"`
	WalletBalance decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	CreditLimit   decimal.Decimal `gorm:"type:numeric;not null;default:0"`
}

func (customerModel) TableName() string { return "customers" }

type saleModel struct {
	ID             string          `gorm:"type:text;primaryKey"`
	CustomerID     string          `gorm:"type:text;not null;index"`
	ProductName    string          `gorm:"type:text;not null"`
	WeightKg       decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	PricePerKg     decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Total          decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Date           time.Time       `gorm:"type:date"`
	IsPaid         bool            `gorm:"not null;default:false"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	PaidAt         *time.Time      `gorm:"type:date"`
	PaymentHistory string          `gorm:"type:jsonb"`
}

func (saleModel) TableName() string { return "sales" }

type stockModel struct {
	ProductName string          `gorm:"type:text;primaryKey"`
	AvailableKg decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	BasePrice   decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	LastUpdated *time.Time      `gorm:"type:date"`
	History     string          `gorm:"type:jsonb"`
}

func (stockModel) TableName() string { return "stock" }

type purchaseModel struct {
	ID          string          `gorm:"type:text;primaryKey"`
	ProductName string          `gorm:"type:text;not null"`
	WeightKg    decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	PricePerKg  decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Total       decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Date        time.Time       `gorm:"type:date"`
	Supplier    string          `gorm:"type:text;not null;default:''"`
}

func (purchaseModel) TableName() string { return "purchases" }

type paymentRecordModel struct {
	ID     string          `gorm:"type:text;primaryKey"`
	SaleID string          `gorm:"type:text;not null;index"`
	Date   time.Time       `gorm:"type:date"`
	Amount decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Method string          `gorm:"type:text;not null;default:''"`
}

func (paymentRecordModel) TableName() string { return "payment_records" }

func models() []any {
	return []any{
		&customerModel{},
		&saleModel{},
		&stockModel{},
		&purchaseModel{},
		&paymentRecordModel{},
	}
}

// notifyFunction publishes every row change on the channel "ledger_<table>"
// as a JSON remote.Change. NOTIFY payloads are capped at 8000 bytes by
// PostgreSQL, which bounds the payment history a single sale can carry.
const notifyFunction = `
CREATE OR REPLACE FUNCTION ledger_notify_change() RETURNS trigger AS $$
DECLARE
	payload jsonb;
BEGIN
	payload := jsonb_build_object('table', TG_TABLE_NAME, 'type', TG_OP);
	IF TG_OP <> 'DELETE' THEN
		payload := payload || jsonb_build_object('new', to_jsonb(NEW));
	END IF;
	IF TG_OP <> 'INSERT' THEN
		payload := payload || jsonb_build_object('old', to_jsonb(OLD));
	END IF;
	PERFORM pg_notify('ledger_' || TG_TABLE_NAME, payload::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;
`

func triggerSQL(table string) []string {
	return []string{
		`DROP TRIGGER IF EXISTS ledger_notify ON ` + quote(table),
		`CREATE TRIGGER ledger_notify AFTER INSERT OR UPDATE OR DELETE ON ` + quote(table) +
			` FOR EACH ROW EXECUTE FUNCTION ledger_notify_change()`,
	}
}
