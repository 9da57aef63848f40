package ledger

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a mutation before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CustomerInput carries the editable scalar fields of a customer.
type CustomerInput struct {
	Name        string          `validate:"required"`
	TaxID       string          `validate:"max=32"`
	Address     string          `validate:"max=256"`
	Phone       string          `validate:"max=32"`
	CreditLimit decimal.Decimal `validate:"gte=0"`
}

// SaleInput creates an invoice and takes the weight out of stock.
type SaleInput struct {
	CustomerID  string          `validate:"required"`
	ProductName string          `validate:"required"`
	WeightKg    decimal.Decimal `validate:"gt=0"`
	PricePerKg  decimal.Decimal `validate:"gte=0"`
	Date        string          `validate:"required,ledgerdate"`
}

// PaymentInput is an incoming payment for one customer. TargetInvoiceID is
// optional and moves that invoice to the front of the allocation order.
type PaymentInput struct {
	CustomerID      string          `validate:"required"`
	Amount          decimal.Decimal `validate:"gt=0"`
	Date            string          `validate:"required,ledgerdate"`
	Method          string          `validate:"max=32"`
	TargetInvoiceID string
}

// StockAdjustment is a manual override of a stock item. DeltaKg may take the
// available weight below zero. BasePrice, when set, replaces the base price.
type StockAdjustment struct {
	ProductName string `validate:"required"`
	DeltaKg     decimal.Decimal
	BasePrice   *decimal.Decimal
	Date        string `validate:"required,ledgerdate"`
	Note        string
}

// PurchaseInput records goods bought from a supplier.
type PurchaseInput struct {
	ProductName string          `validate:"required"`
	WeightKg    decimal.Decimal `validate:"gt=0"`
	PricePerKg  decimal.Decimal `validate:"gte=0"`
	Date        string          `validate:"required,ledgerdate"`
	Supplier    string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("ledgerdate", func(fl validator.FieldLevel) bool {
		return ValidDate(fl.Field().String())
	})
	return v
}

// Validate checks an input struct and returns the first violation as a
// *ValidationError.
func Validate(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	return Invalid(fieldName(fe.Field()), "%s", describe(fe))
}

func fieldName(goName string) string {
	if goName == "" {
		return goName
	}
	return strings.ToLower(goName[:1]) + goName[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "ledgerdate":
		return fmt.Sprintf("%q is not a YYYY-MM-DD date", fe.Value())
	default:
		return "failed " + fe.Tag()
	}
}

// ParseAmount parses a user-supplied amount. NaN, infinities and garbage are
// validation errors.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, Invalid(field, "%q is not a number", s)
	}
	return d, nil
}

// AmountFromFloat converts a float, rejecting NaN and infinities.
func AmountFromFloat(field string, f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, Invalid(field, "must be a finite number")
	}
	return decimal.NewFromFloat(f), nil
}
