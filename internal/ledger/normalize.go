package ledger

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical ledger date format.
const DateLayout = "2006-01-02"

var upper = cases.Upper(language.Und)

// NormalizeProductName trims, NFC-normalizes and upper-cases a product name
// so that "  maïze" and "MAÏZE" resolve to the same stock item.
func NormalizeProductName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return upper.String(norm.NFC.String(name))
}

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// FormatDate renders t as a ledger date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the current local date.
func Today() string {
	return FormatDate(time.Now())
}
