package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney formats d with two decimals and thousands separators,
// e.g. -1234.5 -> "-1,234.50".
func FormatMoney(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatSignedMoney is FormatMoney with an explicit plus sign on positive
// values.
func FormatSignedMoney(d decimal.Decimal) string {
	if d.Round(2).IsPositive() {
		return "+" + FormatMoney(d)
	}
	return FormatMoney(d)
}

// FormatDays formats a day count, e.g. 1 -> "1 day", 30 -> "30 days".
func FormatDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
