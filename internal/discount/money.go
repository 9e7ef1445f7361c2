package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"gbp": "£",
	"usd": "$",
	"eur": "€",
	"aud": "A$",
	"cad": "C$",
}

// FormatMoney renders amount in major units with two decimals, e.g. "£2.50".
// Unknown currencies render as "2.50 SEK".
func FormatMoney(amount decimal.Decimal, currencyCode string) string {
	value := amount.StringFixed(2)
	code := strings.ToLower(currencyCode)
	if sym, ok := currencySymbols[code]; ok {
		if amount.IsNegative() {
			return "-" + sym + amount.Abs().StringFixed(2)
		}
		return sym + value
	}
	if code == "" {
		return value
	}
	return value + " " + strings.ToUpper(code)
}
