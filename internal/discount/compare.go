package discount

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/storefront-discount-service/internal/model"
)

// DefaultReplaceThreshold is the difference, in currency major units, above
// which a new code replaces the current one without asking.
var DefaultReplaceThreshold = decimal.RequireFromString("2.00")

var hundred = decimal.NewFromInt(100)

// Comparison is the computed value of swapping the current discount for a new one.
// It is created fresh for each comparison and never persisted.
type Comparison struct {
	CurrentValue          decimal.Decimal `json:"current_value"`
	NewValue              decimal.Decimal `json:"new_value"`
	Difference            decimal.Decimal `json:"difference"`
	IsBetter              bool            `json:"is_better"`
	IsSignificantlyBetter bool            `json:"is_significantly_better"`
	CurrentCode           string          `json:"current_code"`
	NewCode               string          `json:"new_code"`
	CurrencyCode          string          `json:"currency_code"`
}

// Value returns the monetary value of an application method at subtotal.
// Percentage discounts scale with the subtotal; fixed discounts are constant.
func Value(method model.ApplicationMethod, subtotal decimal.Decimal) decimal.Decimal {
	switch method.Type {
	case model.ApplicationPercentage:
		return subtotal.Mul(method.Value).Div(hundred).Round(2)
	case model.ApplicationFixed:
		return method.Value
	}
	return decimal.Zero
}

// Compare values the current promotions and a candidate at the same subtotal.
// The value of several current promotions is their sum.
func Compare(current []model.Promotion, candidate model.Promotion, subtotal decimal.Decimal, currencyCode string, threshold decimal.Decimal) Comparison {
	currentValue := decimal.Zero
	codes := make([]string, 0, len(current))
	for _, p := range current {
		currentValue = currentValue.Add(Value(p.ApplicationMethod, subtotal))
		codes = append(codes, p.Code)
	}
	newValue := Value(candidate.ApplicationMethod, subtotal)
	diff := newValue.Sub(currentValue)

	return Comparison{
		CurrentValue:          currentValue,
		NewValue:              newValue,
		Difference:            diff,
		IsBetter:              diff.GreaterThan(decimal.Zero),
		IsSignificantlyBetter: diff.GreaterThan(threshold),
		CurrentCode:           strings.Join(codes, ", "),
		NewCode:               candidate.Code,
		CurrencyCode:          currencyCode,
	}
}
