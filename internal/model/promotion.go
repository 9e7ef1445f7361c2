package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationType describes how a promotion's value is computed.
type ApplicationType string

const (
	// ApplicationPercentage takes a rate (e.g. 10 for 10%) off the subtotal.
	ApplicationPercentage ApplicationType = "percentage"
	// ApplicationFixed takes a flat amount in the cart's currency.
	ApplicationFixed ApplicationType = "fixed"
)

// ApplicationMethod is the value rule of a promotion.
type ApplicationMethod struct {
	Type         ApplicationType `json:"type"`
	Value        decimal.Decimal `json:"value"`
	CurrencyCode string          `json:"currency_code,omitempty"`
}

// Promotion is a promotion code known to the commerce backend.
type Promotion struct {
	Code              string            `json:"code"`
	IsAutomatic       bool              `json:"is_automatic"`
	ApplicationMethod ApplicationMethod `json:"application_method"`
}

// PromotionRule is the stored definition of a promotion, including its
// eligibility constraints. Only the local commerce service reads these.
type PromotionRule struct {
	Promotion
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	UsageLimit  *int
	UsedCount   int
	MinSubtotal decimal.Decimal
	MinItems    int
}
