package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cart is the commerce backend's view of a shopping cart.
type Cart struct {
	ID           string          `json:"id"`
	RegionID     string          `json:"region_id"`
	CurrencyCode string          `json:"currency_code"`
	Items        []LineItem      `json:"items"`
	Promotions   []Promotion     `json:"promotions"`
	Metadata     map[string]any  `json:"metadata"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CreatedAt    time.Time       `json:"-"`
}

// LineItem is a single product line in a cart.
type LineItem struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total returns quantity * unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// LineItemInput describes an item to add to a cart.
type LineItemInput struct {
	VariantID string          `json:"variant_id" validate:"required,notblank,max=255"`
	Title     string          `json:"title" validate:"max=255"`
	Quantity  int             `json:"quantity" validate:"required,gte=1,lte=1000"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// UserCodes returns the codes of the non-automatic promotions on the cart.
// On success, returns an empty slice (not nil) when none are applied.
func (c *Cart) UserCodes() []string {
	codes := []string{}
	if c == nil {
		return codes
	}
	for _, p := range c.Promotions {
		if !p.IsAutomatic {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

// UserPromotions returns the non-automatic promotions on the cart.
func (c *Cart) UserPromotions() []Promotion {
	if c == nil {
		return nil
	}
	var out []Promotion
	for _, p := range c.Promotions {
		if !p.IsAutomatic {
			out = append(out, p)
		}
	}
	return out
}

// HasCode reports whether code is among the cart's promotions, ignoring case
// and surrounding whitespace.
func (c *Cart) HasCode(code string) bool {
	if c == nil {
		return false
	}
	code = strings.TrimSpace(code)
	for _, p := range c.Promotions {
		if strings.EqualFold(strings.TrimSpace(p.Code), code) {
			return true
		}
	}
	return false
}

// MetadataString returns the string stored under key, or "" when absent.
func (c *Cart) MetadataString(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[key].(string)
	return s
}
