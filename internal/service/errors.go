package service

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
)

// Promotion and cart errors wrap the discount taxonomy so the reconciliation
// engine can classify them without matching on message text.
var (
	// ErrCartNotFound is returned when a cart ID does not exist
	ErrCartNotFound = fmt.Errorf("cart not found: %w", discount.ErrCartUnavailable)

	// ErrRegionNotFound is returned when creating a cart in an unknown region.
	// No cart can be created, so it surfaces as an unavailable cart.
	ErrRegionNotFound = fmt.Errorf("region not found: %w", discount.ErrCartUnavailable)

	// ErrPromotionNotFound is returned when a code doesn't exist, is inactive or not yet started
	ErrPromotionNotFound = fmt.Errorf("promotion not found: %w", discount.ErrNotFound)

	// ErrPromotionExpired is returned when a code's end date has passed
	ErrPromotionExpired = fmt.Errorf("promotion has expired: %w", discount.ErrNotFound)

	// ErrPromotionIneligible is returned when the cart doesn't meet a code's requirements
	ErrPromotionIneligible = fmt.Errorf("cart does not meet the requirements of the promotion: %w", discount.ErrIneligible)

	// ErrPromotionUsageLimit is returned when a code has no redemptions left
	ErrPromotionUsageLimit = fmt.Errorf("promotion usage limit reached: %w", discount.ErrUsageLimit)

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")
)
