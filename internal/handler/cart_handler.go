package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/internal/region"
)

// CartHandler handles HTTP requests that change the session's cart.
type CartHandler struct {
	flow      FlowInterface
	validator *validator.Validate
	requests  requestBuilder
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(flow FlowInterface, v *validator.Validate, regions *region.Resolver, countryHeader string) *CartHandler {
	return &CartHandler{
		flow:      flow,
		validator: v,
		requests:  requestBuilder{regions: regions, countryHeader: countryHeader},
	}
}

type addItemResponse struct {
	Cart     *model.Cart      `json:"cart"`
	Discount discountResponse `json:"discount"`
}

func formatLineItemValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			switch fe.Field() {
			case "VariantID":
				if fe.Tag() == "max" {
					return "invalid request: variant_id exceeds maximum length of 255"
				}
				return "invalid request: variant_id is required"
			case "Quantity":
				return "invalid request: quantity must be between 1 and 1000"
			case "Title":
				return "invalid request: title exceeds maximum length of 255"
			default:
				return "invalid request: " + fe.Field() + " is invalid"
			}
		}
	}
	return "invalid request"
}

// AddLineItem handles POST /api/cart/line-items.
// A discount code deferred on an empty cart is applied once the item is in.
func (h *CartHandler) AddLineItem(c *fiber.Ctx) error {
	sess, ok := sessionFrom(c)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	var item model.LineItemInput
	if err := c.BodyParser(&item); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(item); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatLineItemValidationError(err)})
	}
	if item.UnitPrice.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: unit_price must not be negative"})
	}

	req := h.requests.build(c)
	cart, out, err := h.flow.AddItem(c.UserContext(), sess, req, item)
	if err != nil {
		classified := discount.Classify(err)
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("session_id", sess.ID).
			Str("cart_id", req.CartID).
			Str("variant_id", item.VariantID).
			Msg("failed to add line item")
		return c.Status(statusFor(classified)).JSON(fiber.Map{"error": classified.Message})
	}

	setCartCookie(c, out.CartID)
	return c.Status(fiber.StatusCreated).JSON(addItemResponse{
		Cart:     cart,
		Discount: discountResponse{Outcome: out},
	})
}
