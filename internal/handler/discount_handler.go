package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/internal/region"
	"github.com/fairyhunter13/storefront-discount-service/internal/storefront"
)

// FlowInterface defines the discount flow operations used by the handlers.
type FlowInterface interface {
	Current(ctx context.Context) storefront.Outcome
	HandlePageURL(ctx context.Context, sess *storefront.Session, req storefront.Request, rawURL string) (storefront.Outcome, error)
	Apply(ctx context.Context, sess *storefront.Session, req storefront.Request, code string) storefront.Outcome
	Retry(ctx context.Context, sess *storefront.Session, req storefront.Request) (storefront.Outcome, error)
	Dismiss(sess *storefront.Session) storefront.Outcome
	ClearError(sess *storefront.Session) storefront.Outcome
	KeepCurrent(sess *storefront.Session) (storefront.Outcome, error)
	ApplyNew(ctx context.Context, sess *storefront.Session, req storefront.Request) (storefront.Outcome, error)
	Reset(sess *storefront.Session) storefront.Outcome
	AddItem(ctx context.Context, sess *storefront.Session, req storefront.Request, item model.LineItemInput) (*model.Cart, storefront.Outcome, error)
}

var _ FlowInterface = (*storefront.Flow)(nil)

// discountResponse is the flow outcome plus the failure text, if any.
type discountResponse struct {
	storefront.Outcome
	Error string `json:"error,omitempty"`
}

// DiscountHandler handles HTTP requests for the storefront discount flow.
type DiscountHandler struct {
	flow      FlowInterface
	sessions  SessionRegistry
	validator *validator.Validate
	requests  requestBuilder
}

// NewDiscountHandler creates a new DiscountHandler.
func NewDiscountHandler(flow FlowInterface, sessions SessionRegistry, v *validator.Validate, regions *region.Resolver, countryHeader string) *DiscountHandler {
	return &DiscountHandler{
		flow:      flow,
		sessions:  sessions,
		validator: v,
		requests:  requestBuilder{regions: regions, countryHeader: countryHeader},
	}
}

// formatDiscountValidationError converts validator errors to client-facing messages.
func formatDiscountValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			switch fe.Field() {
			case "URL":
				switch fe.Tag() {
				case "max":
					return "invalid request: url exceeds maximum length of 2048"
				case "pageurl":
					return "invalid request: url is malformed"
				}
				return "invalid request: url is required"
			case "Code":
				return "invalid request: code exceeds maximum length of 64"
			default:
				return "invalid request: " + fe.Field() + " is invalid"
			}
		}
	}
	return "invalid request"
}

// statusFor maps a failed attempt to an HTTP status.
func statusFor(err *discount.Error) int {
	if err == nil {
		return fiber.StatusOK
	}
	switch err.Kind {
	case discount.KindValidation, discount.KindStorageUnavailable:
		return fiber.StatusBadRequest
	case discount.KindNotFound, discount.KindCartUnavailable:
		return fiber.StatusNotFound
	case discount.KindUsageLimit:
		return fiber.StatusConflict
	case discount.KindNetwork:
		return fiber.StatusBadGateway
	}
	return fiber.StatusUnprocessableEntity
}

func (h *DiscountHandler) respond(c *fiber.Ctx, out storefront.Outcome) error {
	setCartCookie(c, out.CartID)
	resp := discountResponse{Outcome: out}
	status := fiber.StatusOK
	if out.Result != nil && out.Result.Err != nil {
		status = statusFor(out.Result.Err)
		resp.Error = out.Result.Err.Message
	}
	return c.Status(status).JSON(resp)
}

func (h *DiscountHandler) session(c *fiber.Ctx) (*storefront.Session, error) {
	sess, ok := sessionFrom(c)
	if !ok {
		log.Error().
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("path", c.Path()).
			Msg("discount route reached without a session")
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return sess, nil
}

// GetState handles GET /api/discount.
func (h *DiscountHandler) GetState(c *fiber.Ctx) error {
	return c.JSON(discountResponse{Outcome: h.flow.Current(c.UserContext())})
}

// HandlePageURL handles POST /api/discount/url with the page URL the shopper landed on.
func (h *DiscountHandler) HandlePageURL(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	var req model.PageURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatDiscountValidationError(err)})
	}

	out, err := h.flow.HandlePageURL(c.UserContext(), sess, h.requests.build(c), req.URL)
	if err != nil {
		if errors.Is(err, storefront.ErrInvalidPageURL) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: url is malformed"})
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("session_id", sess.ID).
			Msg("failed to handle page url")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return h.respond(c, out)
}

// Apply handles POST /api/discount/apply.
func (h *DiscountHandler) Apply(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	var req model.ApplyDiscountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatDiscountValidationError(err)})
	}

	return h.respond(c, h.flow.Apply(c.UserContext(), sess, h.requests.build(c), req.Code))
}

// Retry handles POST /api/discount/retry.
func (h *DiscountHandler) Retry(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	out, err := h.flow.Retry(c.UserContext(), sess, h.requests.build(c))
	if errors.Is(err, storefront.ErrNothingToRetry) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "nothing to retry"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return h.respond(c, out)
}

// Dismiss handles POST /api/discount/dismiss.
func (h *DiscountHandler) Dismiss(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	return h.respond(c, h.flow.Dismiss(sess))
}

// ClearError handles POST /api/discount/error/clear.
func (h *DiscountHandler) ClearError(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	return h.respond(c, h.flow.ClearError(sess))
}

// KeepCurrent handles POST /api/discount/comparison/keep.
func (h *DiscountHandler) KeepCurrent(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	out, err := h.flow.KeepCurrent(sess)
	if errors.Is(err, storefront.ErrNoComparison) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no discount comparison is open"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return h.respond(c, out)
}

// ApplyNew handles POST /api/discount/comparison/apply.
func (h *DiscountHandler) ApplyNew(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	out, err := h.flow.ApplyNew(c.UserContext(), sess, h.requests.build(c))
	if errors.Is(err, storefront.ErrNoComparison) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no discount comparison is open"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return h.respond(c, out)
}

// Reset handles DELETE /api/discount. The session is reset and forgotten.
func (h *DiscountHandler) Reset(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	out := h.flow.Reset(sess)
	h.sessions.Release(sess.ID)
	return c.JSON(discountResponse{Outcome: out})
}
