package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/storefront-discount-service/internal/model"
)

// DefaultPendingKey is the cart metadata key holding a deferred code.
const DefaultPendingKey = "pending_discount_code"

// restoreTimeout bounds re-applying the original codes after a failed replace.
// It runs detached from the attempt's context, which may already be done.
const restoreTimeout = 5 * time.Second

// Backend is the commerce backend the engine reconciles against.
type Backend interface {
	// RetrieveCart returns nil, nil when the cart does not exist.
	RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error)
	CreateOrGetCart(ctx context.Context, cartID, regionID string) (*model.Cart, error)
	// ApplyPromotionCodes replaces the cart's user-entered promotion codes.
	ApplyPromotionCodes(ctx context.Context, cartID string, codes []string) (*model.Cart, error)
	// UpdateCartMetadata shallow-merges patch; a nil value deletes the key.
	UpdateCartMetadata(ctx context.Context, cartID string, patch map[string]any) (*model.Cart, error)
	LookupPromotion(ctx context.Context, code string) (*model.Promotion, error)
	AddLineItem(ctx context.Context, cartID string, item model.LineItemInput) (*model.Cart, error)
}

// StorageProbe reports whether the client can persist its cart identity.
type StorageProbe interface {
	CookieWritable() bool
	LocalStorageWritable() bool
}

// StorageAvailable is true when either cookies or local storage are writable.
// A nil probe counts as available.
func StorageAvailable(p StorageProbe) bool {
	return p == nil || p.CookieWritable() || p.LocalStorageWritable()
}

// Config tunes the engine.
type Config struct {
	ReplaceThreshold decimal.Decimal
	PendingKey       string
}

// Engine decides what happens when a code is applied to a cart.
type Engine struct {
	backend    Backend
	threshold  decimal.Decimal
	pendingKey string
}

// NewEngine creates an Engine. Zero config values fall back to defaults.
func NewEngine(backend Backend, cfg Config) *Engine {
	threshold := cfg.ReplaceThreshold
	if threshold.IsZero() {
		threshold = DefaultReplaceThreshold
	}
	key := cfg.PendingKey
	if key == "" {
		key = DefaultPendingKey
	}
	return &Engine{backend: backend, threshold: threshold, pendingKey: key}
}

// ApplyRequest is one reconciliation attempt.
type ApplyRequest struct {
	CartID   string
	RegionID string
	Code     string
	Probe    StorageProbe
}

// Result is the outcome of a reconciliation attempt. Failures are reported
// through Err; Apply never returns a Go error.
type Result struct {
	Success        bool        `json:"success"`
	AlreadyApplied bool        `json:"already_applied"`
	Pending        bool        `json:"pending"`
	Replaced       bool        `json:"replaced"`
	NeedsChoice    bool        `json:"needs_choice"`
	Code           string      `json:"code"`
	CartID         string      `json:"cart_id,omitempty"`
	Message        string      `json:"message,omitempty"`
	Comparison     *Comparison `json:"comparison,omitempty"`
	Err            *Error      `json:"-"`
}

// ErrorMessage returns the user-facing error text, or "" on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

func failed(code, cartID string, err *Error) Result {
	return Result{Code: code, CartID: cartID, Err: err}
}

// Apply reconciles code against the cart's existing user-entered codes.
//
// An empty cart only validates the code and stores it in cart metadata. A
// cart without codes gets the code applied directly. Otherwise the two are
// compared and the new code replaces the current one only when it is worth
// more than the threshold; smaller gains are returned with NeedsChoice set
// and the cart is left untouched.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) Result {
	code := NormalizeCode(req.Code)
	if code == "" {
		return failed(code, req.CartID, newError(KindValidation, MsgCodeRequired, nil))
	}
	if !StorageAvailable(req.Probe) {
		return failed(code, req.CartID, newError(KindStorageUnavailable, MsgStorageUnavailable, nil))
	}

	cart, derr := e.loadCart(ctx, req.CartID, req.RegionID)
	if derr != nil {
		return e.logResult(failed(code, req.CartID, derr))
	}
	return e.logResult(e.reconcile(ctx, cart, code, false))
}

// ApplyNew resolves a comparison in favour of the new code.
func (e *Engine) ApplyNew(ctx context.Context, req ApplyRequest) Result {
	code := NormalizeCode(req.Code)
	if code == "" {
		return failed(code, req.CartID, newError(KindValidation, MsgCodeRequired, nil))
	}
	if !StorageAvailable(req.Probe) {
		return failed(code, req.CartID, newError(KindStorageUnavailable, MsgStorageUnavailable, nil))
	}

	cart, derr := e.loadCart(ctx, req.CartID, req.RegionID)
	if derr != nil {
		return e.logResult(failed(code, req.CartID, derr))
	}
	return e.logResult(e.reconcile(ctx, cart, code, true))
}

// KeepCurrent resolves a comparison in favour of the discount already applied.
// The cart is not touched.
func (e *Engine) KeepCurrent(cmp Comparison) Result {
	return Result{
		Success:        true,
		AlreadyApplied: true,
		Code:           cmp.CurrentCode,
		Message:        fmt.Sprintf("Kept discount code %s.", cmp.CurrentCode),
	}
}

// ApplyPending applies a code deferred in cart metadata once the cart has
// items, then clears the metadata key. Failures are logged and reported in
// the result but must not undo the item addition that triggered this.
// Returns a zero Result when nothing was pending.
func (e *Engine) ApplyPending(ctx context.Context, cartID string) Result {
	cart, err := e.backend.RetrieveCart(ctx, cartID)
	if err != nil {
		log.Warn().Err(err).Str("cart_id", cartID).Msg("pending discount: failed to retrieve cart")
		return Result{}
	}
	code := NormalizeCode(cart.MetadataString(e.pendingKey))
	if code == "" || cart.IsEmpty() {
		return Result{}
	}

	res := e.reconcile(ctx, cart, code, false)
	if res.NeedsChoice {
		// A live discount outranks a deferred one unless it wins outright.
		log.Info().Str("cart_id", cartID).Str("code", code).Msg("pending discount dropped in favour of current discount")
	}

	if _, err := e.backend.UpdateCartMetadata(ctx, cartID, map[string]any{e.pendingKey: nil}); err != nil {
		log.Error().Err(err).Str("cart_id", cartID).Str("code", code).Msg("pending discount: failed to clear metadata")
	}
	return e.logResult(res)
}

func (e *Engine) loadCart(ctx context.Context, cartID, regionID string) (*model.Cart, *Error) {
	var cart *model.Cart
	if cartID != "" {
		c, err := e.backend.RetrieveCart(ctx, cartID)
		if err != nil {
			return nil, Classify(err)
		}
		cart = c
	}
	if cart == nil {
		c, err := e.backend.CreateOrGetCart(ctx, cartID, regionID)
		if err != nil {
			return nil, Classify(err)
		}
		cart = c
	}
	if cart == nil {
		return nil, newError(KindCartUnavailable, MsgCartUnavailable, nil)
	}
	return cart, nil
}

// reconcile runs the decision steps against a loaded cart. force skips the
// comparison and replaces whatever is applied.
func (e *Engine) reconcile(ctx context.Context, cart *model.Cart, code string, force bool) Result {
	existing := cart.UserCodes()
	if containsCode(existing, code) {
		return Result{
			Success:        true,
			AlreadyApplied: true,
			Code:           code,
			CartID:         cart.ID,
			Message:        fmt.Sprintf("Discount code %s is already applied.", code),
		}
	}

	if cart.IsEmpty() {
		if NormalizeCode(cart.MetadataString(e.pendingKey)) == code {
			return pendingResult(cart.ID, code)
		}
		return e.deferUntilItems(ctx, cart, code, existing)
	}

	if len(existing) == 0 {
		return e.applyDirect(ctx, cart, code)
	}

	promo, err := e.backend.LookupPromotion(ctx, code)
	if err != nil {
		return failed(code, cart.ID, Classify(err))
	}
	if promo == nil {
		return failed(code, cart.ID, newError(KindNotFound, MsgNotFound, nil))
	}
	promo.Code = code
	cmp := Compare(cart.UserPromotions(), *promo, cart.Subtotal, cart.CurrencyCode, e.threshold)

	if !force && !cmp.IsSignificantlyBetter {
		res := Result{
			NeedsChoice: true,
			Code:        code,
			CartID:      cart.ID,
			Comparison:  &cmp,
		}
		if cmp.IsBetter {
			res.Message = fmt.Sprintf("%s would save you %s more than %s.",
				code, FormatMoney(cmp.Difference, cmp.CurrencyCode), cmp.CurrentCode)
		} else {
			res.Message = fmt.Sprintf("%s would not save you more than your current discount %s.", code, cmp.CurrentCode)
		}
		return res
	}

	res := e.replace(ctx, cart, code, existing)
	if res.Success {
		res.Comparison = &cmp
		if cmp.IsBetter {
			res.Message = fmt.Sprintf("Discount code %s applied. You save an extra %s.",
				code, FormatMoney(cmp.Difference, cmp.CurrencyCode))
		}
	}
	return res
}

// deferUntilItems validates code by applying it, then takes it off again and
// records it under the pending metadata key.
func (e *Engine) deferUntilItems(ctx context.Context, cart *model.Cart, code string, existing []string) Result {
	if _, err := e.backend.ApplyPromotionCodes(ctx, cart.ID, append(append([]string{}, existing...), code)); err != nil {
		return failed(code, cart.ID, Classify(err))
	}
	if _, err := e.backend.ApplyPromotionCodes(ctx, cart.ID, existing); err != nil {
		log.Warn().Err(err).Str("cart_id", cart.ID).Str("code", code).Msg("failed to remove validated code from empty cart")
		return failed(code, cart.ID, Classify(err))
	}
	if _, err := e.backend.UpdateCartMetadata(ctx, cart.ID, map[string]any{e.pendingKey: code}); err != nil {
		return failed(code, cart.ID, Classify(err))
	}
	return pendingResult(cart.ID, code)
}

func pendingResult(cartID, code string) Result {
	return Result{
		Success: true,
		Pending: true,
		Code:    code,
		CartID:  cartID,
		Message: fmt.Sprintf("Discount code %s will be applied when you add items to your cart.", code),
	}
}

func (e *Engine) applyDirect(ctx context.Context, cart *model.Cart, code string) Result {
	updated, err := e.backend.ApplyPromotionCodes(ctx, cart.ID, []string{code})
	if err != nil {
		return failed(code, cart.ID, Classify(err))
	}
	if !updated.HasCode(code) {
		return failed(code, cart.ID, newError(KindIneligible, MsgIneligible, nil))
	}
	return Result{
		Success: true,
		Code:    code,
		CartID:  cart.ID,
		Message: fmt.Sprintf("Discount code %s applied.", code),
	}
}

// replace swaps the existing codes for code. On failure the original codes
// are re-applied best-effort so a working discount is never silently lost.
func (e *Engine) replace(ctx context.Context, cart *model.Cart, code string, existing []string) Result {
	updated, err := e.backend.ApplyPromotionCodes(ctx, cart.ID, []string{code})
	if err == nil && updated.HasCode(code) {
		return Result{
			Success:  true,
			Replaced: true,
			Code:     code,
			CartID:   cart.ID,
			Message:  fmt.Sprintf("Discount code %s applied.", code),
		}
	}

	derr := Classify(err)
	if err == nil {
		derr = newError(KindIneligible, MsgIneligible, nil)
	}
	e.restore(ctx, cart.ID, existing)
	return failed(code, cart.ID, derr)
}

func (e *Engine) restore(ctx context.Context, cartID string, codes []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if _, err := e.backend.ApplyPromotionCodes(ctx, cartID, codes); err != nil {
		log.Error().Err(err).Str("cart_id", cartID).Strs("codes", codes).Msg("failed to restore original discount codes")
	}
}

func (e *Engine) logResult(res Result) Result {
	ev := log.Info()
	outcome := "applied"
	switch {
	case res.Err != nil:
		ev = log.Warn()
		outcome = string(res.Err.Kind)
	case res.NeedsChoice:
		outcome = "comparison"
	case res.Pending:
		outcome = "pending"
	case res.AlreadyApplied:
		outcome = "already_applied"
	case res.Replaced:
		outcome = "replaced"
	case !res.Success:
		return res
	}
	ev.Str("cart_id", res.CartID).Str("code", res.Code).Str("outcome", outcome).Msg("discount reconciliation")
	return res
}
