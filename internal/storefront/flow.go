// Package storefront runs the discount flow for storefront sessions: it
// detects codes in page URLs, drives the per-session state machine through the
// reconciliation engine and renders the notification surface.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/discountstate"
	"github.com/fairyhunter13/storefront-discount-service/internal/model"
	"github.com/fairyhunter13/storefront-discount-service/internal/notification"
	"github.com/fairyhunter13/storefront-discount-service/internal/urldiscount"
)

var (
	// ErrInvalidPageURL is returned when the page URL cannot be parsed.
	ErrInvalidPageURL = errors.New("invalid page url")

	// ErrNothingToRetry is returned when Retry is called outside a retryable error state.
	ErrNothingToRetry = errors.New("no failed discount code to retry")

	// ErrNoComparison is returned when a comparison action is called without an open comparison.
	ErrNoComparison = errors.New("no discount comparison is open")
)

// EngineInterface is the reconciliation engine used by Flow.
type EngineInterface interface {
	Apply(ctx context.Context, req discount.ApplyRequest) discount.Result
	ApplyNew(ctx context.Context, req discount.ApplyRequest) discount.Result
	KeepCurrent(cmp discount.Comparison) discount.Result
	ApplyPending(ctx context.Context, cartID string) discount.Result
}

// CartInterface is the part of the commerce backend Flow uses directly.
type CartInterface interface {
	RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error)
	CreateOrGetCart(ctx context.Context, cartID, regionID string) (*model.Cart, error)
	AddLineItem(ctx context.Context, cartID string, item model.LineItemInput) (*model.Cart, error)
}

// Request carries the client context of a flow operation.
type Request struct {
	CartID   string
	RegionID string
	Probe    discount.StorageProbe
}

func (r Request) applyRequest(code string) discount.ApplyRequest {
	return discount.ApplyRequest{CartID: r.CartID, RegionID: r.RegionID, Code: code, Probe: r.Probe}
}

// Outcome is the session's flow after an operation.
type Outcome struct {
	State discountstate.State `json:"state"`
	View  notification.View   `json:"view"`
	// CleanURL is the page URL without the discount parameter. It is set once
	// per URL code, when the storefront should replace the current history entry.
	CleanURL string `json:"clean_url,omitempty"`
	// CartID is set when the operation created a cart.
	CartID string           `json:"cart_id,omitempty"`
	Result *discount.Result `json:"result,omitempty"`
}

// Flow coordinates the discount flow of storefront sessions.
type Flow struct {
	engine   EngineInterface
	carts    CartInterface
	renderer *notification.Renderer
	timeout  time.Duration
}

// NewFlow creates a Flow. Each backend round of an operation is bounded by timeout.
func NewFlow(engine EngineInterface, carts CartInterface, renderer *notification.Renderer, timeout time.Duration) *Flow {
	return &Flow{engine: engine, carts: carts, renderer: renderer, timeout: timeout}
}

// Current returns the flow bound to ctx without changing it.
// Without a session it reports the initial state.
func (f *Flow) Current(ctx context.Context) Outcome {
	st := discountstate.FromContext(ctx).Snapshot()
	return Outcome{State: st, View: f.renderer.Render(st)}
}

// HandlePageURL detects a discount code in the page URL and applies it.
// A code that is the same as the last one detected for the session is not applied again.
func (f *Flow) HandlePageURL(ctx context.Context, sess *Session, req Request, rawURL string) (Outcome, error) {
	u, err := urldiscount.ParsePage(rawURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPageURL, err)
	}

	det := urldiscount.Detect(u)
	if !sess.Detector.Observe(det.Code) {
		return f.outcome(sess, nil, f.claimCleanURL(sess)), nil
	}

	sess.setPageURL(rawURL)
	sess.Store.SetURLDiscount(det.Code)
	res := f.run(ctx, sess, det.Code, false, func(ctx context.Context) discount.Result {
		return f.engine.Apply(ctx, req.applyRequest(det.Code))
	})
	return f.applied(sess, req, res), nil
}

// Apply applies a manually entered code.
func (f *Flow) Apply(ctx context.Context, sess *Session, req Request, code string) Outcome {
	code = discount.NormalizeCode(code)
	res := f.run(ctx, sess, code, false, func(ctx context.Context) discount.Result {
		return f.engine.Apply(ctx, req.applyRequest(code))
	})
	return f.applied(sess, req, res)
}

// Retry re-runs the last failed attempt. A failed replacement from the
// comparison is replaced again rather than compared again.
func (f *Flow) Retry(ctx context.Context, sess *Session, req Request) (Outcome, error) {
	st := sess.Store.Snapshot()
	if st.Error == "" || !st.Retryable || st.LastCode == "" {
		return Outcome{}, ErrNothingToRetry
	}
	if st.LastForced {
		return f.replace(ctx, sess, req, st.LastCode), nil
	}
	return f.Apply(ctx, sess, req, st.LastCode), nil
}

// Dismiss hides the banner. A code that came from the URL is stripped from it too.
func (f *Flow) Dismiss(sess *Session) Outcome {
	sess.Store.DismissBanner()
	clean := ""
	if sess.Store.ClaimURLCleanupOnDismiss() {
		clean = cleanURL(sess.getPageURL())
	}
	return f.outcome(sess, nil, clean)
}

// ClearError clears the error without dismissing the banner.
func (f *Flow) ClearError(sess *Session) Outcome {
	sess.Store.ClearError()
	return f.outcome(sess, nil, "")
}

// KeepCurrent closes the comparison and keeps the discount already on the cart.
func (f *Flow) KeepCurrent(sess *Session) (Outcome, error) {
	st := sess.Store.Snapshot()
	if !st.ComparisonModalOpen || st.ComparisonData == nil {
		return Outcome{}, ErrNoComparison
	}
	sess.Store.HideComparisonModal()

	res := f.engine.KeepCurrent(*st.ComparisonData)
	gen := sess.Store.StartApplying(res.Code)
	f.settle(sess, gen, res)
	return f.outcome(sess, &res, f.claimCleanURL(sess)), nil
}

// ApplyNew closes the comparison and replaces the current discount with the new code.
func (f *Flow) ApplyNew(ctx context.Context, sess *Session, req Request) (Outcome, error) {
	st := sess.Store.Snapshot()
	if !st.ComparisonModalOpen || st.PendingDiscountCode == "" {
		return Outcome{}, ErrNoComparison
	}
	sess.Store.HideComparisonModal()

	return f.replace(ctx, sess, req, st.PendingDiscountCode), nil
}

func (f *Flow) replace(ctx context.Context, sess *Session, req Request, code string) Outcome {
	res := f.run(ctx, sess, code, true, func(ctx context.Context) discount.Result {
		return f.engine.ApplyNew(ctx, req.applyRequest(code))
	})
	return f.applied(sess, req, res)
}

// Reset returns the session's flow to its initial state, dropping any attempt in flight.
func (f *Flow) Reset(sess *Session) Outcome {
	sess.reset()
	return f.outcome(sess, nil, "")
}

// AddItem adds an item to the session's cart, creating the cart when needed,
// then applies any code deferred on it.
func (f *Flow) AddItem(ctx context.Context, sess *Session, req Request, item model.LineItemInput) (*model.Cart, Outcome, error) {
	callCtx, cancel := f.withTimeout(ctx)
	cart, err := f.carts.CreateOrGetCart(callCtx, req.CartID, req.RegionID)
	if err == nil && cart == nil {
		err = discount.ErrCartUnavailable
	}
	if err == nil {
		cart, err = f.carts.AddLineItem(callCtx, cart.ID, item)
	}
	cancel()
	if err != nil {
		return nil, Outcome{}, err
	}

	if f.ItemAdded(ctx, sess, cart.ID) {
		callCtx, cancel := f.withTimeout(ctx)
		defer cancel()
		if latest, err := f.carts.RetrieveCart(callCtx, cart.ID); err == nil && latest != nil {
			cart = latest
		}
	}

	out := f.outcome(sess, nil, "")
	if cart.ID != req.CartID {
		out.CartID = cart.ID
	}
	return cart, out, nil
}

// ItemAdded applies the code deferred on an empty cart now that it has items.
// A failure is logged and never surfaced, since the item itself was added.
// Reports whether a deferred code was applied.
func (f *Flow) ItemAdded(ctx context.Context, sess *Session, cartID string) bool {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	res := f.engine.ApplyPending(ctx, cartID)
	if res.Code == "" {
		return false
	}
	if res.Err != nil || !res.Success {
		log.Warn().
			Str("session_id", sess.ID).
			Str("cart_id", cartID).
			Str("code", res.Code).
			Str("error", res.ErrorMessage()).
			Msg("deferred discount code was not applied")
		return false
	}

	gen := sess.Store.StartApplying(res.Code)
	sess.Store.ApplySuccess(gen, res.AlreadyApplied, res.Message)
	return true
}

// run executes one application attempt. Starting an attempt cancels the
// previous one, and a result that lost the race is not recorded. forced marks
// an attempt that replaces the current discount without comparing.
func (f *Flow) run(ctx context.Context, sess *Session, code string, forced bool, apply func(context.Context) discount.Result) discount.Result {
	start := sess.Store.StartApplying
	if forced {
		start = sess.Store.StartReplacing
	}
	gen := start(code)
	ctx, done := sess.begin(ctx, f.timeout)
	defer done()

	res := apply(ctx)
	if !f.settle(sess, gen, res) {
		log.Debug().
			Str("session_id", sess.ID).
			Str("code", code).
			Uint64("generation", gen).
			Msg("discarded stale discount result")
	}
	return res
}

// settle records res for attempt gen. Returns false if gen is stale.
func (f *Flow) settle(sess *Session, gen uint64, res discount.Result) bool {
	switch {
	case res.Err != nil:
		return sess.Store.ApplyError(gen, res.Err.Message, res.Err.Retryable())
	case res.NeedsChoice && res.Comparison != nil:
		if !sess.Store.FinishApplying(gen) {
			return false
		}
		sess.Store.ShowComparisonModal(*res.Comparison, res.Code)
		return true
	default:
		return sess.Store.ApplySuccess(gen, res.AlreadyApplied, res.Message)
	}
}

func (f *Flow) claimCleanURL(sess *Session) string {
	if !sess.Store.ClaimURLCleanup() {
		return ""
	}
	return cleanURL(sess.getPageURL())
}

func cleanURL(raw string) string {
	u, err := urldiscount.ParsePage(raw)
	if err != nil || raw == "" {
		return ""
	}
	return urldiscount.ClearDiscountFromURL(u)
}

func (f *Flow) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// applied builds the outcome of an application attempt.
func (f *Flow) applied(sess *Session, req Request, res discount.Result) Outcome {
	out := f.outcome(sess, &res, f.claimCleanURL(sess))
	if res.CartID != "" && res.CartID != req.CartID {
		out.CartID = res.CartID
	}
	return out
}

func (f *Flow) outcome(sess *Session, res *discount.Result, clean string) Outcome {
	st := sess.Store.Snapshot()
	return Outcome{
		State:    st,
		View:     f.renderer.Render(st),
		CleanURL: clean,
		Result:   res,
	}
}
