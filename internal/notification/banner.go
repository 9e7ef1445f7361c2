// Package notification turns discount flow state into the banner and
// comparison modal shown by the storefront.
package notification

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/discountstate"
)

// DefaultAutoDismiss is how long a success banner stays up.
const DefaultAutoDismiss = 7 * time.Second

// Status is the banner state: pending -> success | error.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Modal actions.
const (
	ActionKeepCurrent = "keep_current"
	ActionApplyNew    = "apply_new"
)

// Banner is the non-blocking discount notification.
type Banner struct {
	Status     Status `json:"status"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	CanRetry   bool   `json:"can_retry"`
	CanDismiss bool   `json:"can_dismiss"`
	// AutoDismissMS is zero when the banner stays until dismissed.
	AutoDismissMS int64 `json:"auto_dismiss_ms,omitempty"`
}

// Modal is the blocking choice between the current and a new discount.
type Modal struct {
	CurrentCode  string   `json:"current_code"`
	NewCode      string   `json:"new_code"`
	CurrentValue string   `json:"current_value"`
	NewValue     string   `json:"new_value"`
	Difference   string   `json:"difference"`
	IsBetter     bool     `json:"is_better"`
	Actions      []string `json:"actions"`
}

// View is everything the storefront needs to draw the notification surface.
type View struct {
	Banner *Banner `json:"banner,omitempty"`
	Modal  *Modal  `json:"modal,omitempty"`
}

// Renderer builds Views from state snapshots.
type Renderer struct {
	autoDismiss time.Duration
	now         func() time.Time
}

// NewRenderer creates a Renderer. A non-positive autoDismiss uses DefaultAutoDismiss.
func NewRenderer(autoDismiss time.Duration, now func() time.Time) *Renderer {
	if autoDismiss <= 0 {
		autoDismiss = DefaultAutoDismiss
	}
	if now == nil {
		now = time.Now
	}
	return &Renderer{autoDismiss: autoDismiss, now: now}
}

// Render derives the view for st.
func (r *Renderer) Render(st discountstate.State) View {
	var v View
	if st.ComparisonModalOpen && st.ComparisonData != nil {
		v.Modal = newModal(*st.ComparisonData)
	}
	if !st.BannerDismissed {
		v.Banner = r.banner(st, v.Modal != nil)
	}
	return v
}

func (r *Renderer) banner(st discountstate.State, modalOpen bool) *Banner {
	code := st.LastCode
	if code == "" {
		code = st.URLDiscount
	}

	switch {
	case st.Error != "":
		return &Banner{
			Status:     StatusError,
			Code:       code,
			Message:    st.Error,
			CanRetry:   st.Retryable && code != "",
			CanDismiss: true,
		}
	case st.IsApplying:
		return &Banner{
			Status:     StatusPending,
			Code:       code,
			Message:    fmt.Sprintf("Applying discount code %s...", code),
			CanDismiss: true,
		}
	case st.IsApplied:
		if modalOpen {
			return nil
		}
		remaining := r.autoDismiss - r.now().Sub(st.AppliedAt)
		if remaining <= 0 {
			return nil
		}
		msg := st.Message
		if msg == "" {
			msg = fmt.Sprintf("Discount code %s applied.", code)
		}
		return &Banner{
			Status:        StatusSuccess,
			Code:          code,
			Message:       msg,
			CanDismiss:    true,
			AutoDismissMS: remaining.Milliseconds(),
		}
	case st.URLDiscount != "" && !modalOpen:
		return &Banner{
			Status:     StatusPending,
			Code:       st.URLDiscount,
			Message:    fmt.Sprintf("Discount code %s will be applied to your cart.", st.URLDiscount),
			CanDismiss: true,
		}
	}
	return nil
}

func newModal(cmp discount.Comparison) *Modal {
	return &Modal{
		CurrentCode:  cmp.CurrentCode,
		NewCode:      cmp.NewCode,
		CurrentValue: discount.FormatMoney(cmp.CurrentValue, cmp.CurrencyCode),
		NewValue:     discount.FormatMoney(cmp.NewValue, cmp.CurrencyCode),
		Difference:   discount.FormatMoney(cmp.Difference, cmp.CurrencyCode),
		IsBetter:     cmp.IsBetter,
		Actions:      []string{ActionKeepCurrent, ActionApplyNew},
	}
}
