package discountstate

import (
	"context"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
)

type noop struct{}

// Noop returns Actions that ignore every transition and report the initial state.
func Noop() Actions { return noop{} }

func (noop) Snapshot() State { return State{} }
func (noop) SetURLDiscount(string) {}
func (noop) StartApplying(string) uint64 { return 0 }
func (noop) StartReplacing(string) uint64 { return 0 }
func (noop) ApplySuccess(uint64, bool, string) bool { return false }
func (noop) ApplyError(uint64, string, bool) bool { return false }
func (noop) FinishApplying(uint64) bool { return false }
func (noop) DismissBanner() {}
func (noop) ClearError() {}
func (noop) Reset() {}
func (noop) ShowComparisonModal(discount.Comparison, string) {}
func (noop) HideComparisonModal() {}
func (noop) ClaimURLCleanup() bool { return false }
func (noop) ClaimURLCleanupOnDismiss() bool { return false }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying a.
func NewContext(ctx context.Context, a Actions) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the Actions stored in ctx, or Noop when there are none.
func FromContext(ctx context.Context) Actions {
	if a, ok := ctx.Value(ctxKey{}).(Actions); ok && a != nil {
		return a
	}
	return Noop()
}
