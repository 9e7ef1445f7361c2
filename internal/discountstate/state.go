// Package discountstate holds the per-session discount flow state machine.
//
// State is only changed through the transition methods on Store. Each
// application attempt is tagged with a generation so that a result arriving
// after a newer attempt (or a reset) is dropped instead of overwriting it.
package discountstate

import (
	"sync"
	"time"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
)

// State is a snapshot of the discount flow. Empty strings mean "absent".
type State struct {
	URLDiscount         string               `json:"url_discount,omitempty"`
	IsApplying          bool                 `json:"is_applying"`
	IsApplied           bool                 `json:"is_applied"`
	Error               string               `json:"error,omitempty"`
	BannerDismissed     bool                 `json:"banner_dismissed"`
	AlreadyApplied      bool                 `json:"already_applied"`
	ComparisonModalOpen bool                 `json:"comparison_modal_open"`
	ComparisonData      *discount.Comparison `json:"comparison_data,omitempty"`
	PendingDiscountCode string               `json:"pending_discount_code,omitempty"`

	// LastCode is the code of the latest attempt; Retry re-runs it.
	LastCode string `json:"last_code,omitempty"`
	// LastForced is set when the latest attempt replaced the current discount
	// without comparing, so Retry must replace again.
	LastForced bool      `json:"last_forced"`
	Retryable  bool      `json:"retryable"`
	Message    string    `json:"message,omitempty"`
	AppliedAt  time.Time `json:"-"`
	// URLCleaned is set once the cleaned page URL has been handed out.
	URLCleaned bool   `json:"-"`
	Generation uint64 `json:"-"`
}

// Actions is the set of transitions on a discount flow.
type Actions interface {
	Snapshot() State
	SetURLDiscount(code string)
	StartApplying(code string) uint64
	StartReplacing(code string) uint64
	ApplySuccess(gen uint64, alreadyApplied bool, message string) bool
	ApplyError(gen uint64, message string, retryable bool) bool
	FinishApplying(gen uint64) bool
	DismissBanner()
	ClearError()
	Reset()
	ShowComparisonModal(cmp discount.Comparison, pendingCode string)
	HideComparisonModal()
	ClaimURLCleanup() bool
	ClaimURLCleanupOnDismiss() bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the mutable discount flow for one session. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

var _ Actions = (*Store)(nil)

// NewStore returns a Store in its initial state.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.ComparisonData != nil {
		cmp := *st.ComparisonData
		st.ComparisonData = &cmp
	}
	return st
}

// SetURLDiscount records a code found in the page URL and clears the
// outcome of any earlier code.
func (s *Store) SetURLDiscount(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.URLDiscount = code
	s.state.IsApplied = false
	s.state.Error = ""
	s.state.BannerDismissed = false
	s.state.AlreadyApplied = false
	s.state.URLCleaned = false
}

// StartApplying marks an attempt for code as in flight and returns its generation.
// A previous success is cleared so IsApplying and IsApplied are never both true.
func (s *Store) StartApplying(code string) uint64 {
	return s.start(code, false)
}

// StartReplacing is StartApplying for an attempt that replaces the current
// discount without a comparison.
func (s *Store) StartReplacing(code string) uint64 {
	return s.start(code, true)
}

func (s *Store) start(code string, forced bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Generation++
	s.state.IsApplying = true
	s.state.IsApplied = false
	s.state.AlreadyApplied = false
	s.state.Error = ""
	s.state.LastCode = code
	s.state.LastForced = forced
	return s.state.Generation
}

// ApplySuccess completes attempt gen. Returns false if gen is stale.
func (s *Store) ApplySuccess(gen uint64, alreadyApplied bool, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.state.Generation {
		return false
	}
	s.state.IsApplying = false
	s.state.IsApplied = true
	s.state.AlreadyApplied = alreadyApplied
	s.state.Message = message
	s.state.AppliedAt = s.now()
	return true
}

// ApplyError fails attempt gen. Returns false if gen is stale.
func (s *Store) ApplyError(gen uint64, message string, retryable bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.state.Generation {
		return false
	}
	s.state.IsApplying = false
	s.state.IsApplied = false
	s.state.AlreadyApplied = false
	s.state.Error = message
	s.state.Retryable = retryable
	s.state.Message = ""
	return true
}

// FinishApplying ends attempt gen without an outcome, e.g. when the user
// must choose between two codes. Returns false if gen is stale.
func (s *Store) FinishApplying(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.state.Generation {
		return false
	}
	s.state.IsApplying = false
	return true
}

func (s *Store) DismissBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BannerDismissed = true
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
}

// Reset returns every field to its initial value. In-flight attempts become stale.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Generation: s.state.Generation + 1}
}

func (s *Store) ShowComparisonModal(cmp discount.Comparison, pendingCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ComparisonModalOpen = true
	s.state.ComparisonData = &cmp
	s.state.PendingDiscountCode = pendingCode
}

func (s *Store) HideComparisonModal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ComparisonModalOpen = false
	s.state.ComparisonData = nil
	s.state.PendingDiscountCode = ""
}

// ClaimURLCleanup returns true exactly once after a URL code was applied
// without error. The caller strips the code from the page URL.
func (s *Store) ClaimURLCleanup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.URLDiscount == "" || s.state.URLCleaned || !s.state.IsApplied || s.state.Error != "" {
		return false
	}
	s.state.URLCleaned = true
	return true
}

// ClaimURLCleanupOnDismiss is ClaimURLCleanup for a dismissed banner, which
// strips the code whatever the outcome so a refresh doesn't re-run it.
func (s *Store) ClaimURLCleanupOnDismiss() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.URLDiscount == "" || s.state.URLCleaned {
		return false
	}
	s.state.URLCleaned = true
	return true
}
