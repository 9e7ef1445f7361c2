package discount

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		wantKind    Kind
		wantMessage string
	}{
		{"not_found", errors.New("Promotion code FAKE123 not found"), KindNotFound, MsgNotFound},
		{"not_found_case_insensitive", errors.New("PROMOTION NOT FOUND"), KindNotFound, MsgNotFound},
		{"expired", errors.New("The promotion SUMMER has Expired"), KindNotFound, MsgExpired},
		{"not_eligible", errors.New("cart is not eligible for promotion"), KindIneligible, MsgIneligible},
		{"requirements", errors.New("cart does not meet the requirements"), KindIneligible, MsgIneligible},
		{"usage_limit", errors.New("promotion usage limit exceeded"), KindUsageLimit, MsgUsageLimit},
		{"promo_codes", errors.New("Invalid request: promo_codes[0] is invalid"), KindNotFound, MsgInvalid},
		{"cart_not_found", errors.New("Cart with id cart_1 was not found"), KindCartUnavailable, MsgCartUnavailable},
		{"code_not_found_on_cart", errors.New("Promotion code SAVE10 not found on cart"), KindNotFound, MsgNotFound},
		{"cart_does_not_exist", errors.New("Cart does not exist"), KindCartUnavailable, MsgCartUnavailable},
		{"cart_id_missing", errors.New("missing cart_id"), KindCartUnavailable, MsgCartUnavailable},
		{"localstorage", errors.New("localStorage is not available"), KindCartUnavailable, MsgCartUnavailable},
		{"unknown_passthrough", errors.New("something odd happened"), KindUnknown, "something odd happened"},
		{"deadline", context.DeadlineExceeded, KindNetwork, MsgNetwork},
		{"net_error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindNetwork, MsgNetwork},
		{"wrapped_sentinel", fmt.Errorf("lookup: %w", ErrUsageLimit), KindUsageLimit, MsgUsageLimit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.wantKind, got.Kind)
			assert.Equal(t, tc.wantMessage, got.Message)
			assert.ErrorIs(t, got, tc.err, "original error must stay reachable")
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := newError(KindIneligible, "custom", nil)
	got := Classify(fmt.Errorf("apply: %w", orig))
	assert.Same(t, orig, got)
}

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := newError(KindUsageLimit, MsgUsageLimit, nil)
	assert.ErrorIs(t, err, ErrUsageLimit)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.True(t, err.Retryable())
}

func TestError_Retryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, false},
		{KindStorageUnavailable, false},
		{KindNotFound, true},
		{KindIneligible, true},
		{KindUsageLimit, true},
		{KindCartUnavailable, true},
		{KindNetwork, true},
		{KindUnknown, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, newError(tt.kind, "x", nil).Retryable())
		})
	}
}
