package discount

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classify maps an opaque backend error onto the discount taxonomy.
//
// Backends that already return a *Error (or wrap one of the kind sentinels)
// are passed through. Everything else is matched case-insensitively against
// known message fragments; unrecognised errors keep their raw message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var de *Error
	if errors.As(err, &de) {
		return de
	}
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return newError(kind, messageFor(kind, err), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindNetwork, MsgNetwork, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(KindNetwork, MsgNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "usage limit"):
		return newError(KindUsageLimit, MsgUsageLimit, err)
	case strings.Contains(msg, "expired"):
		return newError(KindNotFound, MsgExpired, err)
	case strings.Contains(msg, "not eligible"), strings.Contains(msg, "requirements"):
		return newError(KindIneligible, MsgIneligible, err)
	case strings.Contains(msg, "promo_codes"):
		return newError(KindNotFound, MsgInvalid, err)
	case isCartStorageMessage(msg):
		return newError(KindCartUnavailable, MsgCartUnavailable, err)
	case strings.Contains(msg, "not found"):
		return newError(KindNotFound, MsgNotFound, err)
	}

	return newError(KindUnknown, err.Error(), err)
}

func isCartStorageMessage(msg string) bool {
	if strings.Contains(msg, "cart_id") || strings.Contains(msg, "localstorage") || strings.Contains(msg, "cookie") {
		return true
	}
	// A missing code on an existing cart is about the code, not the cart.
	if !strings.Contains(msg, "cart") || strings.Contains(msg, "promo") || strings.Contains(msg, "code") {
		return false
	}
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "no cart")
}

func messageFor(kind Kind, err error) string {
	switch kind {
	case KindValidation:
		return MsgCodeRequired
	case KindNotFound:
		if strings.Contains(strings.ToLower(err.Error()), "expired") {
			return MsgExpired
		}
		return MsgNotFound
	case KindIneligible:
		return MsgIneligible
	case KindUsageLimit:
		return MsgUsageLimit
	case KindStorageUnavailable:
		return MsgStorageUnavailable
	case KindCartUnavailable:
		return MsgCartUnavailable
	case KindNetwork:
		return MsgNetwork
	}
	return err.Error()
}
