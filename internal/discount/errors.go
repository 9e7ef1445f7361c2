package discount

import "errors"

// Kind is the closed taxonomy of reconciliation failures.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindIneligible         Kind = "ineligible"
	KindUsageLimit         Kind = "usage_limit"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindCartUnavailable    Kind = "cart_unavailable"
	KindNetwork            Kind = "network"
	KindUnknown            Kind = "unknown"
)

var (
	// ErrValidation is returned for empty or malformed codes. Never reaches the backend.
	ErrValidation = errors.New("invalid discount code")

	// ErrNotFound is returned when the code doesn't exist or has expired.
	ErrNotFound = errors.New("discount code not found")

	// ErrIneligible is returned when the cart doesn't meet the code's requirements.
	ErrIneligible = errors.New("cart not eligible for discount code")

	// ErrUsageLimit is returned when the code's redemption cap is reached.
	ErrUsageLimit = errors.New("discount code usage limit reached")

	// ErrStorageUnavailable is returned when neither cookies nor local storage are writable.
	ErrStorageUnavailable = errors.New("cart storage unavailable")

	// ErrCartUnavailable is returned when the backend cannot find the session's cart.
	ErrCartUnavailable = errors.New("cart unavailable")

	// ErrNetwork is returned for transport-level failures.
	ErrNetwork = errors.New("commerce backend unreachable")

	// ErrUnknown wraps backend errors that match no known pattern.
	ErrUnknown = errors.New("discount code could not be applied")
)

var kindErrors = map[Kind]error{
	KindValidation:         ErrValidation,
	KindNotFound:           ErrNotFound,
	KindIneligible:         ErrIneligible,
	KindUsageLimit:         ErrUsageLimit,
	KindStorageUnavailable: ErrStorageUnavailable,
	KindCartUnavailable:    ErrCartUnavailable,
	KindNetwork:            ErrNetwork,
	KindUnknown:            ErrUnknown,
}

// User-facing messages.
const (
	MsgCodeRequired       = "Discount code is required"
	MsgNotFound           = "This discount code doesn't exist. Please check the code and try again."
	MsgExpired            = "This discount code has expired."
	MsgInvalid            = "This discount code is not valid."
	MsgIneligible         = "Your cart doesn't meet the requirements for this discount code."
	MsgUsageLimit         = "This discount code has reached its usage limit."
	MsgStorageUnavailable = "We couldn't save your cart. Private browsing or blocked cookies can prevent discounts from being applied. Please enable cookies and try again."
	MsgCartUnavailable    = "We couldn't find your cart. Please add an item and try again."
	MsgNetwork            = "We couldn't reach the store. Please check your connection and try again."
)

// Error is a classified reconciliation failure carrying the message shown to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the error's kind.
func (e *Error) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

// Retryable reports whether retrying the same code can succeed.
// Validation failures need the user to re-enter a code and storage failures
// need the shopper to re-enable cookies or local storage.
func (e *Error) Retryable() bool {
	return e.Kind != KindValidation && e.Kind != KindStorageUnavailable
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
