package order

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInFlight means another worker holds the fulfillment claim for the
// same reference and no order row exists yet. The delivery should be
// acknowledged and retried by the caller's normal redelivery path.
var ErrInFlight = errors.New("fulfillment already in progress for this reference")

// Error codes surfaced to API clients.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeUnknownEvent     = "unknown_event"
	CodeUnknownTier      = "unknown_tier"
	CodeInsufficient     = "insufficient_inventory"
	CodeInvalidPromo     = "invalid_promo"
	CodePriceMismatch    = "price_mismatch"
	CodeCurrencyMismatch = "currency_mismatch"
	CodeInternal         = "internal_error"
)

// FulfillmentError carries a stable code and an HTTP status alongside the
// message. Message is safe to show to clients; Err holds the internal
// cause and only reaches the logs.
type FulfillmentError struct {
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *FulfillmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FulfillmentError) Unwrap() error {
	return e.Err
}

func newError(code string, status int, message string, cause error) *FulfillmentError {
	return &FulfillmentError{Code: code, StatusCode: status, Message: message, Err: cause}
}

func invalidRequest(message string) *FulfillmentError {
	return newError(CodeInvalidRequest, http.StatusBadRequest, message, nil)
}

func internalError(message string, cause error) *FulfillmentError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}
