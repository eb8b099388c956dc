package payment

import (
	"errors"
	"net/http"

	"github.com/noah-isme/popup-offer/internal/common"
)

var (
	// ErrInvalidRequest marks a rejected amount; no processor call was made.
	ErrInvalidRequest = errors.New("payment: invalid request")
	// ErrNotConfigured marks a gateway with neither a processor key nor mock mode.
	ErrNotConfigured = errors.New("payment: not configured")
	// ErrUpstream marks a failed processor call.
	ErrUpstream = errors.New("payment: upstream failure")
)

const (
	msgInvalidAmount  = "Invalid amount. Please provide a valid number."
	msgNotConfigured  = "Stripe is not configured. Please set STRIPE_SECRET_KEY environment variable."
	msgUpstreamPrefix = "Error creating payment intent: "
)

func invalidAmount() error {
	return common.NewAppError("INVALID_AMOUNT", msgInvalidAmount, http.StatusBadRequest, ErrInvalidRequest)
}

func notConfigured() error {
	return common.NewAppError("PAYMENT_NOT_CONFIGURED", msgNotConfigured, http.StatusInternalServerError, ErrNotConfigured)
}

func upstreamFailure(message string, cause error) error {
	return common.NewAppError("PAYMENT_INTENT_FAILED", msgUpstreamPrefix+message, http.StatusInternalServerError,
		errors.Join(ErrUpstream, cause))
}
