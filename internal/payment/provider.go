package payment

import "context"

// DefaultCurrency is the only currency the widget charges in.
const DefaultCurrency = "usd"

// IntentRequest captures the information required to open a payment intent with a provider.
type IntentRequest struct {
	AmountCents             int64
	Currency                string
	AutomaticPaymentMethods bool
	IdempotencyKey          string
}

// IntentResponse represents the minimal information returned by a provider when creating an intent.
type IntentResponse struct {
	ID           string
	ClientSecret string
}

// Provider abstracts the operations required from an upstream payment processor.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	Name() string
}

// ProcessorError carries the human-readable message returned by the processor.
type ProcessorError struct {
	Message string
	Err     error
}

func (e *ProcessorError) Error() string { return e.Message }

func (e *ProcessorError) Unwrap() error { return e.Err }
