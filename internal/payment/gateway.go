package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/popup-offer/internal/obs"
)

// Intent is the result handed back to the browser.
type Intent struct {
	ClientSecret string `json:"clientSecret"`
	Mock         bool   `json:"mock,omitempty"`
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Provider is nil when no processor key is configured.
	Provider Provider
	// Mock returns placeholder secrets when Provider is nil.
	Mock     bool
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Gateway turns an amount into a client secret, either through the
// configured processor or, when allowed, a mock placeholder.
type Gateway struct {
	provider Provider
	mock     bool
	currency string
	logger   zerolog.Logger
	now      func() time.Time
}

// IntentOption customises a single CreatePaymentIntent call.
type IntentOption func(*IntentRequest)

// WithIdempotencyKey forwards key to the processor.
func WithIdempotencyKey(key string) IntentOption {
	return func(r *IntentRequest) { r.IdempotencyKey = key }
}

// NewGateway builds a gateway from opts.
func NewGateway(opts GatewayOptions) *Gateway {
	currency := opts.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		provider: opts.Provider,
		mock:     opts.Mock,
		currency: currency,
		logger:   opts.Logger,
		now:      now,
	}
}

// Mode reports "live", "mock" or "none" depending on configuration.
func (g *Gateway) Mode() string {
	switch {
	case g.provider != nil:
		return "live"
	case g.mock:
		return "mock"
	default:
		return "none"
	}
}

// Currency returns the currency intents are created in.
func (g *Gateway) Currency() string { return g.currency }

// CreatePaymentIntent validates amountCents and returns a client secret. A
// configured processor always wins over mock mode. Processor calls are made
// exactly once.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, amountCents int64, opts ...IntentOption) (intent Intent, err error) {
	mode := g.Mode()
	ctx, span := otel.Tracer("payment.Gateway").Start(ctx, "Gateway.CreatePaymentIntent")
	defer span.End()

	start := g.now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.mode", mode),
			attribute.Int64("payment.amount", amountCents),
			attribute.String("payment.intent.result", result),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(mode, result).Inc()
		}
	}()

	if amountCents <= 0 {
		result = "invalid"
		return Intent{}, invalidAmount()
	}

	switch mode {
	case "live":
		req := IntentRequest{
			AmountCents:             amountCents,
			Currency:                g.currency,
			AutomaticPaymentMethods: true,
		}
		for _, opt := range opts {
			opt(&req)
		}
		resp, callErr := g.provider.CreateIntent(ctx, req)
		elapsed := obs.DurationMillis(g.now().Sub(start))
		if callErr != nil {
			if obs.PaymentIntentLatency != nil {
				obs.PaymentIntentLatency.WithLabelValues(g.provider.Name(), "error").Observe(elapsed)
			}
			message := processorMessage(callErr)
			g.loggerFor(ctx).Error().Err(callErr).
				Str("provider", g.provider.Name()).
				Int64("amount", amountCents).
				Msg("payment intent creation failed")
			return Intent{}, upstreamFailure(message, callErr)
		}
		if obs.PaymentIntentLatency != nil {
			obs.PaymentIntentLatency.WithLabelValues(g.provider.Name(), "success").Observe(elapsed)
		}
		result = "success"
		return Intent{ClientSecret: resp.ClientSecret}, nil
	case "mock":
		result = "success"
		return Intent{ClientSecret: fmt.Sprintf("pi_mock_secret_%d", g.now().UnixMilli()), Mock: true}, nil
	default:
		result = "not_configured"
		return Intent{}, notConfigured()
	}
}

func processorMessage(err error) string {
	var pe *ProcessorError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

func (g *Gateway) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &g.logger
}
