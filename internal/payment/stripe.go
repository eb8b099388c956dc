package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/popup-offer/internal/resilience"
)

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the API host; empty uses api.stripe.com.
	BaseURL string
	Timeout time.Duration
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// Stripe implements Provider on top of the official Stripe SDK.
type Stripe struct {
	api     *client.API
	breaker *resilience.Breaker
	logger  zerolog.Logger
}

// NewStripe constructs a Stripe provider. The SDK never retries on its own:
// a retried create could charge twice if the idempotency key is absent.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     zerologLeveled{logger: cfg.Logger},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}
	api := &client.API{}
	api.Init(key, backends)

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("stripe")
	}
	return &Stripe{api: api, breaker: breaker, logger: cfg.Logger}, nil
}

// Name identifies the provider in metrics and logs.
func (s *Stripe) Name() string { return "stripe" }

// CreateIntent opens a PaymentIntent. Card declines and other request errors
// reported by Stripe do not count against the breaker.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(currency),
	}
	if req.AutomaticPaymentMethods {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	var pi *stripe.PaymentIntent
	err := s.breaker.Do(ctx, countsAgainstBreaker, func(context.Context) error {
		var err error
		pi, err = s.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return IntentResponse{}, &ProcessorError{Message: "payment processor temporarily unavailable", Err: err}
		}
		return IntentResponse{}, &ProcessorError{Message: stripeMessage(err), Err: err}
	}
	return IntentResponse{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func stripeMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && strings.TrimSpace(se.Msg) != "" {
		return se.Msg
	}
	return err.Error()
}

// countsAgainstBreaker treats 4xx responses from Stripe as caller problems
// rather than processor outages.
func countsAgainstBreaker(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

// zerologLeveled adapts zerolog to the SDK's LeveledLoggerInterface.
type zerologLeveled struct {
	logger zerolog.Logger
}

func (l zerologLeveled) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l zerologLeveled) Infof(format string, v ...interface{}) {
	l.logger.Debug().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l zerologLeveled) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l zerologLeveled) Errorf(format string, v ...interface{}) {
	l.logger.Error().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}
