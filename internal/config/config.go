package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/popup-offer/internal/popup"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string
	RedisURL           string

	Stripe    StripeConfig
	Popup     PopupConfig
	Offer     OfferConfig
	RateLimit RateLimitConfig
	Obs       ObsConfig

	IdempotencyTTL  time.Duration
	BodyLimitBytes  int64
	SecurityHeaders bool
	CookieDomain    string
	CookieSecure    bool
	CookieSameSite  http.SameSite
}

// StripeConfig holds processor credentials and client tuning.
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	Mock           bool
	APIBaseURL     string
	Timeout        time.Duration
	// SecretResource names a Secret Manager version holding the secret key.
	SecretResource string
}

// PopupConfig holds the popup behaviour settings.
type PopupConfig struct {
	CookieName     string
	CookieDays     int
	Delay          time.Duration
	CookiesEnabled bool
}

// OfferConfig holds the offer copy shown in the popup.
type OfferConfig struct {
	Title       string
	Description string
	Price       string
	Discount    string
	ImageURL    string
	AmountCents int64
}

// RateLimitConfig bounds payment intent creation per client.
type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

// ObsConfig controls logging, metrics and tracing.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	ServiceName      string
	ServiceVersion   string
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
}

// SecretFetcher resolves a secret resource name to its payload.
type SecretFetcher func(ctx context.Context, resource string) (string, error)

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	return LoadWith(context.Background(), FetchSecret, zerolog.Nop())
}

// LoadWith is Load with an explicit secret fetcher and a logger for warnings.
func LoadWith(ctx context.Context, fetch SecretFetcher, logger zerolog.Logger) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	offer := popup.DefaultContent()
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "3001"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		Stripe: StripeConfig{
			SecretKey:      strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
			PublishableKey: strings.TrimSpace(valueOrDefault(k.String("STRIPE_PUBLISHABLE_KEY"), k.String("VITE_STRIPE_PUBLIC_KEY"))),
			Mock:           parseBool(k.String("STRIPE_MOCK")),
			APIBaseURL:     strings.TrimSpace(k.String("STRIPE_API_BASE_URL")),
			Timeout:        parseDuration(k.String("STRIPE_TIMEOUT"), "10s"),
			SecretResource: strings.TrimSpace(k.String("STRIPE_SECRET_RESOURCE")),
		},
		Popup: PopupConfig{
			CookieName:     valueOrDefault(k.String("POPUP_COOKIE_NAME"), popup.DefaultCookieName),
			CookieDays:     parseInt(k.String("POPUP_COOKIE_DAYS"), popup.DefaultCookieDurationDays),
			Delay:          parseDuration(k.String("POPUP_DELAY"), popup.DefaultDelay.String()),
			CookiesEnabled: parseBoolDefault(k.String("POPUP_COOKIES_ENABLED"), true),
		},
		Offer: OfferConfig{
			Title:       valueOrDefault(k.String("OFFER_TITLE"), offer.Title),
			Description: valueOrDefault(k.String("OFFER_DESCRIPTION"), offer.Description),
			Price:       valueOrDefault(k.String("OFFER_PRICE"), offer.PriceDisplay),
			Discount:    valueOrDefault(k.String("OFFER_DISCOUNT"), offer.DiscountDisplay),
			ImageURL:    valueOrDefault(k.String("OFFER_IMAGE_URL"), offer.ImageURL),
			AmountCents: int64(parseInt(k.String("OFFER_AMOUNT_CENTS"), int(offer.AmountCents))),
		},
		RateLimit: RateLimitConfig{
			Window: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
			Max:    parseInt(k.String("RATE_LIMIT_MAX"), 10),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "popup"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "popup-offer"),
			ServiceVersion:   k.String("OBS_SERVICE_VERSION"),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "1m"),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 16<<10)),
		SecurityHeaders: parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		CookieDomain:    strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:    parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:  parseSameSite(k.String("COOKIE_SAMESITE")),
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.Stripe.SecretKey == "" && cfg.Stripe.SecretResource != "" && fetch != nil {
		secret, err := fetch(ctx, cfg.Stripe.SecretResource)
		if err != nil {
			return nil, fmt.Errorf("stripe secret: %w", err)
		}
		cfg.Stripe.SecretKey = strings.TrimSpace(secret)
	}

	if cfg.Stripe.SecretKey == "" && !cfg.Stripe.Mock {
		logger.Warn().Msg("STRIPE_SECRET_KEY is not set and STRIPE_MOCK is off; payment intents will fail")
	}
	if cfg.Stripe.PublishableKey == "" {
		logger.Warn().Msg("STRIPE_PUBLISHABLE_KEY is not set; the payment form cannot load Stripe.js")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "3001"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		// bare integers are milliseconds
		if ms, convErr := strconv.Atoi(base); convErr == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	return LoadForTestsWith(env, nil)
}

// LoadForTestsWith is LoadForTests with a stubbed secret fetcher.
func LoadForTestsWith(env map[string]string, fetch SecretFetcher) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := LoadWith(context.Background(), fetch, zerolog.Nop())
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
