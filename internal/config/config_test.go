package config_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/popup-offer/internal/config"
	"github.com/noah-isme/popup-offer/internal/popup"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STRIPE_SECRET_KEY":      "",
		"STRIPE_PUBLISHABLE_KEY": "",
		"VITE_STRIPE_PUBLIC_KEY": "",
		"STRIPE_MOCK":            "",
		"POPUP_COOKIE_NAME":      "",
		"POPUP_COOKIE_DAYS":      "",
		"POPUP_DELAY":            "",
		"POPUP_COOKIES_ENABLED":  "",
		"COOKIE_SAMESITE":        "",
		"OFFER_AMOUNT_CENTS":     "",
		"OFFER_TITLE":            "",
		"OFFER_DESCRIPTION":      "",
		"OFFER_PRICE":            "",
		"OFFER_DISCOUNT":         "",
		"OFFER_IMAGE_URL":        "",
		"PORT":                   "",
	})
	require.NoError(t, err)
	require.Equal(t, ":3001", cfg.HTTPAddr())
	require.Equal(t, "popupShown", cfg.Popup.CookieName)
	require.Equal(t, 7, cfg.Popup.CookieDays)
	require.Equal(t, 2*time.Second, cfg.Popup.Delay)
	require.True(t, cfg.Popup.CookiesEnabled)
	require.Equal(t, int64(10000), cfg.Offer.AmountCents)
	defaults := popup.DefaultContent()
	require.Equal(t, defaults.Title, cfg.Offer.Title)
	require.Equal(t, defaults.Description, cfg.Offer.Description)
	require.Equal(t, defaults.PriceDisplay, cfg.Offer.Price)
	require.Equal(t, defaults.DiscountDisplay, cfg.Offer.Discount)
	require.Equal(t, defaults.ImageURL, cfg.Offer.ImageURL)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.False(t, cfg.Stripe.Mock)
	require.Empty(t, cfg.Stripe.SecretKey)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STRIPE_SECRET_KEY":      "sk_test_123",
		"STRIPE_PUBLISHABLE_KEY": "",
		"VITE_STRIPE_PUBLIC_KEY": "pk_test_legacy",
		"STRIPE_MOCK":            "true",
		"POPUP_DELAY":            "5000",
		"POPUP_COOKIES_ENABLED":  "false",
		"COOKIE_SAMESITE":        "none",
		"CORS_ALLOWED_ORIGINS":   "https://a.example, https://b.example",
		"PORT":                   ":9000",
	})
	require.NoError(t, err)
	require.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	require.Equal(t, "pk_test_legacy", cfg.Stripe.PublishableKey)
	require.True(t, cfg.Stripe.Mock)
	require.Equal(t, 5*time.Second, cfg.Popup.Delay)
	require.False(t, cfg.Popup.CookiesEnabled)
	require.Equal(t, http.SameSiteNoneMode, cfg.CookieSameSite)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, ":9000", cfg.HTTPAddr())
}

func TestLoadSecretFromResource(t *testing.T) {
	var asked string
	fetch := func(_ context.Context, resource string) (string, error) {
		asked = resource
		return "sk_live_from_manager\n", nil
	}
	cfg, err := config.LoadForTestsWith(map[string]string{
		"STRIPE_SECRET_KEY":      "",
		"STRIPE_SECRET_RESOURCE": "projects/p/secrets/stripe",
	}, fetch)
	require.NoError(t, err)
	require.Equal(t, "projects/p/secrets/stripe", asked)
	require.Equal(t, "sk_live_from_manager", cfg.Stripe.SecretKey)
}

func TestLoadSecretEnvWinsOverResource(t *testing.T) {
	fetch := func(context.Context, string) (string, error) {
		t.Fatal("fetch should not be called when the key is set")
		return "", nil
	}
	cfg, err := config.LoadForTestsWith(map[string]string{
		"STRIPE_SECRET_KEY":      "sk_test_env",
		"STRIPE_SECRET_RESOURCE": "projects/p/secrets/stripe",
	}, fetch)
	require.NoError(t, err)
	require.Equal(t, "sk_test_env", cfg.Stripe.SecretKey)
}

func TestLoadSecretFetchError(t *testing.T) {
	fetch := func(context.Context, string) (string, error) { return "", errors.New("permission denied") }
	_, err := config.LoadForTestsWith(map[string]string{
		"STRIPE_SECRET_KEY":      "",
		"STRIPE_SECRET_RESOURCE": "projects/p/secrets/stripe",
	}, fetch)
	require.ErrorContains(t, err, "permission denied")
}

func TestSecretVersionName(t *testing.T) {
	require.Equal(t, "projects/p/secrets/s/versions/latest", config.SecretVersionName("projects/p/secrets/s"))
	require.Equal(t, "projects/p/secrets/s/versions/3", config.SecretVersionName(" projects/p/secrets/s/versions/3 "))
	require.Empty(t, config.SecretVersionName("  "))
}
