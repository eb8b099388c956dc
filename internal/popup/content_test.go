package popup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/popup-offer/internal/popup"
)

func TestDefaultContentValid(t *testing.T) {
	require.NoError(t, popup.DefaultContent().Validate())
}

func TestContentValidateRejects(t *testing.T) {
	cases := map[string]popup.Content{
		"missing title": {Description: "d", PriceDisplay: "$1", AmountCents: 100},
		"zero amount":   {Title: "t", Description: "d", PriceDisplay: "$1"},
		"bad image url": {Title: "t", Description: "d", PriceDisplay: "$1", AmountCents: 100, ImageURL: "not a url"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, c.Validate())
		})
	}
}

func TestConfigMergeIgnoresInvalid(t *testing.T) {
	base := popup.DefaultConfig()
	blank := "  "
	days := -1
	delay := -time.Second

	merged := base.Merge(popup.ConfigPatch{CookieName: &blank, CookieDurationDays: &days, Delay: &delay})
	require.Equal(t, base, merged)

	zero := 0
	merged = base.Merge(popup.ConfigPatch{CookieDurationDays: &zero})
	require.Equal(t, 0, merged.CookieDurationDays)
}
