package popup

import (
	"strings"
	"time"
)

const (
	// DefaultCookieName is the suppression cookie key used when none is configured.
	DefaultCookieName = "popupShown"
	// DefaultCookieDurationDays is how long a dismissal suppresses the automatic popup.
	DefaultCookieDurationDays = 7
	// DefaultDelay is the host's auto-show wait after mount.
	DefaultDelay = 2 * time.Second
)

// Config controls suppression and auto-show timing for the popup.
type Config struct {
	CookieName         string        `json:"cookieName"`
	CookieDurationDays int           `json:"cookieDurationDays"`
	Delay              time.Duration `json:"-"`
	CookiesEnabled     bool          `json:"cookiesEnabled"`
}

// ConfigPatch carries a partial config update. Nil fields keep their current value.
type ConfigPatch struct {
	CookieName         *string
	CookieDurationDays *int
	Delay              *time.Duration
	CookiesEnabled     *bool
}

// DefaultConfig returns a fully populated config.
func DefaultConfig() Config {
	return Config{
		CookieName:         DefaultCookieName,
		CookieDurationDays: DefaultCookieDurationDays,
		Delay:              DefaultDelay,
		CookiesEnabled:     true,
	}
}

// DelayMillis reports the auto-show delay in milliseconds, the unit the browser timer uses.
func (c Config) DelayMillis() int64 {
	return c.Delay.Milliseconds()
}

// Merge overlays the supplied patch fields. Blank names and negative values
// are ignored so the result is always fully populated.
func (c Config) Merge(p ConfigPatch) Config {
	if p.CookieName != nil {
		if name := strings.TrimSpace(*p.CookieName); name != "" {
			c.CookieName = name
		}
	}
	if p.CookieDurationDays != nil && *p.CookieDurationDays >= 0 {
		c.CookieDurationDays = *p.CookieDurationDays
	}
	if p.Delay != nil && *p.Delay >= 0 {
		c.Delay = *p.Delay
	}
	if p.CookiesEnabled != nil {
		c.CookiesEnabled = *p.CookiesEnabled
	}
	return c
}

// Patch returns a patch that sets every field to c's value.
func (c Config) Patch() ConfigPatch {
	return ConfigPatch{
		CookieName:         &c.CookieName,
		CookieDurationDays: &c.CookieDurationDays,
		Delay:              &c.Delay,
		CookiesEnabled:     &c.CookiesEnabled,
	}
}
