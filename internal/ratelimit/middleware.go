package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/popup-offer/internal/common"
)

// Rule is a limit of Max events per Window. A zero rule disables limiting.
type Rule struct {
	Window time.Duration
	Max    int
}

func (r Rule) enabled() bool { return r.Window > 0 && r.Max > 0 }

func (r Rule) open(now time.Time) Decision {
	return Decision{Allowed: true, Limit: r.Max, Remaining: r.Max, ResetAt: now.Add(r.Window)}
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allower decides whether one more event for key fits rule.
type Allower interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Handler enforces Rule per Key before delegating to the next handler.
type Handler struct {
	Limiter Allower
	Key     func(*http.Request) string
	Rule    Rule
	OnError func(error)
}

// Middleware rejects requests over the limit with 429. Limiter failures let
// the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Key == nil || h.Limiter == nil || !h.Rule.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), h.Key(r), h.Rule)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(time.Until(d.ResetAt).Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many payment attempts. Please wait a moment and try again.", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP keys requests by remote address. chi's RealIP middleware has
// already applied X-Forwarded-For / X-Real-IP when it runs first.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
