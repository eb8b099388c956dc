package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/popup-offer/internal/lock"
)

// IdempotencyHeader carries the caller-chosen key for write requests.
const IdempotencyHeader = "Idempotency-Key"

type idemKeyCtx struct{}

// IdempotencyKey returns the key accepted by Idem.Middleware, if any.
func IdempotencyKey(ctx context.Context) string {
	v, _ := ctx.Value(idemKeyCtx{}).(string)
	return v
}

// Idem rejects concurrent duplicates of the same Idempotency-Key while the
// first request is still in flight. The lock is released once the handler
// returns so a later retry reaches the upstream, which deduplicates on the
// same key.
type Idem struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (i Idem) hashKey(r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.Path + " " + key))
	prefix := i.Prefix
	if prefix == "" {
		prefix = "idem:"
	}
	return prefix + hex.EncodeToString(sum[:])
}

// Middleware enforces the in-flight guard for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(header) > 255 {
			JSONError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key must be at most 255 characters", nil)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), idemKeyCtx{}, header))
		if i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		key := i.hashKey(r, header)
		locker := lock.Locker{R: i.R}
		ran := false
		err := locker.TryWithLock(r.Context(), key, ttl, func(context.Context) error {
			ran = true
			next.ServeHTTP(w, r)
			return nil
		})
		switch {
		case errors.Is(err, lock.ErrLocked):
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "a request with this Idempotency-Key is already in progress", nil)
		case err != nil && !ran:
			// degrade open: the upstream still deduplicates on the forwarded key
			next.ServeHTTP(w, r)
		}
	})
}
