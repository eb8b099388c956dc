package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// MemoryLimiter is the in-process fallback used when no Redis is configured.
// Counts are per instance and use fixed windows.
type MemoryLimiter struct {
	store limiter.Store
}

// NewMemoryLimiter constructs a MemoryLimiter with its own store.
func NewMemoryLimiter(prefix string) *MemoryLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &MemoryLimiter{store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: time.Minute,
	})}
}

// Allow counts one event for key against rule.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	if m == nil || m.store == nil || !rule.enabled() {
		return rule.open(now), nil
	}
	lim := limiter.New(m.store, limiter.Rate{Period: rule.Window, Limit: int64(rule.Max)})
	// the rule is part of the key so two rules never share a counter
	res, err := lim.Get(ctx, fmt.Sprintf("%d:%d:%s", rule.Window, rule.Max, key))
	if err != nil {
		return Decision{Limit: rule.Max, ResetAt: now.Add(rule.Window)}, fmt.Errorf("ratelimit: memory store: %w", err)
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}
