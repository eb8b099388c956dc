package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired events, then records the new one only
// when the window still has room. Rejected attempts are not stored so a
// client that keeps retrying is released once its accepted events age out.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max, ARGV[4] member
// Returns {allowed, count, oldest score}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < max then
	redis.call("ZADD", key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call("PEXPIRE", key, window)
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local first = now
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// RedisLimiter is a sliding window limiter shared by every API instance.
type RedisLimiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow records one event for key when rule still permits it.
func (l RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || !rule.enabled() {
		return rule.open(now), nil
	}

	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d:%s", nowMs, uuid.NewString())
	raw, err := slidingWindowScript.Run(ctx, l.Client, []string{l.Prefix + key},
		nowMs, rule.Window.Milliseconds(), rule.Max, member).Int64Slice()
	if err != nil {
		return Decision{Limit: rule.Max, ResetAt: now.Add(rule.Window)}, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	if len(raw) != 3 {
		return Decision{Limit: rule.Max, ResetAt: now.Add(rule.Window)}, fmt.Errorf("ratelimit: unexpected script reply %v", raw)
	}

	remaining := rule.Max - int(raw[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   raw[0] == 1,
		Limit:     rule.Max,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(raw[2]).Add(rule.Window),
	}, nil
}
