package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	RetryIn   time.Duration
}

// fixedWindowScript counts hits in the current window and starts the window
// on the first hit. Returns {count, pttl}.
var fixedWindowScript = goredis.NewScript(`
	local count = redis.call("incr", KEYS[1])
	if count == 1 then
		redis.call("pexpire", KEYS[1], ARGV[1])
	end
	local ttl = redis.call("pttl", KEYS[1])
	if ttl < 0 then
		redis.call("pexpire", KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {count, ttl}
`)

// RateLimiter is a fixed-window counter per key
type RateLimiter struct {
	client    *Client
	keyPrefix string
	limit     int64
	window    time.Duration
}

func NewRateLimiter(client *Client, keyPrefix string, limit int64, window time.Duration) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "clover:ratelimit:"
	}
	return &RateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// Allow records one hit for key and reports whether it fits in the window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	result, err := fixedWindowScript.Run(ctx, r.client.rdb, []string{r.keyPrefix + key}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, err
	}

	count, ttl := result[0], result[1]
	res := &RateLimitResult{
		Allowed:   count <= r.limit,
		Remaining: max(r.limit-count, 0),
	}
	if !res.Allowed {
		res.RetryIn = time.Duration(ttl) * time.Millisecond
		r.client.logger.WithContext(ctx).WithFields(map[string]any{
			"key":      key,
			"count":    count,
			"retry_in": res.RetryIn.String(),
		}).Warn("Rate limit exceeded")
	}
	return res, nil
}

// Reset clears the window for key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.rdb.Del(ctx, r.keyPrefix+key).Err()
}
