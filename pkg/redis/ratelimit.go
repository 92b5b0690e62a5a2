package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitResult describes the outcome of one slot request.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	RetryIn   time.Duration
}

// allowScript is a sliding window over a sorted set of request timestamps.
// It trims entries older than the window, admits the request if the bucket
// has room, and otherwise returns the oldest timestamp so the caller can
// compute when a slot frees up. Runs as one script so concurrent workers
// hitting the same store cannot both take the last slot.
var allowScript = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call("zremrangebyscore", key, "-inf", window_start)
	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, now .. "-" .. math.random())
		redis.call("pexpire", key, window_ms)
		return {1, limit - current - 1}
	end

	local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
	if #oldest > 0 then
		return {0, 0, oldest[2]}
	end
	return {0, 0, 0}
`)

// RateLimiter is a Redis-backed sliding window limiter. Buckets are shared
// across workers, so the per-store request budget holds no matter how many
// conduit processes are running.
type RateLimiter struct {
	client *Client
	prefix string
}

// NewRateLimiter creates a RateLimiter whose keys are namespaced by prefix.
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RateLimiter{client: client, prefix: prefix}
}

// Allow requests one slot from the key's bucket.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()

	// A Retry-After block overrides the bucket entirely.
	if blocked, ttl, err := r.IsBlocked(ctx, key); err == nil && blocked {
		return &RateLimitResult{ResetAt: now.Add(ttl), RetryIn: ttl}, nil
	}

	raw, err := allowScript.Run(ctx, r.client.rdb, []string{r.prefix + key},
		now.UnixMilli(),
		now.Add(-window).UnixMilli(),
		limit,
		window.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}

	allowed, err := luaInt(raw[0])
	if err != nil {
		return nil, err
	}
	remaining, err := luaInt(raw[1])
	if err != nil {
		return nil, err
	}

	result := &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}

	if !result.Allowed && len(raw) > 2 {
		oldestMs, err := luaInt(raw[2])
		if err != nil {
			return nil, err
		}
		if oldestMs > 0 {
			result.RetryIn = time.UnixMilli(oldestMs).Add(window).Sub(now)
		}
	}

	return result, nil
}

// BlockFor closes the key's bucket for the given duration. Used when the
// remote sends 429 with Retry-After and its word beats our own accounting.
func (r *RateLimiter) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.blockKey(key), "1", d)
}

// IsBlocked reports whether the key is under a Retry-After block and for
// how much longer.
func (r *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	exists, err := r.client.Exists(ctx, r.blockKey(key))
	if err != nil || !exists {
		return false, 0, err
	}

	ttl, err := r.client.TTL(ctx, r.blockKey(key))
	if err != nil {
		return true, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return true, ttl, nil
}

func (r *RateLimiter) blockKey(key string) string {
	return r.prefix + key + ":block"
}

// luaInt copes with the numeric types redis Lua scripts hand back, which
// vary between int64 and strings depending on the command that produced
// the value.
func luaInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, err
			}
			return int64(f), nil
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
