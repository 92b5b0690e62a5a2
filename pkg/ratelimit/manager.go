package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/wooconduit/conduit/pkg/redis"
	"github.com/wooconduit/conduit/pkg/tracing"
)

// Manager throttles outbound requests per WooCommerce server. Every server
// shares one sliding window bucket so a large sync run cannot starve the
// store's own shoppers.
type Manager struct {
	limiter *redis.RateLimiter
	logger  ectologger.Logger

	requestsPerMinute int64
}

// NewManager creates a new per-server request throttle
func NewManager(redisClient *redis.Client, requestsPerMinute int, logger ectologger.Logger) *Manager {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 300
	}
	return &Manager{
		limiter:           redis.NewRateLimiter(redisClient, "conduit:ratelimit:"),
		logger:            logger,
		requestsPerMinute: int64(requestsPerMinute),
	}
}

// Check reports whether one more request to the server is allowed right now.
func (m *Manager) Check(ctx context.Context, serverID string) (*redis.RateLimitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "RateLimitManager.Check")
	defer span.End()

	return m.limiter.Allow(ctx, serverID, m.requestsPerMinute, time.Minute)
}

// Wait blocks until the server's bucket allows a request or maxWait elapses.
func (m *Manager) Wait(ctx context.Context, serverID string, maxWait time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "RateLimitManager.Wait")
	defer span.End()

	deadline := time.Now().Add(maxWait)

	for {
		result, err := m.Check(ctx, serverID)
		if err != nil {
			// Fail open. The remote's own 429 handling is the backstop.
			m.logger.WithContext(ctx).WithError(err).Warnf("Rate limit check failed for server %s", serverID)
			return nil
		}

		if result.Allowed {
			return nil
		}

		retryIn := result.RetryIn
		if retryIn <= 0 {
			retryIn = 100 * time.Millisecond
		}

		if time.Now().Add(retryIn).After(deadline) {
			return fmt.Errorf("rate limit for server %s would exceed max wait of %v", serverID, maxWait)
		}

		m.logger.WithContext(ctx).Debugf("Rate limited for server %s, waiting %v", serverID, retryIn)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryIn):
		}
	}
}

// HandleRetryAfter blocks the server's bucket for the duration a 429 response
// asked for. Subsequent Wait calls sleep until the block expires.
func (m *Manager) HandleRetryAfter(ctx context.Context, serverID string, headerValue string) {
	d, err := ParseRetryAfter(headerValue)
	if err != nil || d <= 0 {
		return
	}
	if err := m.limiter.BlockFor(ctx, serverID, d); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warnf("Failed to record Retry-After block for server %s", serverID)
		return
	}
	m.logger.WithContext(ctx).Infof("Server %s asked to back off for %v", serverID, d)
}

// ParseRetryAfter parses a Retry-After header value
// Returns the duration to wait before retrying
func ParseRetryAfter(value string) (time.Duration, error) {
	// Try parsing as seconds
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	// Try parsing as HTTP date (RFC 1123)
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		return time.Until(t), nil
	}

	return 0, fmt.Errorf("invalid Retry-After value: %s", value)
}
