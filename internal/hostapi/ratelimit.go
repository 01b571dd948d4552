package hostapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter limits requests per user using Redis INCR + EXPIRE, a
// fixed-window counter keyed by any scope string.
type RateLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// NewRateLimiter creates a rate limiter allowing max requests per window
// for a given scope key.
func NewRateLimiter(rdb *redis.Client, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, max: max, window: window}
}

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Check increments the counter for scope and reports whether the request
// is allowed under the configured window.
func (rl *RateLimiter) Check(ctx context.Context, scope string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s", scope)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.window).Err(); err != nil {
			return nil, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	if int(count) > rl.max {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("getting rate limit ttl: %w", err)
		}
		return &RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}

	return &RateLimitResult{Allowed: true, Remaining: rl.max - int(count)}, nil
}

// PerUserMiddleware rejects requests beyond the configured per-user rate
// once identity has been resolved by Middleware.
func PerUserMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := IdentityFromContext(r.Context())
			scope := "anonymous"
			if ok {
				scope = userID.String()
			}

			result, err := rl.Check(r.Context(), scope)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "rate limit check failed")
				return
			}
			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", result.RetryAfter.Seconds()))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
