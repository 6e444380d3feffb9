package security

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles scan and webhook endpoints with a Redis fixed
// window counter, keyed by auth record when present and client IP
// otherwise.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit returns a middleware allowing at most max requests per window for
// the named endpoint group.
func (r *RateLimiter) Limit(group string, max int64, window time.Duration) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := fmt.Sprintf("ratelimit:%s:%s", group, r.identify(e))

		count, err := r.redis.Incr(e.Request.Context(), key).Result()
		if err != nil {
			// Redis being down should not take the API down with it.
			return e.Next()
		}
		if count == 1 {
			r.redis.Expire(e.Request.Context(), key, window)
		}
		if count > max {
			return apis.NewApiError(429, "Too many requests. Please try again later.", nil)
		}

		return e.Next()
	}
}

func (r *RateLimiter) identify(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + clientIP(e)
}

func clientIP(e *core.RequestEvent) string {
	if fwd := e.Request.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(e.Request.RemoteAddr)
	if err != nil {
		return e.Request.RemoteAddr
	}
	return host
}
