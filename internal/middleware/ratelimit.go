package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
}

type windowCounter struct {
	client *redis.Client
	cfg    RateLimitConfig
}

// hit counts one request against key and returns the running count and the
// time left in the window.
func (c windowCounter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, c.cfg.Window).Err(); err != nil {
			return count, c.cfg.Window, err
		}
		return count, c.cfg.Window, nil
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// a key left without expiry would block the caller forever
		c.client.Expire(ctx, key, c.cfg.Window)
		ttl = c.cfg.Window
	}
	return count, ttl, nil
}

// clientKey identifies the caller: the authenticated user, else the client IP.
func clientKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware limits each caller to RequestsPerWindow requests per
// fixed window, counted in Redis. Redis failures let the request through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	counter := windowCounter{client: redisClient, cfg: config}
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := clientKey(r)
			key := config.KeyPrefix + ":" + caller

			count, ttl, err := counter.hit(r.Context(), key)
			if err != nil && count == 0 {
				logger.Error("Rate limit counter unavailable", zap.Error(err), zap.String("key", key))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			if count > int64(config.RequestsPerWindow) {
				logger.Warn("Rate limit exceeded",
					zap.String("caller", caller),
					zap.Int64("count", count),
					zap.Int("limit", config.RequestsPerWindow),
				)
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
				h.Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			h.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(config.RequestsPerWindow)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}
