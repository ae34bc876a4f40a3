// Package ratelimit throttles per-client request volume on mutating
// endpoints. Counters live in Redis with a TTL window, so the limit
// holds across instances instead of in a per-process map.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/utils"
)

type Limiter struct {
	Client      *redis.Client
	Logger      *logger.Logger
	MaxRequests int
	Window      time.Duration
}

func NewLimiter(client *redis.Client, log *logger.Logger, maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		Client:      client,
		Logger:      log,
		MaxRequests: maxRequests,
		Window:      window,
	}
}

// Middleware enforces a fixed window per keyPrefix and client IP.
// Redis being unreachable fails open: rate limiting is a perimeter
// concern and must not take the purchase flow down with it.
func (l *Limiter) Middleware(keyPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, clientIP(r))
			ctx := r.Context()

			count, err := l.Client.Incr(ctx, key).Result()
			if err != nil {
				l.Logger.Warn("RATELIMIT", fmt.Sprintf("Redis error, failing open: %v", err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				l.Client.Expire(ctx, key, l.Window)
			}

			if count > int64(l.MaxRequests) {
				retryAfter := int64(l.Window.Seconds())
				if ttl, err := l.Client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
					retryAfter = int64(ttl.Seconds())
				}
				if retryAfter < 1 {
					retryAfter = 1
				}

				l.Logger.Warn("RATELIMIT", fmt.Sprintf("Throttled %s (%d requests)", key, count))
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(utils.ErrorResponse("Too many requests", "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	if host == "" {
		return "unknown"
	}
	return host
}
