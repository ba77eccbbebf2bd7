package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements distributed fixed-window rate limiting using Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisRateLimiter creates a limiter namespaced under the given prefix.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "subtrack:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		logger: logger,
	}
}

// Middleware limits each authenticated owner to `limit` requests per window
// on the wrapped routes. A nil limiter or missing Redis lets requests through;
// the limiter fails open on Redis errors.
func (rl *RedisRateLimiter) Middleware(scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || rl.client == nil || limit <= 0 || window <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			subject, ok := OwnerFromContext(r.Context())
			if !ok || subject == "" {
				subject = r.RemoteAddr
			}

			windowMs := window.Milliseconds()
			if windowMs < 1000 {
				windowMs = 1000
			}

			key := fmt.Sprintf("%s:%s:%s", rl.prefix, scope, subject)
			rawResult, err := rateLimitScript.Run(r.Context(), rl.client, []string{key}, windowMs).Result()
			if err != nil {
				rl.logger.Error("rate limiter unavailable, allowing request", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			values, ok := rawResult.([]interface{})
			if !ok || len(values) != 2 {
				rl.logger.Error("unexpected rate limiter response shape", "scope", scope)
				next.ServeHTTP(w, r)
				return
			}
			count, _ := values[0].(int64)
			ttlMs, _ := values[1].(int64)
			if ttlMs < 0 {
				ttlMs = windowMs
			}

			if count > int64(limit) {
				retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
