package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/clipcutter/internal/api/response"
	"github.com/kiranshivaraju/clipcutter/internal/cache"
)

const rateWindow = 60 * time.Second

// RateLimit is a fixed one-minute window counter kept in the cache.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
}

// NewRateLimit creates the middleware. requestsPerMin <= 0 disables limiting.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// Limit counts requests per API key prefix, or per client IP when auth is off.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.requestsPerMin <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := cache.RateLimitKey(identity(r))
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rateWindow)
		if err != nil {
			// Fail open: a cache outage must not take the API down.
			slog.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		resetTime := time.Now().Add(rateWindow).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func identity(r *http.Request) string {
	if prefix, ok := GetKeyPrefix(r); ok {
		return "key:" + prefix
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
