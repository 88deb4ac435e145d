package httpserver

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
)

// RateLimit is a fixed-window per-client limiter backed by Redis, so
// the count is shared across every replica behind the load balancer.
// The window key is (scope, client IP, current minute); the first hit
// in a window sets the expiry, and a Redis outage fails open so a cache
// blip never takes the API down with it.
func RateLimit(rdb *redis.Client, logger *slog.Logger, scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, ip, time.Now().Unix()/60)

			count, err := rdb.Incr(r.Context(), key).Result()
			if err != nil {
				logger.Warn("rate limiter unavailable, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				rdb.Expire(r.Context(), key, time.Minute)
			}
			if count > int64(perMinute) {
				retryAfter := 60 - int(time.Now().Unix()%60)
				RespondAPIError(w, r, logger, apierrors.RateLimited("rate limit exceeded", retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
