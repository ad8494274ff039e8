// internal/adapters/in/http/middleware/rate_limit.go
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Limiter is satisfied by *ratelimiter.KeyedLimiter.
type Limiter interface {
	Allow(key string, now time.Time) (bool, time.Duration)
}

// RateLimitByWallet throttles requests per authenticated wallet. Requests without a wallet pass through.
// Must run inside WalletAuthMiddleware.
func RateLimitByWallet(l Limiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			wallet, ok := CurrentWalletAddress(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, retry := l.Allow(wallet, time.Now())
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if onLimited != nil {
				onLimited()
			}
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"errorKind":"RateLimited"}`))
		})
	}
}
