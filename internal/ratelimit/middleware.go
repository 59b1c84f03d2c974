package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
)

// Middleware rejects requests with 429 once the bucket chosen by key is
// empty. onReject is called for every rejected request.
//
// Rate-limit headers are set on every response:
//
//	X-RateLimit-Limit     maximum requests allowed in the window
//	X-RateLimit-Remaining tokens left for this key
//
// Rejections also carry Retry-After in whole seconds.
func Middleware(limiter *Limiter, key func(*http.Request) string, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			allowed := limiter.Allow(k)
			limit, remaining, retryAt := limiter.Status(k)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				for _, fn := range onReject {
					fn()
				}
				wait := math.Ceil(retryAt.Sub(limiter.now()).Seconds())
				if wait < 1 {
					wait = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(wait)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Too many attempts. Try again later.",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
