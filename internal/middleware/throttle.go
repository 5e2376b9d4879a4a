package middleware

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"
)

// Throttle enforces a process-wide requests-per-second ceiling ahead of the
// per-route limits. rps <= 0 disables it.
func Throttle(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "server overloaded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
