package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/runlet-dev/runlet/internal/app/services/ratelimit"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// adminScope keys failed-attempt counting in the shared limiter.
const adminScope = "admin-auth"

// AdminAuth guards the management API with a static token. Failed
// presentations are counted per client IP; past the attempt budget the
// client gets 429s until the window expires. A correct token clears the
// counter. An empty token disables the guard.
func AdminAuth(token string, limiter ratelimit.Limiter, attempts int, windowSeconds int, log *logger.Logger) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientHost(r)

			decision, err := limiter.Check(r.Context(), ip, adminScope, attempts, windowSeconds)
			if err != nil {
				log.WithError(err).Warn("admin auth limiter check")
			} else if !decision.Allowed {
				writeAuthError(w, http.StatusTooManyRequests, "too many failed attempts")
				return
			}

			presented := adminToken(r)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				log.WithField("ip", ip).Warn("admin auth rejected")
				writeAuthError(w, http.StatusUnauthorized, "invalid admin token")
				return
			}

			if err := limiter.Reset(r.Context(), ip, adminScope); err != nil {
				log.WithError(err).Warn("admin auth limiter reset")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminToken pulls the token from Authorization: Bearer or X-Admin-Token.
func adminToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Token"))
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
