package routes

import (
	"net/http"
	"strings"

	"mediaforge/logger"
	"mediaforge/tokens"
)

// requireToken rejects requests without a bearer token valid under cfg.
// A config without keys disables the check.
func requireToken(cfg tokens.VerifyConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.SecretKey == nil && cfg.PublicKey == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mediaforge"`)
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.Verify(strings.TrimSpace(raw), cfg)
			if err != nil {
				logger.Warnf("Rejected token from %s: %v", r.RemoteAddr, err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="mediaforge", error="invalid_token"`)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			logger.Debugf("Authorized %s %s for subject %s", r.Method, r.URL.Path, claims.Subject)
			next.ServeHTTP(w, r)
		})
	}
}
