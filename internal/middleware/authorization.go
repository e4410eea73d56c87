package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// APIKeyHeader carries the key for machine endpoints such as backup.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey admits requests whose X-API-Key matches apiKey. An empty
// apiKey disables the guarded endpoints.
func RequireAPIKey(apiKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				logger.Warn("API key endpoint called but no key is configured", zap.String("path", r.URL.Path))
				RespondWithError(w, http.StatusForbidden, "endpoint disabled")
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				RespondWithError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.Warn("Invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				RespondWithError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
