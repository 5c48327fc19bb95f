package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Middleware rejects requests without a valid bearer token and stores the
// verified subject in the request context for downstream handlers.
func Middleware(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) || strings.TrimSpace(header[len(bearerPrefix):]) == "" {
				unauthorized(w, ErrMissingToken)
				return
			}

			subject, err := verifier.Verify(strings.TrimSpace(header[len(bearerPrefix):]))
			if err != nil {
				logger.DebugContext(r.Context(), "rejected bearer token", "error", err, "path", r.URL.Path)
				if errors.Is(err, ErrTokenExpired) {
					unauthorized(w, ErrTokenExpired)
					return
				}
				unauthorized(w, ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="laborders"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  "unauthorized",
	})
}
