package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// RequireAuth wraps an http.Handler, rejecting requests that carry neither a
// valid bearer JWT nor a valid API key. It mirrors UnaryInterceptor's
// extraction order (bearer first, then API key) for the HTTP surface.
func RequireAuth(service *Service, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service == nil || !service.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if token := bearerToken(r); token != "" {
			user, err := service.ValidateJWT(token)
			if err != nil {
				if logger != nil {
					logger.Warn("jwt validation failed", "error", err)
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		if key := apiKeyHeader(r); key != "" {
			user, err := service.ValidateAPIKey(key)
			if err != nil {
				if logger != nil {
					logger.Warn("api key validation failed", "error", err)
				}
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		http.Error(w, "missing credentials", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) string {
	value := r.Header.Get("Authorization")
	if lower := strings.ToLower(value); strings.HasPrefix(lower, "bearer ") {
		return strings.TrimSpace(value[len("bearer "):])
	}
	return ""
}

func apiKeyHeader(r *http.Request) string {
	for _, key := range []string{"X-Api-Key", "Api-Key"} {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
