package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// bearerToken pulls the raw token out of the Authorization header.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Invalid Authorization header format"
	}
	return parts[1], ""
}

// JWTMiddleware verifies an HS256 token and stores its claims and the resolved actor in the
// request context.
func JWTMiddleware(jwtSecret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, problem := bearerToken(r)
			if problem != "" {
				writeJSONError(w, problem, http.StatusUnauthorized)
				return
			}

			// Only HS256 is accepted.
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, errors.New("unexpected signing method")
				}
				return jwtSecret, nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				logger.Warn("JWT validation failed", "error", err)
				writeJSONError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				logger.Warn("failed to cast token claims")
				writeJSONError(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx, err := withIdentity(r.Context(), map[string]any(claims))
			if err != nil {
				logger.Warn("token does not identify an account", "error", err)
				writeJSONError(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
