package http

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"loyalty-points-system/internal/core/ports"
)

// RateLimiterMiddleware limits requests per caller: per account once authenticated, per
// client IP otherwise.
type RateLimiterMiddleware struct {
	repo   ports.RateLimiterRepository
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiterMiddleware(repo ports.RateLimiterRepository, limit int, window time.Duration, logger *slog.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		repo:   repo,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

func (m *RateLimiterMiddleware) key(r *http.Request) (string, bool) {
	if actor, ok := ActorFromContext(r.Context()); ok {
		return "account:" + strconv.FormatInt(actor.AccountID, 10), true
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP may leave a bare address behind.
		if net.ParseIP(r.RemoteAddr) == nil {
			return "", false
		}
		ip = r.RemoteAddr
	}
	return "ip:" + ip, true
}

// Handler is the middleware function itself.
func (m *RateLimiterMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := m.key(r)
		if !ok {
			m.logger.Error("could not identify client for rate limiting", "remote_addr", r.RemoteAddr)
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := m.repo.IsAllowed(r.Context(), key, m.limit, m.window)
		if err != nil {
			// Fail open: a broken limiter must not take the ledger down with it.
			m.logger.Error("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(m.window.Seconds())))
			writeJSONError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
