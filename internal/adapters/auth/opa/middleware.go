package opa

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// ClaimsFunc extracts the verified token claims placed in the context by authentication.
type ClaimsFunc func(ctx context.Context) (map[string]any, bool)

// Middleware for authorization via OPA.
type Middleware struct {
	opaURL string
	claims ClaimsFunc
	logger *slog.Logger
	client *http.Client
}

// NewMiddleware creates a new OPA middleware.
func NewMiddleware(opaURL string, claims ClaimsFunc, logger *slog.Logger) *Middleware {
	return &Middleware{
		opaURL: opaURL,
		claims: claims,
		logger: logger,
		client: &http.Client{Timeout: 500 * time.Millisecond},
	}
}

// Input - structure for querying OPA.
type Input struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	User   map[string]any `json:"user"`
}

// Response - structure for response from OPA.
type Response struct {
	Result struct {
		Allow bool `json:"allow"`
	} `json:"result"`
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Authorize is an HTTP middleware that asks OPA whether the caller may perform the request.
// OPA being unreachable denies the request.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.claims(r.Context())
		if !ok {
			m.logger.Error("claims not found in context; authentication must run before OPA")
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		inputBytes, err := json.Marshal(map[string]any{"input": Input{
			Method: r.Method,
			Path:   r.URL.Path,
			User:   claims,
		}})
		if err != nil {
			m.logger.Error("failed to encode OPA input", "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// The URL typically looks like http://opa:8181/v1/data/ledger/authz
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, m.opaURL, bytes.NewReader(inputBytes))
		if err != nil {
			m.logger.Error("failed to create OPA request", "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			m.logger.Error("error accessing OPA", "error", err)
			writeError(w, "Authorization service unavailable", http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			m.logger.Error("OPA returned an error status", "status", resp.StatusCode)
			writeError(w, "Authorization service unavailable", http.StatusServiceUnavailable)
			return
		}

		var opaResp Response
		if err := json.NewDecoder(resp.Body).Decode(&opaResp); err != nil {
			m.logger.Error("unable to decode response from OPA", "error", err)
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !opaResp.Result.Allow {
			writeError(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
