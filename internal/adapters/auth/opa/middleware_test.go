package opa

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func claimsFrom(ctx context.Context) (map[string]any, bool) {
	c, ok := ctx.Value(ctxKey{}).(map[string]any)
	return c, ok
}

func withClaims(r *http.Request, claims map[string]any) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims))
}

func opaServer(t *testing.T, allow func(Input) bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input Input `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"allow": allow(body.Input)}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthorize(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	srv := opaServer(t, func(in Input) bool {
		return in.User["role"] == "manager" && in.Method == http.MethodPatch
	})
	handler := NewMiddleware(srv.URL, claimsFrom, logger).Authorize(ok)

	tests := []struct {
		name   string
		method string
		claims map[string]any
		want   int
	}{
		{"allowed", http.MethodPatch, map[string]any{"sub": "1", "role": "manager"}, http.StatusNoContent},
		{"denied role", http.MethodPatch, map[string]any{"sub": "1", "role": "regular"}, http.StatusForbidden},
		{"denied method", http.MethodPost, map[string]any{"sub": "1", "role": "manager"}, http.StatusForbidden},
		{"no claims", http.MethodPatch, nil, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/transactions/1/suspicious", nil)
			if tt.claims != nil {
				req = withClaims(req, tt.claims)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthorize_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	handler := NewMiddleware(srv.URL, claimsFrom, slog.New(slog.NewTextHandler(io.Discard, nil))).
		Authorize(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodGet, "/", nil), map[string]any{"sub": "1"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
