package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator stores the token verifier.
type OIDCAuthenticator struct {
	Verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator connects to the OIDC provider (Keycloak) and creates an authenticator.
func NewOIDCAuthenticator(ctx context.Context, providerURL, clientID string) (*OIDCAuthenticator, error) {
	if providerURL == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC URL and ClientID cannot be empty")
	}

	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &OIDCAuthenticator{Verifier: verifier}, nil
}

// Middleware verifies the bearer token with the provider. The provider must map the ledger
// account id into "sub" and the ledger role into a "role" claim.
func (a *OIDCAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, problem := bearerToken(r)
		if problem != "" {
			writeJSONError(w, problem, http.StatusUnauthorized)
			return
		}

		idToken, err := a.Verifier.Verify(r.Context(), rawToken)
		if err != nil {
			writeJSONError(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			writeJSONError(w, "Failed to extract claims: "+err.Error(), http.StatusInternalServerError)
			return
		}

		ctx, err := withIdentity(r.Context(), claims)
		if err != nil {
			writeJSONError(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
