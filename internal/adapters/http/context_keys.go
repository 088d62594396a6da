package http

import (
	"context"
	"fmt"
	"strconv"

	"loyalty-points-system/internal/core/domain"
)

// contextKey is a typed key for request context values.
type contextKey string

const (
	// claimsContextKey holds the verified token claims (JWT or OIDC).
	claimsContextKey contextKey = "claims"
	actorContextKey  contextKey = "actor"
)

// ClaimsFromContext returns the claims stored by the authentication middleware.
func ClaimsFromContext(ctx context.Context) (map[string]any, bool) {
	claims, ok := ctx.Value(claimsContextKey).(map[string]any)
	return claims, ok
}

// ActorFromContext returns the caller resolved from the token.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	return actor, ok
}

func withIdentity(ctx context.Context, claims map[string]any) (context.Context, error) {
	actor, err := actorFromClaims(claims)
	if err != nil {
		return ctx, err
	}
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, actorContextKey, actor), nil
}

// actorFromClaims expects "sub" to be the numeric account id and "role" one of the ledger
// roles. A missing role means regular.
func actorFromClaims(claims map[string]any) (domain.Actor, error) {
	var actor domain.Actor
	switch sub := claims["sub"].(type) {
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return actor, fmt.Errorf("subject %q is not an account id", sub)
		}
		actor.AccountID = id
	case float64:
		actor.AccountID = int64(sub)
	default:
		return actor, fmt.Errorf("token has no subject")
	}
	if actor.AccountID <= 0 {
		return actor, fmt.Errorf("subject must be a positive account id")
	}

	actor.Role = domain.RoleRegular
	if raw, ok := claims["role"].(string); ok && raw != "" {
		role := domain.Role(raw)
		if !role.Valid() {
			return actor, fmt.Errorf("unknown role %q", raw)
		}
		actor.Role = role
	}
	return actor, nil
}
