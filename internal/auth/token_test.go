package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points-system/internal/core/domain"
)

func TestTokenIssuer_Issue(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", "ledger-dev", time.Minute)
	require.NoError(t, err)

	raw, err := issuer.Issue(42, domain.RoleCashier)
	require.NoError(t, err)

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "42", claims["sub"])
	assert.Equal(t, "cashier", claims["role"])
	assert.Equal(t, "ledger-dev", claims["iss"])
	assert.Contains(t, claims, "exp")
}

func TestTokenIssuer_Rejects(t *testing.T) {
	_, err := NewTokenIssuer("", "", time.Minute)
	assert.Error(t, err)

	issuer, err := NewTokenIssuer("secret", "", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.ttl)

	_, err = issuer.Issue(0, domain.RoleRegular)
	assert.Error(t, err)
	_, err = issuer.Issue(1, domain.Role("owner"))
	assert.Error(t, err)
}
