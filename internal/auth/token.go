package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"loyalty-points-system/internal/core/domain"
)

// TokenIssuer mints HS256 bearer tokens that the ledger's JWT middleware accepts. It backs
// local tooling and tests; production deployments authenticate through OIDC.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token whose subject is the account id and whose role claim is the ledger role.
func (i *TokenIssuer) Issue(accountID int64, role domain.Role) (string, error) {
	if accountID <= 0 {
		return "", errors.New("account id must be positive")
	}
	if !role.Valid() {
		return "", errors.New("unknown role " + strconv.Quote(string(role)))
	}
	now := i.now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(accountID, 10),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(i.ttl).Unix(),
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
