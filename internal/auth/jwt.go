// Package auth validates the bearer tokens that guard intake and admin
// routes. Tokens are issued out of band; GenerateToken exists for tooling.
package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Scope string

const (
	ScopePayments Scope = "payments:write"
	ScopeAdmin    Scope = "admin"
)

type Claims struct {
	OperatorID uuid.UUID
	Scopes     []Scope
}

func (c *Claims) Has(scope Scope) bool {
	return slices.Contains(c.Scopes, scope)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

func GenerateToken(operatorID uuid.UUID, scopes []Scope, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	for _, s := range scopes {
		claims.Scopes = append(claims.Scopes, string(s))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}

	operatorID, err := uuid.Parse(tc.Subject)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid subject in token: %w", err)
	}

	claims := &Claims{OperatorID: operatorID}
	for _, s := range tc.Scopes {
		claims.Scopes = append(claims.Scopes, Scope(s))
	}
	return claims, nil
}
