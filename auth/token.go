// Package auth validates the opaque identity token a connection presents
// at handshake time. Credential checking happens upstream; the core only
// needs the user id the token carries.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messenger-lab/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type TokenService struct {
	key []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{key: []byte(secret)}
}

// Generate creates a signed JWT for a specific user. Used by the seed
// tooling and tests; real tokens come from the upstream identity service.
func (t *TokenService) Generate(userID string, duration time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "messenger-lab",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Validate parses the token and returns the user id it asserts.
func (t *TokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	})
	if err != nil {
		return "", errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", errors.ErrInvalidToken
	}
	return claims.UserID, nil
}
