package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes an access token from a refresh token so one can
// never be presented where the other is expected.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims is the JWT payload every issued token carries: the standard
// registered claims (Subject = authorized email) plus the token's type.
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// ParseClaims verifies tokenString against secret and returns its claims.
func ParseClaims(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
