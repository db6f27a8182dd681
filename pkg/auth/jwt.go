package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoHandle     = errors.New("token carries no user handle")
)

// Claims identify the local user. UserID holds the user's handle.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for handle. Used by dev tooling and tests.
func GenerateToken(secret []byte, handle string, ttl time.Duration) (string, error) {
	if handle == "" {
		return "", ErrNoHandle
	}
	claims := &Claims{
		UserID: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handle,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and validates a token signed with secret.
func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HandleFromToken reads the handle from a token without verifying its
// signature. The client never holds the server's key; the server still
// verifies every request.
func HandleFromToken(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(StripBearer(tokenString), claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch {
	case claims.UserID != "":
		return claims.UserID, nil
	case claims.Subject != "":
		return claims.Subject, nil
	}
	return "", ErrNoHandle
}

// StripBearer removes a "Bearer " prefix if present.
func StripBearer(header string) string {
	return strings.TrimPrefix(header, "Bearer ")
}
