// Package auth implements the token codec: short-lived signed access tokens
// and long-lived opaque refresh tokens.
package auth

import (
	"errors"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// refreshTokenBytes is the entropy of an opaque refresh token; the encoded
// value is twice as many hex characters.
const refreshTokenBytes = 32

// Claims carries the registered claims plus the account id. An access token
// proves recent authentication by signature alone; no storage lookup.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string
}

// GenerateAccessToken mints an HS256 token for the account with the given
// validity window.
func GenerateAccessToken(accountID string, secretKey []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AccountID: accountID,
	})

	return token.SignedString(secretKey)
}

// ParseAccessToken validates the token and returns the embedded account id.
// Malformed, tampered and expired tokens all fail closed with
// common.ErrInvalidToken; the codec never panics on bad input. Callers at
// the transport boundary map this to an unauthorized response.
func ParseAccessToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.AccountID, nil
}

// NewRefreshToken returns an opaque high-entropy token with no embedded
// claims. Knowledge of the string alone is necessary but not sufficient:
// validity requires a matching live session record.
func NewRefreshToken() (string, error) {
	return common.MakeRandHexString(refreshTokenBytes)
}
