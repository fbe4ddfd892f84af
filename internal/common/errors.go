// Package common defines shared constants and sentinel errors used across
// the MobCon server. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Client-input/state errors: wrong secret, duplicate resource,
	// expired or invalid one-time token, mismatched activation code.
	ErrBadRequest = errors.New("bad request")

	// Token lifecycle errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
