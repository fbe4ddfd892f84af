// Package resets declares the store contract for password-reset requests.
package resets

import (
	"context"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
)

// Repository defines operations for hashed, time-limited reset tokens.
type Repository interface {
	// Create stores a new reset request with an expiry of now+validity.
	Create(ctx context.Context, accountID, tokenHash string, validity time.Duration) error

	// ListActive returns all requests whose expiry is after now. The raw
	// token is never stored, so redemption verifies each hash in turn.
	ListActive(ctx context.Context, now time.Time) ([]*models.ResetRequest, error)

	// DeleteByAccount removes every request for the account, consumed or not.
	DeleteByAccount(ctx context.Context, accountID string) error

	// DeleteExpired sweeps requests past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
