// Package sessions declares the store contract for per-device refresh
// sessions.
package sessions

import (
	"context"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// refresh sessions. At most one live session exists per (account, device).
type Repository interface {
	// Upsert stores a session with an expiry of now+validity, replacing any
	// existing session for the same (account, device) pair.
	Upsert(ctx context.Context, accountID, device, token string, validity time.Duration) error

	// FindByToken looks up a session by its opaque token string.
	FindByToken(ctx context.Context, token string) (*models.RefreshSession, error)

	// Delete removes the session for the given (account, device). Deleting a
	// non-existent session is not an error.
	Delete(ctx context.Context, accountID, device string) error

	// DeleteByToken consumes the session row holding the token and reports
	// whether a row was actually removed. This is the atomic
	// compare-and-replace primitive behind refresh rotation.
	DeleteByToken(ctx context.Context, token string) (bool, error)

	// DeleteAll revokes every session for the account (password reset).
	DeleteAll(ctx context.Context, accountID string) error

	// DeleteExpired sweeps sessions past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
