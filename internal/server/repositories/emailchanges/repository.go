// Package emailchanges declares the store contract for pending email
// changes.
package emailchanges

import (
	"context"

	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
)

// Repository defines operations for pending email-change records. Lookup
// methods return a not-found error when no row matches.
type Repository interface {
	// Create stores a proposed new email for the account.
	Create(ctx context.Context, accountID, newEmail string) error

	GetByAccount(ctx context.Context, accountID string) (*models.PendingEmailChange, error)
	GetByEmail(ctx context.Context, newEmail string) (*models.PendingEmailChange, error)

	// DeleteByAccount removes any pending change for the account. Deleting
	// when nothing is pending is not an error.
	DeleteByAccount(ctx context.Context, accountID string) error

	// DeleteStale removes pending changes belonging to verified accounts
	// that still carry activation artifacts (abandoned change flows). Run
	// before the artifacts themselves are cleared.
	DeleteStale(ctx context.Context) (int64, error)
}
