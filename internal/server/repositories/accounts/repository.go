// Package accounts declares the repository contract for identity records.
package accounts

import (
	"context"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
)

// Repository defines persistence operations for accounts. Lookup methods
// return a not-found error when no row matches.
type Repository interface {
	// Create inserts a new account and returns it with the generated id.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByActivationLink(ctx context.Context, link string) (*models.Account, error)

	// SetVerified marks the email confirmed and clears both activation
	// artifacts in the same statement, keeping the code/link invariant.
	SetVerified(ctx context.Context, id string) error

	// SetActivationPair (re)generates the confirmation artifacts, used when
	// an email change restarts the activation workflow.
	SetActivationPair(ctx context.Context, id, code, link string) error

	// CommitEmailChange replaces the address and clears the activation pair.
	CommitEmailChange(ctx context.Context, id, newEmail string) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateUsername(ctx context.Context, id, username string) error

	// DeleteStaleUnverified removes never-verified accounts created before
	// the cutoff. Dependent rows go with them via FK cascade.
	DeleteStaleUnverified(ctx context.Context, createdBefore time.Time) (int64, error)

	// ClearStaleActivationArtifacts nulls code/link on verified accounts
	// that still carry them (abandoned email changes).
	ClearStaleActivationArtifacts(ctx context.Context) (int64, error)
}
