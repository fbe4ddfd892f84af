// Package emailchanges provides a PostgreSQL-backed store for pending
// email-change records.
package emailchanges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DmitriyEfimov15/mobcon-server/internal/common"
	"github.com/DmitriyEfimov15/mobcon-server/internal/dbx"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) scanChange(row *sql.Row) (*models.PendingEmailChange, error) {
	c := &models.PendingEmailChange{}
	err := row.Scan(&c.ID, &c.AccountID, &c.NewEmail, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, accountID, newEmail string) error {
	query := `
		INSERT INTO pending_email_changes (account_id, new_email)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, newEmail); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByAccount(ctx context.Context, accountID string) (*models.PendingEmailChange, error) {
	query := `
		SELECT id, account_id, new_email, created_at
		FROM pending_email_changes
		WHERE account_id = $1
	`
	return r.scanChange(r.db.QueryRowContext(ctx, query, accountID))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, newEmail string) (*models.PendingEmailChange, error) {
	query := `
		SELECT id, account_id, new_email, created_at
		FROM pending_email_changes
		WHERE new_email = $1
	`
	return r.scanChange(r.db.QueryRowContext(ctx, query, newEmail))
}

func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	query := `DELETE FROM pending_email_changes WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM pending_email_changes
		WHERE account_id IN (
			SELECT id FROM accounts
			WHERE email_verified = TRUE
			  AND (activation_code IS NOT NULL OR activation_link IS NOT NULL)
		)
	`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
