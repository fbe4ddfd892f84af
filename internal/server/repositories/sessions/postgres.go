// Package sessions provides a PostgreSQL-backed store for refresh sessions
// used in the credential service's token rotation flow.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Upsert(ctx context.Context, accountID, device, token string, validity time.Duration) error {
	query := `
		INSERT INTO refresh_sessions (account_id, device, token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, device)
		DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, created_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, device, token, time.Now().Add(validity)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.RefreshSession, error) {
	query := `
		SELECT id, account_id, token, device, expires_at, created_at
		FROM refresh_sessions
		WHERE token = $1
	`
	s := &models.RefreshSession{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&s.ID, &s.AccountID, &s.Token, &s.Device, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, device string) error {
	query := `DELETE FROM refresh_sessions WHERE account_id = $1 AND device = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, device); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	query := `DELETE FROM refresh_sessions WHERE token = $1`
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, accountID string) error {
	query := `DELETE FROM refresh_sessions WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
