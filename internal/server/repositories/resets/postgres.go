// Package resets provides a PostgreSQL-backed store for password-reset
// requests.
package resets

import (
	"context"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, accountID, tokenHash string, validity time.Duration) error {
	query := `
		INSERT INTO reset_requests (account_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, tokenHash, time.Now().Add(validity)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, now time.Time) ([]*models.ResetRequest, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, created_at
		FROM reset_requests
		WHERE expires_at > $1
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ResetRequest
	for rows.Next() {
		req := &models.ResetRequest{}
		if err := rows.Scan(&req.ID, &req.AccountID, &req.TokenHash, &req.ExpiresAt, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	query := `DELETE FROM reset_requests WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM reset_requests WHERE expires_at < $1`
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
