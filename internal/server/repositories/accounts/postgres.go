package accounts

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

const accountColumns = `id, email, username, password_hash, email_verified, activation_code, activation_link, created_at`

func (r *PostgresRepository) scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.EmailVerified,
		&a.ActivationCode, &a.ActivationLink, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, username, password_hash, email_verified, activation_code, activation_link)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.Email, account.Username, account.PasswordHash,
		account.ActivationCode, account.ActivationLink).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByActivationLink(ctx context.Context, link string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE activation_link = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, link))
}

func (r *PostgresRepository) SetVerified(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET email_verified = TRUE, activation_code = NULL, activation_link = NULL
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetActivationPair(ctx context.Context, id, code, link string) error {
	query := `
		UPDATE accounts
		SET activation_code = $2, activation_link = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, code, link); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CommitEmailChange(ctx context.Context, id, newEmail string) error {
	query := `
		UPDATE accounts
		SET email = $2, activation_code = NULL, activation_link = NULL
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, newEmail); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE accounts SET password_hash = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateUsername(ctx context.Context, id, username string) error {
	query := `UPDATE accounts SET username = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteStaleUnverified(ctx context.Context, createdBefore time.Time) (int64, error) {
	query := `DELETE FROM accounts WHERE email_verified = FALSE AND created_at < $1`
	res, err := r.db.ExecContext(ctx, query, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ClearStaleActivationArtifacts(ctx context.Context) (int64, error) {
	query := `
		UPDATE accounts
		SET activation_code = NULL, activation_link = NULL
		WHERE email_verified = TRUE AND (activation_code IS NOT NULL OR activation_link IS NOT NULL)
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
