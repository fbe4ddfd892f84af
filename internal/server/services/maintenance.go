package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/dbx"
	"github.com/DmitriyEfimov15/mobcon-server/internal/logging"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/config"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/repomanager"
)

// MaintenanceService runs the periodic sweeps that keep the identity tables
// from accumulating dead rows. Each sweep is idempotent and safe to run at
// any frequency.
type MaintenanceService struct {
	db               *sql.DB
	repos            repomanager.RepositoryManager
	logger           logging.Logger
	unverifiedMaxAge time.Duration
}

func NewMaintenanceService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger, cfg *config.Config) *MaintenanceService {
	return &MaintenanceService{
		db:               db,
		repos:            m,
		logger:           l.With("module", "maintenance"),
		unverifiedMaxAge: cfg.UnverifiedAccountMaxAge,
	}
}

// PurgeExpiredResets deletes reset requests whose expiry has passed.
// Expired entries are already unredeemable; this sweep only reclaims rows.
func (s *MaintenanceService) PurgeExpiredResets(ctx context.Context) error {
	n, err := s.repos.Resets(s.db).DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error(ctx, "purging expired reset requests failed", "error", err.Error())
		return err
	}
	s.logger.Info(ctx, "purged expired reset requests", "count", n)
	return nil
}

// PurgeStaleUnverifiedAccounts deletes accounts that never confirmed their
// email within the configured window. Sessions, reset requests and pending
// changes follow via cascade.
func (s *MaintenanceService) PurgeStaleUnverifiedAccounts(ctx context.Context) error {
	cutoff := time.Now().Add(-s.unverifiedMaxAge)
	n, err := s.repos.Accounts(s.db).DeleteStaleUnverified(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, "purging stale unverified accounts failed", "error", err.Error())
		return err
	}
	s.logger.Info(ctx, "purged stale unverified accounts", "count", n, "created_before", cutoff)
	return nil
}

// ClearStaleEmailChangeArtifacts removes abandoned email-change state:
// pending-change rows for verified accounts still carrying an activation
// pair, then the orphaned activation pairs themselves. The pending rows must
// go first, while the activation artifacts that identify them still exist.
func (s *MaintenanceService) ClearStaleEmailChangeArtifacts(ctx context.Context) error {
	var changes, artifacts int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		changes, err = s.repos.EmailChanges(tx).DeleteStale(ctx)
		if err != nil {
			return err
		}
		artifacts, err = s.repos.Accounts(tx).ClearStaleActivationArtifacts(ctx)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "clearing stale email change artifacts failed", "error", err.Error())
		return err
	}
	s.logger.Info(ctx, "cleared stale email change artifacts", "pending_changes", changes, "activation_pairs", artifacts)
	return nil
}

// PurgeExpiredSessions deletes refresh sessions past their expiry.
func (s *MaintenanceService) PurgeExpiredSessions(ctx context.Context) error {
	n, err := s.repos.Sessions(s.db).DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error(ctx, "purging expired sessions failed", "error", err.Error())
		return err
	}
	s.logger.Info(ctx, "purged expired sessions", "count", n)
	return nil
}
