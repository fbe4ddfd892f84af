// Package server initializes and runs the account-identity server. It wires
// config, storage, mail delivery and the HTTP endpoint, registers the
// maintenance schedule and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/DmitriyEfimov15/mobcon-server/internal/logging"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/api"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/config"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/hashing"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/mail"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/repomanager"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/services"
	"github.com/robfig/cron/v3"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	credentials *services.CredentialService
	maintenance *services.MaintenanceService
}

func NewApp(cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	hasher := hashing.NewBcryptHasher(cfg.HashCost)

	var notifier mail.Notifier
	if cfg.SMTPAddr != "" {
		notifier = mail.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		notifier = mail.NewLogNotifier(logger)
	}

	cs := services.NewCredentialService(db, m, hasher, notifier, logger, cfg)
	ms := services.NewMaintenanceService(db, m, logger, cfg)

	return &App{config: cfg, logger: logger, db: db, credentials: cs, maintenance: ms}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := api.NewServer(app.config, app.logger, app.credentials)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startScheduler runs the maintenance sweeps: expired resets and the
// email-change cleanup at midnight, stale unverified accounts at 01:00,
// expired sessions hourly.
func (app *App) startScheduler(ctx context.Context) {

	c := cron.New()

	add := func(spec string, job func(context.Context) error) {
		if _, err := c.AddFunc(spec, func() {
			if err := job(ctx); err != nil {
				app.logger.Error(ctx, "maintenance job failed", "error", err.Error())
			}
		}); err != nil {
			app.logger.Error(ctx, "invalid cron spec", "spec", spec, "error", err.Error())
		}
	}

	add("0 0 * * *", app.maintenance.PurgeExpiredResets)
	add("0 0 * * *", app.maintenance.ClearStaleEmailChangeArtifacts)
	add("0 1 * * *", app.maintenance.PurgeStaleUnverifiedAccounts)
	add("@hourly", app.maintenance.PurgeExpiredSessions)

	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
}

func (app *App) Run() {

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.startScheduler(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
