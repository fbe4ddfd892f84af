// Package api exposes the credential service over HTTP. The surface follows
// the split-credential contract: access tokens travel in the Authorization
// header and are visible to client script, refresh tokens live in an
// HttpOnly cookie the script never reads.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/logging"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/config"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

// credentialSvc is the slice of CredentialService the handlers call.
type credentialSvc interface {
	Register(ctx context.Context, email, username, password string) (*services.RegistrationResult, error)
	VerifyEmail(ctx context.Context, link, code, device string) (*services.TokenPair, *models.Account, error)
	Login(ctx context.Context, email, password, device string) (*services.TokenPair, *models.Account, error)
	Logout(ctx context.Context, accountID, device string) error
	Refresh(ctx context.Context, refreshToken, device string) (*services.TokenPair, *models.Account, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	ChangeUsername(ctx context.Context, accountID, newUsername, password string) error
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	RequestEmailChange(ctx context.Context, accountID, newEmail, password string) error
	ResendChangeEmailCode(ctx context.Context, link string) error
	ConfirmEmailChange(ctx context.Context, link, code string) (string, error)
	GetAccountFromBearer(ctx context.Context, authHeader string) (*models.Account, error)
}

type Server struct {
	address     string
	credentials credentialSvc
	logger      logging.Logger
	refreshTTL  time.Duration
}

func NewServer(cfg *config.Config, l logging.Logger, cs *services.CredentialService) *Server {
	return &Server{
		address:     cfg.EndpointAddr,
		credentials: cs,
		logger:      l.With("module", "api"),
		refreshTTL:  cfg.RefreshTokenTTL,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
