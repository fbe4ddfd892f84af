// Package services contains server-side business logic. This file implements
// CredentialService, which orchestrates registration, email activation,
// login, logout, refresh rotation, password reset and email change on top of
// the stores, the hasher and the token codec.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DmitriyEfimov15/mobcon-server/internal/common"
	"github.com/DmitriyEfimov15/mobcon-server/internal/dbx"
	"github.com/DmitriyEfimov15/mobcon-server/internal/logging"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/auth"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/config"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/hashing"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/mail"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
// Both are minted together whenever a session begins or is renewed.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisteredUser is the partial account info returned from registration,
// before the email is confirmed.
type RegisteredUser struct {
	Email          string
	Username       string
	ActivationLink string
}

// RegistrationResult is the outcome of Register. Status 1 is the single soft
// error: an unverified account with this email exists and the submitted
// password does not match — "retry with the correct password" rather than
// "resource taken".
type RegistrationResult struct {
	Status  int
	Message string
	User    *RegisteredUser
}

// CredentialService is the orchestrator of the account-identity subsystem.
// Every state transition reads then writes rows through the repository
// manager; multi-row transitions run inside a single transaction.
type CredentialService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	hasher        hashing.Hasher
	notifier      mail.Notifier
	logger        logging.Logger
	jwtSecret     []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
	clientBaseURL string
}

// NewCredentialService constructs a CredentialService from its collaborators
// and server config.
func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, h hashing.Hasher,
	n mail.Notifier, l logging.Logger, cfg *config.Config) *CredentialService {
	return &CredentialService{
		db:            db,
		repos:         m,
		hasher:        h,
		notifier:      n,
		logger:        l.With("module", "credentials"),
		jwtSecret:     []byte(cfg.SecretKey),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		resetTTL:      cfg.ResetTokenTTL,
		clientBaseURL: strings.TrimRight(cfg.ClientBaseURL, "/"),
	}
}

// Register creates a new unverified account and mails its activation code.
//
// Edge policies:
//   - an unverified account with this email exists and the password matches:
//     treated as a resumed registration, the code is re-sent;
//   - an unverified account exists and the password differs: soft Status 1
//     result, no error, to avoid leaking existence through a hard failure;
//   - a verified account exists: ErrBadRequest (duplicate).
func (s *CredentialService) Register(ctx context.Context, email, username, password string) (*RegistrationResult, error) {
	email = normalizeEmail(email)
	repo := s.repos.Accounts(s.db)

	candidate, err := repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrInternal
	}

	if candidate != nil && !candidate.EmailVerified {
		if !s.hasher.Verify(password, candidate.PasswordHash) {
			return &RegistrationResult{
				Status:  1,
				Message: "an account with this email already exists and the password does not match",
			}, nil
		}
		if candidate.ActivationCode != nil {
			s.sendActivationCode(ctx, candidate.Email, *candidate.ActivationCode)
		}
		return &RegistrationResult{User: registeredUser(candidate)}, nil
	}

	if candidate != nil && candidate.EmailVerified {
		return nil, fmt.Errorf("account with email %s already exists: %w", email, common.ErrBadRequest)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrInternal
	}
	code, err := common.MakeActivationCode()
	if err != nil {
		return nil, common.ErrInternal
	}
	link := uuid.NewString()

	account := &models.Account{
		Email:          email,
		Username:       username,
		PasswordHash:   hash,
		ActivationCode: &code,
		ActivationLink: &link,
	}
	account, err = repo.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	s.sendActivationCode(ctx, account.Email, code)

	return &RegistrationResult{User: registeredUser(account)}, nil
}

// VerifyEmail completes activation: the link must resolve to an account and
// the submitted code must equal the stored one. On success the account turns
// verified, the activation pair is cleared, and a fresh session is persisted
// for the requesting device.
func (s *CredentialService) VerifyEmail(ctx context.Context, link, code, device string) (*TokenPair, *models.Account, error) {
	repo := s.repos.Accounts(s.db)

	account, err := repo.GetByActivationLink(ctx, link)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrNotFound
		}
		return nil, nil, common.ErrInternal
	}
	if account.ActivationCode == nil || *account.ActivationCode != code {
		return nil, nil, fmt.Errorf("wrong activation code: %w", common.ErrBadRequest)
	}

	device = normalizeDevice(device)

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, account.ID, device, tx)
		if genErr != nil {
			return genErr
		}
		return s.repos.Accounts(tx).SetVerified(ctx, account.ID)
	})
	if err != nil {
		return nil, nil, err
	}

	account.EmailVerified = true
	account.ActivationCode = nil
	account.ActivationLink = nil

	return pair, account, nil
}

// Login verifies credentials and mints a session for the device. Unverified
// accounts may log in; verification gates nothing here.
func (s *CredentialService) Login(ctx context.Context, email, password, device string) (*TokenPair, *models.Account, error) {
	repo := s.repos.Accounts(s.db)

	account, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrNotFound
		}
		return nil, nil, common.ErrInternal
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, nil, fmt.Errorf("passwords do not match: %w", common.ErrBadRequest)
	}

	pair, err := s.generateTokenPair(ctx, account.ID, normalizeDevice(device), s.db)
	if err != nil {
		return nil, nil, err
	}
	return pair, account, nil
}

// Logout deletes the session for the requesting device. Deleting an absent
// session is not an error.
func (s *CredentialService) Logout(ctx context.Context, accountID, device string) error {
	return s.repos.Sessions(s.db).Delete(ctx, accountID, normalizeDevice(device))
}

// Refresh rotates a refresh token: the presented token must match a live,
// unexpired session record. The matched row is consumed atomically inside
// the rotation transaction, so of two concurrent refreshes with the same
// token only one succeeds; a replayed token after rotation simply fails.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken, device string) (*TokenPair, *models.Account, error) {
	if refreshToken == "" {
		return nil, nil, common.ErrNotFound
	}

	session, err := s.repos.Sessions(s.db).FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, fmt.Errorf("refresh token failed verification: %w", common.ErrBadRequest)
		}
		return nil, nil, common.ErrInternal
	}
	if session.Expired(time.Now()) {
		return nil, nil, fmt.Errorf("%w: %w", common.ErrRefreshTokenExpired, common.ErrBadRequest)
	}

	account, err := s.repos.Accounts(s.db).GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrNotFound
		}
		return nil, nil, common.ErrInternal
	}

	device = normalizeDevice(device)

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		consumed, err := s.repos.Sessions(tx).DeleteByToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		if !consumed {
			// lost a concurrent rotation race; the token is already superseded
			return fmt.Errorf("refresh token already rotated: %w", common.ErrBadRequest)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, account.ID, device, tx)
		return genErr
	})
	if err != nil {
		return nil, nil, err
	}

	return pair, account, nil
}

// RequestPasswordReset stores a hashed one-time token and mails the reset
// link. Repeated requests coexist until one is redeemed or they expire.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.repos.Accounts(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}

	token := uuid.NewString()
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return common.ErrInternal
	}

	if err := s.repos.Resets(s.db).Create(ctx, account.ID, hash, s.resetTTL); err != nil {
		return fmt.Errorf("error creating reset request: %w", err)
	}

	link := s.clientBaseURL + "/reset-password/" + token
	s.sendResetLink(ctx, account.Email, link)

	return nil
}

// ResetPassword redeems a raw reset token. The scan verifies every
// non-expired entry through the slow hasher until one matches; entries past
// expiry are never matched even if still present. On success, in a single
// transaction: the password is replaced, every outstanding reset request for
// the account is deleted, and every session is revoked.
func (s *CredentialService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	entries, err := s.repos.Resets(s.db).ListActive(ctx, time.Now())
	if err != nil {
		return common.ErrInternal
	}

	var matched *models.ResetRequest
	for _, entry := range entries {
		if s.hasher.Verify(rawToken, entry.TokenHash) {
			matched = entry
			break
		}
	}
	if matched == nil {
		return fmt.Errorf("invalid or expired reset token: %w", common.ErrBadRequest)
	}

	account, err := s.repos.Accounts(s.db).GetByID(ctx, matched.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.ErrInternal
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Accounts(tx).UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
		if err := s.repos.Resets(tx).DeleteByAccount(ctx, account.ID); err != nil {
			return err
		}
		// credential compromise recovery: kick every device out
		return s.repos.Sessions(tx).DeleteAll(ctx, account.ID)
	})
}

// ChangeUsername replaces the username after re-authenticating with the
// current password.
func (s *CredentialService) ChangeUsername(ctx context.Context, accountID, newUsername, password string) error {
	account, err := s.reauthenticate(ctx, accountID, password)
	if err != nil {
		return err
	}
	if err := s.repos.Accounts(s.db).UpdateUsername(ctx, account.ID, newUsername); err != nil {
		return fmt.Errorf("error updating username: %w", err)
	}
	return nil
}

// ChangePassword replaces the password hash after re-authenticating with the
// old password. Unlike ResetPassword it does not revoke other sessions: the
// caller proved possession of the current credential, so there is no
// compromise to recover from.
func (s *CredentialService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	account, err := s.reauthenticate(ctx, accountID, oldPassword)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.ErrInternal
	}
	if err := s.repos.Accounts(s.db).UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}
	return nil
}

// RequestEmailChange starts the email-change workflow: re-authenticates,
// rejects a new address colliding with any account email or any other
// pending change, regenerates the activation pair and records the pending
// change. The confirmation link goes to the current, verified address.
func (s *CredentialService) RequestEmailChange(ctx context.Context, accountID, newEmail, password string) error {
	account, err := s.reauthenticate(ctx, accountID, password)
	if err != nil {
		return err
	}

	newEmail = normalizeEmail(newEmail)

	if _, err := s.repos.EmailChanges(s.db).GetByEmail(ctx, newEmail); err == nil {
		return fmt.Errorf("email %s already taken: %w", newEmail, common.ErrBadRequest)
	} else if !errors.Is(err, common.ErrNotFound) {
		return common.ErrInternal
	}
	if _, err := s.repos.Accounts(s.db).GetByEmail(ctx, newEmail); err == nil {
		return fmt.Errorf("email %s already taken: %w", newEmail, common.ErrBadRequest)
	} else if !errors.Is(err, common.ErrNotFound) {
		return common.ErrInternal
	}

	code, err := common.MakeActivationCode()
	if err != nil {
		return common.ErrInternal
	}
	link := uuid.NewString()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Accounts(tx).SetActivationPair(ctx, account.ID, code, link); err != nil {
			return err
		}
		return s.repos.EmailChanges(tx).Create(ctx, account.ID, newEmail)
	})
	if err != nil {
		return fmt.Errorf("error recording email change: %w", err)
	}

	s.sendChangeEmailLink(ctx, account.Email, s.clientBaseURL+"/changeEmail/"+link)

	return nil
}

// ResendChangeEmailCode mails the existing activation code to the proposed
// new address. Fails NotFound when the link resolves to no account or the
// account has no pending change.
func (s *CredentialService) ResendChangeEmailCode(ctx context.Context, link string) error {
	account, err := s.repos.Accounts(s.db).GetByActivationLink(ctx, link)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}

	change, err := s.repos.EmailChanges(s.db).GetByAccount(ctx, account.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("no pending email change: %w", common.ErrNotFound)
		}
		return common.ErrInternal
	}

	if account.ActivationCode != nil {
		s.sendActivationCode(ctx, change.NewEmail, *account.ActivationCode)
	}
	return nil
}

// ConfirmEmailChange validates the link and code exactly as activation does
// and, with a pending change present, commits the new address and clears the
// activation artifacts in one transaction. Any single missing condition
// fails without a partial update.
func (s *CredentialService) ConfirmEmailChange(ctx context.Context, link, code string) (string, error) {
	account, err := s.repos.Accounts(s.db).GetByActivationLink(ctx, link)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrNotFound
		}
		return "", common.ErrInternal
	}
	if account.ActivationCode == nil || *account.ActivationCode != code {
		return "", fmt.Errorf("wrong activation code: %w", common.ErrBadRequest)
	}

	change, err := s.repos.EmailChanges(s.db).GetByAccount(ctx, account.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", fmt.Errorf("no pending email change: %w", common.ErrNotFound)
		}
		return "", common.ErrInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Accounts(tx).CommitEmailChange(ctx, account.ID, change.NewEmail); err != nil {
			return err
		}
		return s.repos.EmailChanges(tx).DeleteByAccount(ctx, account.ID)
	})
	if err != nil {
		return "", err
	}

	return change.NewEmail, nil
}

// GetAccountFromBearer resolves the account behind an Authorization header.
// The header must be "<scheme> <token>"; anything less is ErrUnauthorized.
func (s *CredentialService) GetAccountFromBearer(ctx context.Context, authHeader string) (*models.Account, error) {
	if authHeader == "" {
		return nil, common.ErrUnauthorized
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 {
		return nil, common.ErrUnauthorized
	}

	accountID, err := auth.ParseAccessToken(parts[1], s.jwtSecret)
	if err != nil {
		return nil, common.ErrUnauthorized
	}

	account, err := s.repos.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrInternal
	}
	return account, nil
}

// --- helpers below ---

func (s *CredentialService) generateTokenPair(ctx context.Context, accountID, device string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(accountID, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, common.ErrInternal
	}
	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return nil, common.ErrInternal
	}
	if err := s.repos.Sessions(tx).Upsert(ctx, accountID, device, refresh, s.refreshTTL); err != nil {
		return nil, common.ErrInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *CredentialService) reauthenticate(ctx context.Context, accountID, password string) (*models.Account, error) {
	account, err := s.repos.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrInternal
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, fmt.Errorf("wrong password: %w", common.ErrBadRequest)
	}
	return account, nil
}

// Notifications are best-effort: a delivery failure is logged and never
// propagated to the caller of a credential operation.
func (s *CredentialService) sendActivationCode(ctx context.Context, email, code string) {
	if err := s.notifier.SendActivationCode(ctx, email, code); err != nil {
		s.logger.Error(ctx, "activation code delivery failed", "to", email, "error", err.Error())
	}
}

func (s *CredentialService) sendResetLink(ctx context.Context, email, link string) {
	if err := s.notifier.SendResetPasswordLink(ctx, email, link); err != nil {
		s.logger.Error(ctx, "reset link delivery failed", "to", email, "error", err.Error())
	}
}

func (s *CredentialService) sendChangeEmailLink(ctx context.Context, email, link string) {
	if err := s.notifier.SendChangeEmailLink(ctx, email, link); err != nil {
		s.logger.Error(ctx, "change email link delivery failed", "to", email, "error", err.Error())
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeDevice(device string) string {
	if device == "" {
		return models.UnknownDevice
	}
	return device
}

func registeredUser(a *models.Account) *RegisteredUser {
	u := &RegisteredUser{Email: a.Email, Username: a.Username}
	if a.ActivationLink != nil {
		u.ActivationLink = *a.ActivationLink
	}
	return u
}
