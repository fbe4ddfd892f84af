package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/DmitriyEfimov15/mobcon-server/internal/common"
	"github.com/DmitriyEfimov15/mobcon-server/internal/dbx"
	"github.com/DmitriyEfimov15/mobcon-server/internal/logging"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/auth"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/config"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/models"
	accountsrepo "github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/accounts"
	emailchangesrepo "github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/emailchanges"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/repomanager"
	resetsrepo "github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/resets"
	sessionsrepo "github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/sessions"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func nopLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeHasher hashes "s" to "h:s"; deny forces every verification to fail.
type fakeHasher struct {
	deny    bool
	hashErr error
}

func (f *fakeHasher) Hash(secret string) (string, error) {
	if f.hashErr != nil {
		return "", f.hashErr
	}
	return "h:" + secret, nil
}

func (f *fakeHasher) Verify(secret, digest string) bool {
	if f.deny {
		return false
	}
	return digest == "h:"+secret
}

type fakeNotifier struct {
	codes       []string // "email code"
	resetLinks  []string
	changeLinks []string
	err         error
}

func (f *fakeNotifier) SendActivationCode(_ context.Context, email, code string) error {
	f.codes = append(f.codes, email+" "+code)
	return f.err
}

func (f *fakeNotifier) SendResetPasswordLink(_ context.Context, email, link string) error {
	f.resetLinks = append(f.resetLinks, email+" "+link)
	return f.err
}

func (f *fakeNotifier) SendChangeEmailLink(_ context.Context, email, link string) error {
	f.changeLinks = append(f.changeLinks, email+" "+link)
	return f.err
}

type fakeAccountsRepo struct {
	byEmail    *models.Account
	byEmailErr error
	byID       *models.Account
	byIDErr    error
	byLink     *models.Account
	byLinkErr  error
	createOut  *models.Account
	createErr  error

	verifiedID     string
	setVerifiedErr error
	pairID         string
	pairCode       string
	pairLink       string
	pairErr        error
	committedEmail string
	commitErr      error
	newHash        string
	newHashErr     error
	newUsername    string
	usernameErr    error

	staleDeleted     int64
	staleDeletedErr  error
	artifactsCleared int64
	artifactsErr     error
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	out := *a
	out.ID = "created"
	return &out, nil
}

func (f *fakeAccountsRepo) GetByID(context.Context, string) (*models.Account, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.byID, nil
}

func (f *fakeAccountsRepo) GetByEmail(context.Context, string) (*models.Account, error) {
	if f.byEmailErr != nil {
		return nil, f.byEmailErr
	}
	return f.byEmail, nil
}

func (f *fakeAccountsRepo) GetByActivationLink(context.Context, string) (*models.Account, error) {
	if f.byLinkErr != nil {
		return nil, f.byLinkErr
	}
	return f.byLink, nil
}

func (f *fakeAccountsRepo) SetVerified(_ context.Context, id string) error {
	f.verifiedID = id
	return f.setVerifiedErr
}

func (f *fakeAccountsRepo) SetActivationPair(_ context.Context, id, code, link string) error {
	f.pairID, f.pairCode, f.pairLink = id, code, link
	return f.pairErr
}

func (f *fakeAccountsRepo) CommitEmailChange(_ context.Context, _, newEmail string) error {
	f.committedEmail = newEmail
	return f.commitErr
}

func (f *fakeAccountsRepo) UpdatePasswordHash(_ context.Context, _, hash string) error {
	f.newHash = hash
	return f.newHashErr
}

func (f *fakeAccountsRepo) UpdateUsername(_ context.Context, _, username string) error {
	f.newUsername = username
	return f.usernameErr
}

func (f *fakeAccountsRepo) DeleteStaleUnverified(context.Context, time.Time) (int64, error) {
	return f.staleDeleted, f.staleDeletedErr
}

func (f *fakeAccountsRepo) ClearStaleActivationArtifacts(context.Context) (int64, error) {
	return f.artifactsCleared, f.artifactsErr
}

type fakeSessionsRepo struct {
	upserts   []string // "accountID device"
	upsertErr error

	findOut *models.RefreshSession
	findErr error

	deleted   []string // "accountID device"
	deleteErr error

	consumed   bool
	consumeErr error
	consumes   int

	deletedAll    []string
	deleteAllErr  error
	expiredPurged int64
	expiredErr    error
}

func (f *fakeSessionsRepo) Upsert(_ context.Context, accountID, device, _ string, _ time.Duration) error {
	f.upserts = append(f.upserts, accountID+" "+device)
	return f.upsertErr
}

func (f *fakeSessionsRepo) FindByToken(context.Context, string) (*models.RefreshSession, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeSessionsRepo) Delete(_ context.Context, accountID, device string) error {
	f.deleted = append(f.deleted, accountID+" "+device)
	return f.deleteErr
}

func (f *fakeSessionsRepo) DeleteByToken(context.Context, string) (bool, error) {
	f.consumes++
	return f.consumed, f.consumeErr
}

func (f *fakeSessionsRepo) DeleteAll(_ context.Context, accountID string) error {
	f.deletedAll = append(f.deletedAll, accountID)
	return f.deleteAllErr
}

func (f *fakeSessionsRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return f.expiredPurged, f.expiredErr
}

type fakeResetsRepo struct {
	created   []string // "accountID tokenHash"
	createErr error

	active  []*models.ResetRequest
	listErr error

	deletedFor []string
	deleteErr  error
	purged     int64
	purgedErr  error
}

func (f *fakeResetsRepo) Create(_ context.Context, accountID, tokenHash string, _ time.Duration) error {
	f.created = append(f.created, accountID+" "+tokenHash)
	return f.createErr
}

func (f *fakeResetsRepo) ListActive(context.Context, time.Time) ([]*models.ResetRequest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.active, nil
}

func (f *fakeResetsRepo) DeleteByAccount(_ context.Context, accountID string) error {
	f.deletedFor = append(f.deletedFor, accountID)
	return f.deleteErr
}

func (f *fakeResetsRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return f.purged, f.purgedErr
}

type fakeEmailChangesRepo struct {
	created   []string // "accountID newEmail"
	createErr error

	byAccount    *models.PendingEmailChange
	byAccountErr error
	byEmail      *models.PendingEmailChange
	byEmailErr   error

	deletedFor []string
	deleteErr  error
	staleGone  int64
	staleErr   error
}

func (f *fakeEmailChangesRepo) Create(_ context.Context, accountID, newEmail string) error {
	f.created = append(f.created, accountID+" "+newEmail)
	return f.createErr
}

func (f *fakeEmailChangesRepo) GetByAccount(context.Context, string) (*models.PendingEmailChange, error) {
	if f.byAccountErr != nil {
		return nil, f.byAccountErr
	}
	return f.byAccount, nil
}

func (f *fakeEmailChangesRepo) GetByEmail(context.Context, string) (*models.PendingEmailChange, error) {
	if f.byEmailErr != nil {
		return nil, f.byEmailErr
	}
	return f.byEmail, nil
}

func (f *fakeEmailChangesRepo) DeleteByAccount(_ context.Context, accountID string) error {
	f.deletedFor = append(f.deletedFor, accountID)
	return f.deleteErr
}

func (f *fakeEmailChangesRepo) DeleteStale(context.Context) (int64, error) {
	return f.staleGone, f.staleErr
}

type fakeRepoManager struct {
	a *fakeAccountsRepo
	s *fakeSessionsRepo
	r *fakeResetsRepo
	e *fakeEmailChangesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accountsrepo.Repository         { return m.a }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessionsrepo.Repository         { return m.s }
func (m *fakeRepoManager) Resets(dbx.DBTX) resetsrepo.Repository             { return m.r }
func (m *fakeRepoManager) EmailChanges(dbx.DBTX) emailchangesrepo.Repository { return m.e }

func newCredentialService(t *testing.T, db *sql.DB, rm repomanager.RepositoryManager, h *fakeHasher, n *fakeNotifier) *CredentialService {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "k"
	cfg.ClientBaseURL = "http://client.local"
	if h == nil {
		h = &fakeHasher{}
	}
	if n == nil {
		n = &fakeNotifier{}
	}
	return NewCredentialService(db, rm, h, n, nopLogger(), cfg)
}

// --- registration ---

func TestRegister_NewAccount(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmailErr: common.ErrNotFound}
	n := &fakeNotifier{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, n)

	res, err := s.Register(context.Background(), "  Alice@Example.COM ", "alice", "pass")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if res.Status != 0 || res.User == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.User.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.User.ActivationLink == "" {
		t.Fatalf("missing activation link")
	}
	if len(n.codes) != 1 || !strings.HasPrefix(n.codes[0], "alice@example.com ") {
		t.Fatalf("activation code not sent: %v", n.codes)
	}
	code := strings.Fields(n.codes[0])[1]
	if len(code) != 6 {
		t.Fatalf("activation code not 6 digits: %q", code)
	}
}

func TestRegister_UnverifiedWrongPassword(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "123456"
	a := &fakeAccountsRepo{byEmail: &models.Account{
		ID: "a1", Email: "a@b.c", PasswordHash: "h:right", ActivationCode: &code,
	}}
	n := &fakeNotifier{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, n)

	res, err := s.Register(context.Background(), "a@b.c", "alice", "wrong")
	if err != nil {
		t.Fatalf("expected soft result, got error: %v", err)
	}
	if res.Status != 1 || res.User != nil {
		t.Fatalf("expected status 1 without user, got %+v", res)
	}
	if len(n.codes) != 0 {
		t.Fatalf("no code should be sent on password mismatch")
	}
}

func TestRegister_UnverifiedResume(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "654321"
	link := "link-1"
	a := &fakeAccountsRepo{byEmail: &models.Account{
		ID: "a1", Email: "a@b.c", Username: "alice", PasswordHash: "h:pass",
		ActivationCode: &code, ActivationLink: &link,
	}}
	n := &fakeNotifier{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, n)

	res, err := s.Register(context.Background(), "a@b.c", "alice", "pass")
	if err != nil || res.Status != 0 {
		t.Fatalf("resume: got (%+v, %v)", res, err)
	}
	if res.User == nil || res.User.ActivationLink != "link-1" {
		t.Fatalf("resume should return the pending account: %+v", res.User)
	}
	if len(n.codes) != 1 || n.codes[0] != "a@b.c 654321" {
		t.Fatalf("existing code should be re-sent: %v", n.codes)
	}
}

func TestRegister_VerifiedDuplicate(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmail: &models.Account{ID: "a1", EmailVerified: true, PasswordHash: "h:pass"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	_, err := s.Register(context.Background(), "a@b.c", "alice", "pass")
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestRegister_NotificationFailureIsSoft(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmailErr: common.ErrNotFound}
	n := &fakeNotifier{err: errBoom{}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, n)

	res, err := s.Register(context.Background(), "a@b.c", "alice", "pass")
	if err != nil || res.User == nil {
		t.Fatalf("delivery failure must not fail registration: (%+v, %v)", res, err)
	}
}

// --- activation ---

func TestVerifyEmail_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	code := "123456"
	link := "link-1"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code, ActivationLink: &link}}
	sess := &fakeSessionsRepo{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, s: sess}, nil, nil)

	pair, account, err := s.VerifyEmail(context.Background(), "link-1", "123456", "")
	if err != nil {
		t.Fatalf("VerifyEmail error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty tokens: %+v", pair)
	}
	if !account.EmailVerified || account.ActivationCode != nil || account.ActivationLink != nil {
		t.Fatalf("account not cleared: %+v", account)
	}
	if a.verifiedID != "a1" {
		t.Fatalf("SetVerified not called")
	}
	if len(sess.upserts) != 1 || sess.upserts[0] != "a1 "+models.UnknownDevice {
		t.Fatalf("missing device should fall back to sentinel: %v", sess.upserts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestVerifyEmail_WrongCode(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "123456"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	_, _, err := s.VerifyEmail(context.Background(), "link-1", "000000", "d")
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestVerifyEmail_UnknownLink(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byLinkErr: common.ErrNotFound}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	_, _, err := s.VerifyEmail(context.Background(), "nope", "123456", "d")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// --- login / logout ---

func TestLogin_Success_UnverifiedAllowed(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmail: &models.Account{ID: "a1", Email: "a@b.c", PasswordHash: "h:pass"}}
	sess := &fakeSessionsRepo{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, s: sess}, nil, nil)

	pair, account, err := s.Login(context.Background(), "A@B.C", "pass", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || account.ID != "a1" {
		t.Fatalf("bad login result: %+v %+v", pair, account)
	}
	if len(sess.upserts) != 1 || sess.upserts[0] != "a1 Mozilla/5.0" {
		t.Fatalf("session not stored per device: %v", sess.upserts)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmail: &models.Account{ID: "a1", PasswordHash: "h:pass"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	_, _, err := s.Login(context.Background(), "a@b.c", "nope", "d")
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmailErr: common.ErrNotFound}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	_, _, err := s.Login(context.Background(), "ghost@b.c", "pass", "d")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	sess := &fakeSessionsRepo{}
	s := newCredentialService(t, db, &fakeRepoManager{s: sess}, nil, nil)

	if err := s.Logout(context.Background(), "a1", ""); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if len(sess.deleted) != 1 || sess.deleted[0] != "a1 "+models.UnknownDevice {
		t.Fatalf("session not deleted: %v", sess.deleted)
	}
}

// --- refresh rotation ---

func TestRefresh_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	sess := &fakeSessionsRepo{
		findOut:  &models.RefreshSession{AccountID: "a1", Token: "old", ExpiresAt: time.Now().Add(time.Hour)},
		consumed: true,
	}
	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, s: sess}, nil, nil)

	pair, account, err := s.Refresh(context.Background(), "old", "d")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if pair.RefreshToken == "" || pair.RefreshToken == "old" {
		t.Fatalf("refresh token not rotated: %+v", pair)
	}
	if account.ID != "a1" {
		t.Fatalf("wrong account: %+v", account)
	}
	if sess.consumes != 1 || len(sess.upserts) != 1 {
		t.Fatalf("rotation must consume then upsert: consumes=%d upserts=%v", sess.consumes, sess.upserts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRefresh_EmptyToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newCredentialService(t, db, &fakeRepoManager{}, nil, nil)
	_, _, err := s.Refresh(context.Background(), "", "d")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	sess := &fakeSessionsRepo{findErr: common.ErrNotFound}
	s := newCredentialService(t, db, &fakeRepoManager{s: sess}, nil, nil)

	_, _, err := s.Refresh(context.Background(), "forged", "d")
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestRefresh_Expired(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	sess := &fakeSessionsRepo{
		findOut: &models.RefreshSession{AccountID: "a1", ExpiresAt: time.Now().Add(-time.Minute)},
	}
	s := newCredentialService(t, db, &fakeRepoManager{s: sess}, nil, nil)

	_, _, err := s.Refresh(context.Background(), "stale", "d")
	if !errors.Is(err, common.ErrRefreshTokenExpired) || !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want expired+bad request, got %v", err)
	}
}

func TestRefresh_LostRace(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	sess := &fakeSessionsRepo{
		findOut:  &models.RefreshSession{AccountID: "a1", ExpiresAt: time.Now().Add(time.Hour)},
		consumed: false,
	}
	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, s: sess}, nil, nil)

	_, _, err := s.Refresh(context.Background(), "raced", "d")
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("loser of a concurrent rotation must fail: %v", err)
	}
	if len(sess.upserts) != 0 {
		t.Fatalf("loser must not store a session: %v", sess.upserts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

// --- password reset ---

func TestRequestPasswordReset_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmail: &models.Account{ID: "a1", Email: "a@b.c"}}
	r := &fakeResetsRepo{}
	n := &fakeNotifier{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, r: r}, nil, n)

	if err := s.RequestPasswordReset(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("RequestPasswordReset error: %v", err)
	}
	if len(r.created) != 1 || !strings.HasPrefix(r.created[0], "a1 h:") {
		t.Fatalf("token must be stored hashed: %v", r.created)
	}
	if len(n.resetLinks) != 1 || !strings.Contains(n.resetLinks[0], "http://client.local/reset-password/") {
		t.Fatalf("bad reset link: %v", n.resetLinks)
	}
	// the raw token in the link must verify against the stored hash
	raw := n.resetLinks[0][strings.LastIndex(n.resetLinks[0], "/")+1:]
	if "h:"+raw != strings.Fields(r.created[0])[1] {
		t.Fatalf("stored hash does not match mailed token")
	}
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byEmailErr: common.ErrNotFound}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	err := s.RequestPasswordReset(context.Background(), "ghost@b.c")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResetPassword_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	r := &fakeResetsRepo{active: []*models.ResetRequest{
		{AccountID: "other", TokenHash: "h:not-it"},
		{AccountID: "a1", TokenHash: "h:tok"},
	}}
	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1"}}
	sess := &fakeSessionsRepo{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, r: r, s: sess}, nil, nil)

	if err := s.ResetPassword(context.Background(), "tok", "newpass"); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if a.newHash != "h:newpass" {
		t.Fatalf("password not replaced: %q", a.newHash)
	}
	if len(r.deletedFor) != 1 || r.deletedFor[0] != "a1" {
		t.Fatalf("all reset requests must be deleted: %v", r.deletedFor)
	}
	if len(sess.deletedAll) != 1 || sess.deletedAll[0] != "a1" {
		t.Fatalf("all sessions must be revoked: %v", sess.deletedAll)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestResetPassword_NoMatch(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	r := &fakeResetsRepo{active: []*models.ResetRequest{{AccountID: "a1", TokenHash: "h:other"}}}
	s := newCredentialService(t, db, &fakeRepoManager{r: r}, nil, nil)

	err := s.ResetPassword(context.Background(), "tok", "newpass")
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestResetPassword_RevokeFailureRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	r := &fakeResetsRepo{active: []*models.ResetRequest{{AccountID: "a1", TokenHash: "h:tok"}}}
	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1"}}
	sess := &fakeSessionsRepo{deleteAllErr: errBoom{}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, r: r, s: sess}, nil, nil)

	if err := s.ResetPassword(context.Background(), "tok", "newpass"); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

// --- profile updates ---

func TestChangeUsername(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1", PasswordHash: "h:pass"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	if err := s.ChangeUsername(context.Background(), "a1", "neo", "pass"); err != nil {
		t.Fatalf("ChangeUsername error: %v", err)
	}
	if a.newUsername != "neo" {
		t.Fatalf("username not updated: %q", a.newUsername)
	}

	if err := s.ChangeUsername(context.Background(), "a1", "neo", "wrong"); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest on wrong password, got %v", err)
	}
}

func TestChangePassword_KeepsSessions(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1", PasswordHash: "h:old"}}
	sess := &fakeSessionsRepo{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, s: sess}, nil, nil)

	if err := s.ChangePassword(context.Background(), "a1", "old", "new"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if a.newHash != "h:new" {
		t.Fatalf("password not replaced: %q", a.newHash)
	}
	if len(sess.deletedAll) != 0 {
		t.Fatalf("voluntary password change must not revoke sessions")
	}
}

// --- email change ---

func TestRequestEmailChange_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1", Email: "old@b.c", PasswordHash: "h:pass"}, byEmailErr: common.ErrNotFound}
	e := &fakeEmailChangesRepo{byEmailErr: common.ErrNotFound}
	n := &fakeNotifier{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, e: e}, nil, n)

	if err := s.RequestEmailChange(context.Background(), "a1", "New@B.C", "pass"); err != nil {
		t.Fatalf("RequestEmailChange error: %v", err)
	}
	if a.pairID != "a1" || len(a.pairCode) != 6 || a.pairLink == "" {
		t.Fatalf("activation pair not regenerated: %+v", a)
	}
	if len(e.created) != 1 || e.created[0] != "a1 new@b.c" {
		t.Fatalf("pending change not recorded: %v", e.created)
	}
	// the link goes to the current address, not the proposed one
	if len(n.changeLinks) != 1 || !strings.HasPrefix(n.changeLinks[0], "old@b.c http://client.local/changeEmail/") {
		t.Fatalf("bad change link: %v", n.changeLinks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRequestEmailChange_Collisions(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	// another account already has this pending
	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1", PasswordHash: "h:pass"}}
	e := &fakeEmailChangesRepo{byEmail: &models.PendingEmailChange{AccountID: "a2", NewEmail: "new@b.c"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, e: e}, nil, nil)
	if err := s.RequestEmailChange(context.Background(), "a1", "new@b.c", "pass"); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("pending collision: want ErrBadRequest, got %v", err)
	}

	// an account already owns this email
	a2 := &fakeAccountsRepo{byID: &models.Account{ID: "a1", PasswordHash: "h:pass"}, byEmail: &models.Account{ID: "a2"}}
	e2 := &fakeEmailChangesRepo{byEmailErr: common.ErrNotFound}
	s2 := newCredentialService(t, db, &fakeRepoManager{a: a2, e: e2}, nil, nil)
	if err := s2.RequestEmailChange(context.Background(), "a1", "new@b.c", "pass"); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("account collision: want ErrBadRequest, got %v", err)
	}
}

func TestResendChangeEmailCode(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "123456"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code}}
	e := &fakeEmailChangesRepo{byAccount: &models.PendingEmailChange{AccountID: "a1", NewEmail: "new@b.c"}}
	n := &fakeNotifier{}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, e: e}, nil, n)

	if err := s.ResendChangeEmailCode(context.Background(), "link-1"); err != nil {
		t.Fatalf("ResendChangeEmailCode error: %v", err)
	}
	if len(n.codes) != 1 || n.codes[0] != "new@b.c 123456" {
		t.Fatalf("code must go to the proposed address: %v", n.codes)
	}
}

func TestResendChangeEmailCode_NoPending(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "123456"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code}}
	e := &fakeEmailChangesRepo{byAccountErr: common.ErrNotFound}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, e: e}, nil, nil)

	if err := s.ResendChangeEmailCode(context.Background(), "link-1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestConfirmEmailChange_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	code := "123456"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code}}
	e := &fakeEmailChangesRepo{byAccount: &models.PendingEmailChange{AccountID: "a1", NewEmail: "new@b.c"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, e: e}, nil, nil)

	email, err := s.ConfirmEmailChange(context.Background(), "link-1", "123456")
	if err != nil {
		t.Fatalf("ConfirmEmailChange error: %v", err)
	}
	if email != "new@b.c" || a.committedEmail != "new@b.c" {
		t.Fatalf("email not committed: %q %q", email, a.committedEmail)
	}
	if len(e.deletedFor) != 1 || e.deletedFor[0] != "a1" {
		t.Fatalf("pending row must be deleted: %v", e.deletedFor)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestConfirmEmailChange_WrongCode(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "123456"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	if _, err := s.ConfirmEmailChange(context.Background(), "link-1", "999999"); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

func TestConfirmEmailChange_NoPending(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	code := "123456"
	a := &fakeAccountsRepo{byLink: &models.Account{ID: "a1", ActivationCode: &code}}
	e := &fakeEmailChangesRepo{byAccountErr: common.ErrNotFound}
	s := newCredentialService(t, db, &fakeRepoManager{a: a, e: e}, nil, nil)

	if _, err := s.ConfirmEmailChange(context.Background(), "link-1", "123456"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// --- bearer resolution ---

func TestGetAccountFromBearer(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	a := &fakeAccountsRepo{byID: &models.Account{ID: "a1"}}
	s := newCredentialService(t, db, &fakeRepoManager{a: a}, nil, nil)

	token, err := auth.GenerateAccessToken("a1", []byte("k"), time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	account, err := s.GetAccountFromBearer(context.Background(), "Bearer "+token)
	if err != nil || account.ID != "a1" {
		t.Fatalf("bearer resolve: (%+v, %v)", account, err)
	}

	for _, header := range []string{"", "Bearer", "Bearer bad.token.here", "Bearer " + token + " extra"} {
		if _, err := s.GetAccountFromBearer(context.Background(), header); !errors.Is(err, common.ErrUnauthorized) {
			t.Fatalf("header %q: want ErrUnauthorized, got %v", header, err)
		}
	}
}
