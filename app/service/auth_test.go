package service_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/playshelf/playshelf-api/app/repository"
	"github.com/playshelf/playshelf-api/app/service"
	"github.com/playshelf/playshelf-api/app/token"
	"github.com/playshelf/playshelf-api/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

const (
	findByEmailQuery      = `(?s)SELECT id, email, name, google_id, password_hash, avatar, share_id,\s+reset_password_token, reset_password_expires, created_at, updated_at\s+FROM users WHERE email = \?`
	findByIDQuery         = `(?s)SELECT id, email, name, google_id, password_hash, avatar, share_id,\s+reset_password_token, reset_password_expires, created_at, updated_at\s+FROM users WHERE id = \?`
	findByResetTokenQuery = `(?s)SELECT id, email, name, google_id, password_hash, avatar, share_id,\s+reset_password_token, reset_password_expires, created_at, updated_at\s+FROM users WHERE reset_password_token = \?`
	findByShareIDQuery    = `(?s)SELECT id, email, name, google_id, password_hash, avatar, share_id,\s+reset_password_token, reset_password_expires, created_at, updated_at\s+FROM users WHERE share_id = \?`
	insertUserQuery       = `(?s)INSERT INTO users \(email, name, google_id, password_hash, avatar, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?\)`
	updateUserQuery       = `(?s)UPDATE users SET\s+email = \?,\s+name = \?,\s+google_id = \?,\s+password_hash = \?,\s+avatar = \?,\s+reset_password_token = \?,\s+reset_password_expires = \?,\s+updated_at = \?\s+WHERE id = \?`
	attachGoogleIDQuery   = `UPDATE users SET google_id = \?, updated_at = \? WHERE id = \?`
	setShareIDQuery       = `UPDATE users SET share_id = \?, updated_at = \? WHERE id = \? AND share_id IS NULL`
)

var userColumns = []string{
	"id",
	"email",
	"name",
	"google_id",
	"password_hash",
	"avatar",
	"share_id",
	"reset_password_token",
	"reset_password_expires",
	"created_at",
	"updated_at",
}

// validPassword satisfies every rule of the default policy.
const validPassword = "Aa1!aaaa"

type userRowSpec struct {
	id           uint64
	email        string
	name         string
	googleID     sql.NullString
	passwordHash sql.NullString
	avatar       sql.NullString
	shareID      sql.NullString
	resetToken   sql.NullString
	resetExpires sql.NullTime
}

func (s userRowSpec) row() []driver.Value {
	now := time.Now()
	id := s.id
	if id == 0 {
		id = 1
	}
	email := s.email
	if email == "" {
		email = "user@example.com"
	}
	name := s.name
	if name == "" {
		name = "Alice"
	}
	return []driver.Value{
		id,
		email,
		name,
		s.googleID,
		s.passwordHash,
		s.avatar,
		s.shareID,
		s.resetToken,
		s.resetExpires,
		now,
		now,
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

type fakeMailer struct {
	calls int
	to    string
	url   string
	err   error
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, resetURL string) error {
	m.calls++
	m.to = to
	m.url = resetURL
	return m.err
}

func testConfig() *config.Config {
	return &config.Config{
		FrontendURL:   "http://localhost:5173",
		ResetTokenTTL: time.Hour,
		PasswordPolicy: config.PasswordPolicy{
			MinLength:        8,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireNumber:    true,
			RequireSpecial:   true,
		},
	}
}

func testIssuer() *token.Issuer {
	return token.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
}

func newAuthServiceWithMock(t *testing.T) (*service.AuthService, sqlmock.Sqlmock, *fakeMailer, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	m := &fakeMailer{}
	svc := service.NewAuthService(repository.NewUserRepository(db), testIssuer(), m, testConfig())
	return svc, mock, m, func() { _ = db.Close() }
}

func TestAuthService_Register_CreatesUser(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("new@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs("new@example.com", "Alice", sql.NullString{}, sqlmock.AnyArg(), sql.NullString{}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := svc.Register(context.Background(), "Alice", "new@example.com", validPassword)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.User.ID != 1 {
		t.Fatalf("expected user ID 1, got %d", res.User.ID)
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}

	claims, err := testIssuer().VerifyAccess(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.UserID != 1 || claims.Email != "new@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Register_NormalizesEmail(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("new@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs("new@example.com", "Alice", sql.NullString{}, sqlmock.AnyArg(), sql.NullString{}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if _, err := svc.Register(context.Background(), "Alice", "  New@Example.COM ", validPassword); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Register_Conflict(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash := hashPassword(t, validPassword)
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			passwordHash: sql.NullString{String: hash, Valid: true},
		}.row()...))

	_, err := svc.Register(context.Background(), "Alice", "user@example.com", validPassword)
	if !errors.Is(err, service.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Register_UpgradesOAuthOnlyAccount(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	googleID := sql.NullString{String: "google-123", Valid: true}
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			id:       5,
			googleID: googleID,
		}.row()...))
	mock.ExpectExec(updateUserQuery).
		WithArgs("user@example.com", "Alice", googleID, sqlmock.AnyArg(), sql.NullString{}, sql.NullString{}, sql.NullTime{}, sqlmock.AnyArg(), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := svc.Register(context.Background(), "Alice", "user@example.com", validPassword)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.User.ID != 5 {
		t.Fatalf("expected existing account to be kept, got ID %d", res.User.ID)
	}
	if res.User.GoogleID != googleID {
		t.Fatal("expected provider link to survive the upgrade")
	}
	if !res.User.HasPassword() {
		t.Fatal("expected password to be attached")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Register_DuplicateEntryRace(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := svc.Register(context.Background(), "Alice", "user@example.com", validPassword)
	if !errors.Is(err, service.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	svc, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	_, err := svc.Register(context.Background(), "Alice", "user@example.com", "Aa1!a")
	if !errors.Is(err, service.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if !strings.Contains(err.Error(), "at least 8 characters") {
		t.Fatalf("expected the failed rule in the message, got %q", err.Error())
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash := hashPassword(t, validPassword)
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			passwordHash: sql.NullString{String: hash, Valid: true},
		}.row()...))

	res, err := svc.Login(context.Background(), "User@Example.com", validPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.ID != 1 {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" {
		t.Fatal("expected tokens to be issued")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := svc.Login(context.Background(), "missing@example.com", validPassword)
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash := hashPassword(t, validPassword)
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			passwordHash: sql.NullString{String: hash, Valid: true},
		}.row()...))

	_, err := svc.Login(context.Background(), "user@example.com", "Wrong1!aaaa")
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_OAuthOnlyAccount(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			googleID: sql.NullString{String: "google-123", Valid: true},
		}.row()...))

	_, err := svc.Login(context.Background(), "user@example.com", validPassword)
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_ForgotPassword_SendsResetLink(t *testing.T) {
	svc, mock, m, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			passwordHash: sql.NullString{String: "hash", Valid: true},
		}.row()...))
	mock.ExpectExec(updateUserQuery).
		WithArgs("user@example.com", "Alice", sql.NullString{}, sqlmock.AnyArg(), sql.NullString{}, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ForgotPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}

	if m.calls != 1 {
		t.Fatalf("expected one reset email, got %d", m.calls)
	}
	if m.to != "user@example.com" {
		t.Fatalf("reset email sent to %q", m.to)
	}
	if !strings.HasPrefix(m.url, "http://localhost:5173/reset-password/") {
		t.Fatalf("unexpected reset URL %q", m.url)
	}
	if len(strings.TrimPrefix(m.url, "http://localhost:5173/reset-password/")) != 64 {
		t.Fatalf("expected 64 hex chars of token in %q", m.url)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ForgotPassword_UnknownEmail(t *testing.T) {
	svc, mock, m, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	err := svc.ForgotPassword(context.Background(), "missing@example.com")
	if !errors.Is(err, service.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if m.calls != 0 {
		t.Fatal("no email should be sent for an unknown address")
	}
}

func TestAuthService_ForgotPassword_MailerFailure(t *testing.T) {
	svc, mock, m, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	m.err = errors.New("smtp unavailable")

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{}.row()...))
	mock.ExpectExec(updateUserQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ForgotPassword(context.Background(), "user@example.com"); err == nil {
		t.Fatal("expected mailer failure to surface")
	}
}

func TestAuthService_ResetPassword_Success(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	resetToken := "abc123"
	mock.ExpectQuery(findByResetTokenQuery).
		WithArgs(resetToken).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			resetToken:   sql.NullString{String: resetToken, Valid: true},
			resetExpires: sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true},
		}.row()...))
	// Token and expiry must be cleared in the same write as the password.
	mock.ExpectExec(updateUserQuery).
		WithArgs("user@example.com", "Alice", sql.NullString{}, sqlmock.AnyArg(), sql.NullString{}, sql.NullString{}, sql.NullTime{}, sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ResetPassword(context.Background(), resetToken, validPassword); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ResetPassword_UnknownToken(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByResetTokenQuery).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userColumns))

	err := svc.ResetPassword(context.Background(), "missing", validPassword)
	if !errors.Is(err, service.ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestAuthService_ResetPassword_ExpiredToken(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByResetTokenQuery).
		WithArgs("stale").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			resetToken:   sql.NullString{String: "stale", Valid: true},
			resetExpires: sql.NullTime{Time: time.Now().Add(-time.Minute), Valid: true},
		}.row()...))

	err := svc.ResetPassword(context.Background(), "stale", validPassword)
	if !errors.Is(err, service.ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestAuthService_ResetPassword_WeakPassword(t *testing.T) {
	svc, mock, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByResetTokenQuery).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(userRowSpec{
			resetToken:   sql.NullString{String: "abc123", Valid: true},
			resetExpires: sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true},
		}.row()...))

	err := svc.ResetPassword(context.Background(), "abc123", "weak")
	if !errors.Is(err, service.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}
