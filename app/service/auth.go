package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playshelf/playshelf-api/app/dto"
	"github.com/playshelf/playshelf-api/app/entity"
	"github.com/playshelf/playshelf-api/app/mailer"
	"github.com/playshelf/playshelf-api/app/repository"
	"github.com/playshelf/playshelf-api/app/token"
	"github.com/playshelf/playshelf-api/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrUserNotFound      = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must not tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
	// ErrResetTokenInvalid covers unknown, consumed and expired reset tokens
	// alike; the message must not reveal which.
	ErrResetTokenInvalid = errors.New("password reset token is invalid or has expired")
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByResetToken(ctx context.Context, resetToken string) (*entity.User, error)
	FindByShareID(ctx context.Context, shareID string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
	AttachGoogleID(ctx context.Context, userID uint64, googleID string) error
	SetShareIDIfAbsent(ctx context.Context, userID uint64, shareID string) (int64, error)
}

type AuthService struct {
	userRepo userRepository
	issuer   *token.Issuer
	mailer   mailer.Mailer
	cfg      *config.Config
}

func NewAuthService(userRepo userRepository, issuer *token.Issuer, m mailer.Mailer, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		issuer:   issuer,
		mailer:   m,
		cfg:      cfg,
	}
}

// Register creates a local account, or enables local login on an existing
// OAuth-only account with the same email (the upgrade path). An account that
// already has a password is a conflict.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*dto.AuthResult, error) {
	email = normalizeEmail(email)

	if err := s.cfg.PasswordPolicy.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var user *entity.User
	switch {
	case existing != nil && existing.HasPassword():
		return nil, ErrAlreadyRegistered
	case existing != nil:
		// OAuth-only account: attach the password, leave the rest alone.
		existing.PasswordHash = sql.NullString{String: string(hashedPassword), Valid: true}
		if err = s.userRepo.Update(ctx, existing); err != nil {
			return nil, err
		}
		user = existing
	default:
		now := time.Now()
		user = &entity.User{
			Email:        email,
			Name:         name,
			PasswordHash: sql.NullString{String: string(hashedPassword), Valid: true},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err = s.userRepo.Create(ctx, user); err != nil {
			// Two concurrent registrations can both pass the existence
			// check; the unique index decides, and the loser sees the
			// same conflict a sequential duplicate would.
			if repository.IsDuplicateEntry(err) {
				return nil, ErrAlreadyRegistered
			}
			return nil, err
		}
	}

	tokens, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*dto.AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, Tokens: tokens}, nil
}

// ForgotPassword stores a single-use reset token on the account and mails a
// reset link. Unknown emails return ErrUserNotFound; the handler answers
// with the same message either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	resetToken, err := generateResetToken()
	if err != nil {
		return err
	}

	user.ResetPasswordToken = sql.NullString{String: resetToken, Valid: true}
	user.ResetPasswordExpires = sql.NullTime{Time: time.Now().Add(s.cfg.ResetTokenTTL), Valid: true}
	if err = s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", s.cfg.FrontendURL, resetToken)
	if err = s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to send password reset email")
		return err
	}

	return nil
}

// ResetPassword consumes a reset token: the token and its expiry are checked
// as a unit, and both are cleared with the password write so the token can
// never be replayed.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	user, err := s.userRepo.FindByResetToken(ctx, resetToken)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrResetTokenInvalid
	}

	if !user.ResetPasswordExpires.Valid || user.ResetPasswordExpires.Time.Before(time.Now()) {
		return ErrResetTokenInvalid
	}

	if err = s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user.PasswordHash = sql.NullString{String: string(hashedPassword), Valid: true}
	user.ResetPasswordToken = sql.NullString{Valid: false}
	user.ResetPasswordExpires = sql.NullTime{Valid: false}

	return s.userRepo.Update(ctx, user)
}

func generateResetToken() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return hex.EncodeToString(secret), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
