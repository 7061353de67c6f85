package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/playshelf/playshelf-api/app/entity"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// IsDuplicateEntry reports whether err is a MySQL unique-index violation.
// The unique keys on email, google_id and share_id are the safety net for
// concurrent writers racing past an existence check.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, google_id, password_hash, avatar, share_id,
		       reset_password_token, reset_password_expires, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (email, name, google_id, password_hash, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.Name,
		user.GoogleID,
		user.PasswordHash,
		user.Avatar,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE email = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindByResetToken(ctx context.Context, token string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE reset_password_token = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *UserRepository) FindByShareID(ctx context.Context, shareID string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE share_id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, shareID))
}

func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	query := `
		UPDATE users SET
			email = ?,
			name = ?,
			google_id = ?,
			password_hash = ?,
			avatar = ?,
			reset_password_token = ?,
			reset_password_expires = ?,
			updated_at = ?
		WHERE id = ?
	`
	user.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.Name,
		user.GoogleID,
		user.PasswordHash,
		user.Avatar,
		user.ResetPasswordToken,
		user.ResetPasswordExpires,
		user.UpdatedAt,
		user.ID,
	)
	return err
}

// AttachGoogleID links a provider identity to an existing local account
// without touching its password or avatar.
func (r *UserRepository) AttachGoogleID(ctx context.Context, userID uint64, googleID string) error {
	query := `UPDATE users SET google_id = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, googleID, time.Now(), userID)
	return err
}

// SetShareIDIfAbsent assigns a share identifier only if none exists yet.
// A zero rows-affected result means another request won the race; the
// caller re-reads the row and uses the winner's value.
func (r *UserRepository) SetShareIDIfAbsent(ctx context.Context, userID uint64, shareID string) (int64, error) {
	query := `UPDATE users SET share_id = ?, updated_at = ? WHERE id = ? AND share_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, shareID, time.Now(), userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *UserRepository) scanOne(row *sql.Row) (*entity.User, error) {
	user := &entity.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.GoogleID,
		&user.PasswordHash,
		&user.Avatar,
		&user.ShareID,
		&user.ResetPasswordToken,
		&user.ResetPasswordExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
