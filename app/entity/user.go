package entity

import (
	"database/sql"
	"time"
)

// User is the single account record: local (password) accounts, Google
// accounts, and merged accounts all share one row keyed by email.
type User struct {
	ID                   uint64
	Email                string
	Name                 string
	GoogleID             sql.NullString
	PasswordHash         sql.NullString
	Avatar               sql.NullString
	ShareID              sql.NullString
	ResetPasswordToken   sql.NullString
	ResetPasswordExpires sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasPassword reports whether local login is enabled for this account.
// OAuth-only accounts have no hash until the upgrade path sets one.
func (u *User) HasPassword() bool {
	return u.PasswordHash.Valid && u.PasswordHash.String != ""
}

func (u *User) AvatarURL() string {
	if u.Avatar.Valid {
		return u.Avatar.String
	}
	return ""
}
