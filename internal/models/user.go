// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strings"
	"time"
)

// User is a player account.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID                     int64     `db:"id" json:"-"`
	Name                   string    `db:"name" json:"name"`
	NormalizedName         string    `db:"normalized_name" json:"-"`
	PasswordHash           string    `db:"password_hash" json:"-"`
	Email                  string    `db:"email" json:"email"`
	ExternalID             *string   `db:"external_id" json:"external_id,omitempty"`
	VerificationToken      string    `db:"verification_token" json:"-"`
	Verified               bool      `db:"verified" json:"verified"`
	PasswordResetHash      *string   `db:"password_reset_hash" json:"-"`           // nil: no active reset
	PasswordResetExpiresAt int64     `db:"password_reset_expires_at" json:"-"`     // epoch millis
	LastLogin              *int64    `db:"last_login" json:"last_login,omitempty"` // epoch millis
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}

// HasActiveReset reports whether a password reset has been issued and not
// yet consumed.
func (u *User) HasActiveReset() bool {
	return u.PasswordResetHash != nil
}

// ResetExpired reports whether the issued reset is past its expiry at now.
func (u *User) ResetExpired(now time.Time) bool {
	return now.UnixMilli() > u.PasswordResetExpiresAt
}

// NormalizeName returns the unique lookup form of a player name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NormalizeEmail returns the stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}
