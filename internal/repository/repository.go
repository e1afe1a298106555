// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository persists player accounts. Repository is the SQLite
// backend, MongoRepository the MongoDB backend. Both normalize names and
// emails before every lookup and report failures with the apperr taxonomy.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
)

// Repository stores accounts in SQLite.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying connection for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

const userColumns = `id, name, normalized_name, password_hash, email, external_id,
	verification_token, verified, password_reset_hash, password_reset_expires_at,
	last_login, created_at`

func (r *Repository) findOne(ctx context.Context, key, value, where string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE `+where, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(key, value)
	}
	if err != nil {
		return nil, apperr.Infra("find user by "+key, err)
	}
	return &user, nil
}

// FindByName looks an account up by its normalized name.
func (r *Repository) FindByName(ctx context.Context, name string) (*models.User, error) {
	return r.findOne(ctx, "name", models.NormalizeName(name), "normalized_name = ?")
}

// FindByEmail looks an account up by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", models.NormalizeEmail(email), "email = ?")
}

// FindByExternalID looks an account up by its external identity.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.findOne(ctx, "external_id", externalID, "external_id = ?")
}

// Create inserts a new account and fills in its ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	user.NormalizedName = models.NormalizeName(user.Name)
	user.Email = models.NormalizeEmail(user.Email)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, normalized_name, password_hash, email, external_id,
			verification_token, verified, password_reset_hash, password_reset_expires_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Name, user.NormalizedName, user.PasswordHash, user.Email, user.ExternalID,
		user.VerificationToken, user.Verified, user.PasswordResetHash, user.PasswordResetExpiresAt, user.LastLogin)
	if err != nil {
		return classifyCreateError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return apperr.Infra("create user", err)
	}
	user.ID = id

	if err := r.db.GetContext(ctx, &user.CreatedAt, `SELECT created_at FROM users WHERE id = ?`, id); err != nil {
		return apperr.Infra("create user", err)
	}
	return nil
}

// DeleteByName removes the account with the given name.
func (r *Repository) DeleteByName(ctx context.Context, name string) error {
	normalized := models.NormalizeName(name)
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE normalized_name = ?`, normalized)
	return r.expectOne(res, err, "delete user", "name", normalized)
}

// MarkVerified sets verified on the account whose email and verification
// token both match.
func (r *Repository) MarkVerified(ctx context.Context, email, token string) error {
	normalized := models.NormalizeEmail(email)
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verified = 1 WHERE email = ? AND verification_token = ?`, normalized, token)
	return r.expectOne(res, err, "verify email", "email", normalized)
}

// SetVerified overrides the verified flag of an account.
func (r *Repository) SetVerified(ctx context.Context, name string, verified bool) error {
	normalized := models.NormalizeName(name)
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verified = ? WHERE normalized_name = ?`, verified, normalized)
	return r.expectOne(res, err, "set verified", "name", normalized)
}

// UpdateLastLogin records a successful login at epoch millis at.
func (r *Repository) UpdateLastLogin(ctx context.Context, name string, at int64) error {
	normalized := models.NormalizeName(name)
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE normalized_name = ?`, at, normalized)
	return r.expectOne(res, err, "update last login", "name", normalized)
}

// IssuePasswordReset stores the hash of a fresh reset token, replacing any
// earlier one.
func (r *Repository) IssuePasswordReset(ctx context.Context, email, tokenHash string, expiresAt int64) error {
	normalized := models.NormalizeEmail(email)
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_reset_hash = ?, password_reset_expires_at = ? WHERE email = ?`,
		tokenHash, expiresAt, normalized)
	return r.expectOne(res, err, "issue password reset", "email", normalized)
}

// ConsumePasswordReset installs a new password hash and clears the reset in
// one statement. It only matches while tokenHash is still the active reset,
// so two concurrent consumers cannot both succeed.
func (r *Repository) ConsumePasswordReset(ctx context.Context, email, tokenHash, passwordHash string, clearedAt int64) error {
	normalized := models.NormalizeEmail(email)
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, password_reset_hash = NULL, password_reset_expires_at = ?
		WHERE email = ? AND password_reset_hash = ?`,
		passwordHash, clearedAt, normalized, tokenHash)
	return r.expectOne(res, err, "consume password reset", "email", normalized)
}

// Count returns the number of accounts.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users`); err != nil {
		return 0, apperr.Infra("count users", err)
	}
	return count, nil
}

func (r *Repository) expectOne(res sql.Result, err error, op, key, value string) error {
	if err != nil {
		return apperr.Infra(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Infra(op, err)
	}
	if n == 0 {
		return apperr.NotFound(key, value)
	}
	return nil
}

// uniqueColumns lists the constrained columns in the order conflicts are
// reported.
var uniqueColumns = []struct {
	column string
	err    error
}{
	{"users.email", apperr.ErrDuplicateEmail},
	{"users.external_id", apperr.ErrDuplicateExternalID},
	{"users.normalized_name", apperr.ErrDuplicateName},
	{"users.name", apperr.ErrDuplicateName},
}

// classifyCreateError maps a failed insert to the duplicate error of the
// offending column.
func classifyCreateError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return apperr.Infra("create user", err)
	}
	for _, u := range uniqueColumns {
		if strings.Contains(msg, u.column) {
			return u.err
		}
	}
	return apperr.ErrCreateFailed
}
