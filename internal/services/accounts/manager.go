// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
	"codeberg.org/oliverandrich/player-accounts/internal/services/auth"
)

// DefaultResetTTL is how long a password reset token stays valid.
const DefaultResetTTL = 4 * time.Hour

// CreateRequest is the input of account creation.
type CreateRequest struct {
	Name       string
	Password   string
	Email      string
	BirthDate  time.Time
	ExternalID string // optional
}

// ResetRequest is the input of password reset consumption.
type ResetRequest struct {
	Email       string
	Token       string
	NewPassword string
}

// Deps holds the collaborators of a Manager.
type Deps struct {
	Store     Store
	Validator *auth.Validator
	Hasher    auth.Hasher
	Tokens    auth.TokenGenerator
	Verifier  IdentityVerifier // optional, needed for ticket logins
	Clock     func() time.Time
	ResetTTL  time.Duration
}

// Manager owns the account lifecycle: creation, authentication, deletion,
// email verification and password reset.
type Manager struct {
	store     Store
	validator *auth.Validator
	hasher    auth.Hasher
	tokens    auth.TokenGenerator
	verifier  IdentityVerifier
	now       func() time.Time
	resetTTL  time.Duration
}

// NewManager creates a Manager.
func NewManager(d Deps) *Manager {
	m := &Manager{
		store:     d.Store,
		validator: d.Validator,
		hasher:    d.Hasher,
		tokens:    d.Tokens,
		verifier:  d.Verifier,
		now:       d.Clock,
		resetTTL:  d.ResetTTL,
	}
	if m.validator == nil {
		m.validator = auth.NewValidator(auth.DefaultRules())
	}
	if m.tokens == nil {
		m.tokens = auth.UUIDGenerator{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.resetTTL <= 0 {
		m.resetTTL = DefaultResetTTL
	}
	return m
}

// CreateAccount validates the request and stores a new unverified account.
// Validators run in order name, password, email, birth date, external id
// and the first failure is returned.
func (m *Manager) CreateAccount(ctx context.Context, req CreateRequest) (*models.User, error) {
	now := m.now()

	if err := m.validator.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := m.validator.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if err := m.validator.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := m.validator.ValidateBirthDate(req.BirthDate, now); err != nil {
		return nil, err
	}

	var externalID *string
	if req.ExternalID != "" {
		if err := m.validator.ValidateExternalID(req.ExternalID); err != nil {
			return nil, err
		}
		externalID = &req.ExternalID
	}

	hash, err := auth.HashSecret(ctx, m.hasher, req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:                   req.Name,
		PasswordHash:           hash,
		Email:                  req.Email,
		ExternalID:             externalID,
		VerificationToken:      m.tokens.NewToken(),
		Verified:               false,
		PasswordResetExpiresAt: now.UnixMilli(),
	}
	if err := m.store.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("account_created", "name", user.Name, "email", user.Email)
	return user, nil
}

// AuthenticateByName logs a player in by name and password.
func (m *Manager) AuthenticateByName(ctx context.Context, name, password string) (*models.User, error) {
	user, err := m.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.authenticate(ctx, user, password)
}

// AuthenticateByEmail logs a player in by email and password.
func (m *Manager) AuthenticateByEmail(ctx context.Context, email, password string) (*models.User, error) {
	user, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return m.authenticate(ctx, user, password)
}

// authenticate checks the secret before the verified flag so an unverified
// account does not reveal itself to a wrong password.
func (m *Manager) authenticate(ctx context.Context, user *models.User, password string) (*models.User, error) {
	ok, err := auth.VerifySecret(ctx, m.hasher, password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("login_failed", "name", user.Name, "reason", "bad_password")
		return nil, apperr.ErrBadPassword
	}
	return m.completeLogin(ctx, user)
}

func (m *Manager) completeLogin(ctx context.Context, user *models.User) (*models.User, error) {
	if !user.Verified {
		slog.Warn("login_failed", "name", user.Name, "reason", "unverified")
		return nil, apperr.ErrUnverified
	}

	at := m.now().UnixMilli()
	if err := m.store.UpdateLastLogin(ctx, user.Name, at); err != nil {
		return nil, err
	}
	user.LastLogin = &at

	slog.Info("login_success", "name", user.Name)
	return user, nil
}

// AuthenticateExternal logs a player in by an already verified external id.
func (m *Manager) AuthenticateExternal(ctx context.Context, externalID string) (*models.User, error) {
	user, err := m.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return m.completeLogin(ctx, user)
}

// AuthenticateTicket resolves an external session ticket and logs the
// matching player in.
func (m *Manager) AuthenticateTicket(ctx context.Context, ticket string) (*models.User, error) {
	externalID, err := m.ResolveTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	return m.AuthenticateExternal(ctx, externalID)
}

// ResolveTicket returns the external id an external session ticket was
// issued for.
func (m *Manager) ResolveTicket(ctx context.Context, ticket string) (string, error) {
	if m.verifier == nil {
		return "", apperr.ErrIdentityRejected
	}
	return m.verifier.Verify(ctx, ticket)
}

// DeleteAccount removes an account.
func (m *Manager) DeleteAccount(ctx context.Context, name string) error {
	if err := m.store.DeleteByName(ctx, name); err != nil {
		return err
	}
	slog.Info("account_deleted", "name", name)
	return nil
}

// VerifyEmail marks the account verified when email and token both match.
// A mismatch does not reveal which of the two was wrong.
func (m *Manager) VerifyEmail(ctx context.Context, email, token string) (*models.User, error) {
	err := m.store.MarkVerified(ctx, email, token)
	if errors.Is(err, apperr.ErrNotFound) {
		slog.Warn("email_verification_failed", "email", email)
		return nil, apperr.ErrVerificationFailed
	}
	if err != nil {
		return nil, err
	}

	slog.Info("email_verified", "email", email)
	return m.store.FindByEmail(ctx, email)
}

// IssuePasswordReset starts a password reset and returns the raw token.
// Only its hash is stored. A later issue replaces an earlier one.
func (m *Manager) IssuePasswordReset(ctx context.Context, email string) (string, error) {
	token := m.tokens.NewToken()
	hash, err := auth.HashSecret(ctx, m.hasher, token)
	if err != nil {
		return "", err
	}

	expiresAt := m.now().Add(m.resetTTL).UnixMilli()
	if err := m.store.IssuePasswordReset(ctx, email, hash, expiresAt); err != nil {
		return "", err
	}

	slog.Info("password_reset_issued", "email", email)
	return token, nil
}

// ConsumePasswordReset installs a new password when the reset token is
// active, unexpired and matches. Failures leave the issued reset in place.
func (m *Manager) ConsumePasswordReset(ctx context.Context, req ResetRequest) error {
	if err := m.validator.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := m.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return err
	}

	now := m.now()
	if !user.HasActiveReset() {
		return apperr.ErrResetInvalid
	}
	if user.ResetExpired(now) {
		slog.Warn("password_reset_failed", "email", user.Email, "reason", "expired")
		return apperr.ErrResetExpired
	}

	ok, err := auth.VerifySecret(ctx, m.hasher, req.Token, *user.PasswordResetHash)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("password_reset_failed", "email", user.Email, "reason", "token_mismatch")
		return apperr.ErrResetInvalid
	}

	hash, err := auth.HashSecret(ctx, m.hasher, req.NewPassword)
	if err != nil {
		return err
	}

	err = m.store.ConsumePasswordReset(ctx, user.Email, *user.PasswordResetHash, hash, now.UnixMilli())
	if errors.Is(err, apperr.ErrNotFound) {
		// consumed concurrently
		return apperr.ErrResetInvalid
	}
	if err != nil {
		return err
	}

	slog.Info("password_reset_completed", "email", user.Email)
	return nil
}

// GetByName returns the account with the given name.
func (m *Manager) GetByName(ctx context.Context, name string) (*models.User, error) {
	return m.store.FindByName(ctx, name)
}

// GetByEmail returns the account with the given email.
func (m *Manager) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.store.FindByEmail(ctx, email)
}

// SetVerified overrides the verified flag and returns the updated account.
func (m *Manager) SetVerified(ctx context.Context, name string, verified bool) (*models.User, error) {
	if err := m.store.SetVerified(ctx, name, verified); err != nil {
		return nil, err
	}
	slog.Info("verified_overridden", "name", name, "verified", verified)
	return m.store.FindByName(ctx, name)
}

// Count returns the number of accounts.
func (m *Manager) Count(ctx context.Context) (int64, error) {
	return m.store.Count(ctx)
}
