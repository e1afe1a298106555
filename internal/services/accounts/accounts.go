// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package accounts implements the account lifecycle (Manager) and the
// provisioning saga that keeps accounts and remote stats records in step
// (Provisioner).
package accounts

import (
	"context"

	"codeberg.org/oliverandrich/player-accounts/internal/models"
	"codeberg.org/oliverandrich/player-accounts/internal/services/stats"
)

// Store persists accounts. Lookups that match nothing return an error
// matching apperr.ErrNotFound; Create reports uniqueness conflicts with the
// apperr duplicate errors.
type Store interface {
	FindByName(ctx context.Context, name string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	DeleteByName(ctx context.Context, name string) error
	MarkVerified(ctx context.Context, email, token string) error
	SetVerified(ctx context.Context, name string, verified bool) error
	UpdateLastLogin(ctx context.Context, name string, at int64) error
	IssuePasswordReset(ctx context.Context, email, tokenHash string, expiresAt int64) error
	ConsumePasswordReset(ctx context.Context, email, tokenHash, passwordHash string, clearedAt int64) error
	Count(ctx context.Context) (int64, error)
}

// StatsService owns the per-player stats records.
type StatsService interface {
	CreateStats(ctx context.Context, playerName string) error
	DeleteStats(ctx context.Context, playerName string) error
	GetStats(ctx context.Context, playerName string) (map[string]any, error)
	EditStats(ctx context.Context, edit stats.Edit) (map[string]any, error)
}

// Notifier sends the account mails.
type Notifier interface {
	SendVerification(ctx context.Context, user *models.User) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// IdentityVerifier resolves an external session ticket to an external id.
type IdentityVerifier interface {
	Verify(ctx context.Context, ticket string) (string, error)
}
