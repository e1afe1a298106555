// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
)

func TestClassifyDuplicateMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{`E11000 duplicate key error collection: maestros.users index: email_1 dup key: { email: "A@B.CO" }`, apperr.ErrDuplicateEmail},
		{`E11000 duplicate key error collection: maestros.users index: steamId_1 dup key: { steamId: "1" }`, apperr.ErrDuplicateExternalID},
		{`E11000 duplicate key error collection: maestros.users index: uniqueName_1 dup key: { uniqueName: "X" }`, apperr.ErrDuplicateName},
		{`E11000 duplicate key error collection: maestros.users index: name_1 dup key: { name: "x" }`, apperr.ErrDuplicateName},
		{`E11000 duplicate key error collection: maestros.users index: other_1 dup key`, apperr.ErrCreateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.want.Error(), func(t *testing.T) {
			assert.ErrorIs(t, classifyDuplicateMessage(tt.msg), tt.want)
		})
	}
}

func TestClassifyMongoCreateError_NotDuplicate(t *testing.T) {
	err := classifyMongoCreateError(errors.New("connection reset"))

	var infra *apperr.InfrastructureError
	assert.ErrorAs(t, err, &infra)
}

func TestClassifyCreateError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"constraint failed: UNIQUE constraint failed: users.email (2067)", apperr.ErrDuplicateEmail},
		{"constraint failed: UNIQUE constraint failed: users.external_id (2067)", apperr.ErrDuplicateExternalID},
		{"constraint failed: UNIQUE constraint failed: users.normalized_name (2067)", apperr.ErrDuplicateName},
		{"constraint failed: UNIQUE constraint failed: users.name (2067)", apperr.ErrDuplicateName},
		{"constraint failed: UNIQUE constraint failed: users.id (1555)", apperr.ErrCreateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.ErrorIs(t, classifyCreateError(errors.New(tt.msg)), tt.want)
		})
	}
}

func TestUserDocument_RoundTrip(t *testing.T) {
	steamID := "7656"
	resetHash := "hash"
	user := &models.User{
		Name:                   "ValidName",
		NormalizedName:         "VALIDNAME",
		PasswordHash:           "pw",
		Email:                  "A@B.CO",
		ExternalID:             &steamID,
		VerificationToken:      "tok",
		PasswordResetHash:      &resetHash,
		PasswordResetExpiresAt: 42,
	}

	doc := documentFromModel(user)
	doc.ID = primitive.NewObjectIDFromTimestamp(time.Unix(1700000000, 0))
	back := doc.toModel()

	assert.Equal(t, user.Name, back.Name)
	assert.Equal(t, user.NormalizedName, back.NormalizedName)
	assert.Equal(t, user.ExternalID, back.ExternalID)
	assert.Equal(t, user.PasswordResetHash, back.PasswordResetHash)
	assert.Equal(t, int64(42), back.PasswordResetExpiresAt)
	assert.Equal(t, int64(1700000000), back.CreatedAt.Unix())
}

// TestMongoRepository runs against a live server when MONGO_TEST_URI is set.
func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()

	repo, client, err := ConnectMongo(ctx, uri, "player_accounts_test", "users")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Database("player_accounts_test").Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	user := &models.User{Name: "PlayerOne", PasswordHash: "pw", Email: "one@example.com", VerificationToken: "tok"}
	require.NoError(t, repo.Create(ctx, user))

	err = repo.Create(ctx, &models.User{Name: "playerone", Email: "two@example.com"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)

	err = repo.Create(ctx, &models.User{Name: "PlayerTwo", Email: "ONE@example.com"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)

	require.NoError(t, repo.MarkVerified(ctx, "one@example.com", "tok"))
	stored, err := repo.FindByName(ctx, "PLAYERONE")
	require.NoError(t, err)
	assert.True(t, stored.Verified)

	require.NoError(t, repo.IssuePasswordReset(ctx, "one@example.com", "rh", 10))
	require.NoError(t, repo.ConsumePasswordReset(ctx, "one@example.com", "rh", "pw2", 11))
	assert.ErrorIs(t, repo.ConsumePasswordReset(ctx, "one@example.com", "rh", "pw3", 12), apperr.ErrNotFound)

	require.NoError(t, repo.DeleteByName(ctx, "PlayerOne"))
	assert.ErrorIs(t, repo.DeleteByName(ctx, "PlayerOne"), apperr.ErrNotFound)
}
