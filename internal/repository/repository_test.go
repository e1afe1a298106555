// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
	"codeberg.org/oliverandrich/player-accounts/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := &models.User{
		Name:                   "ValidName",
		PasswordHash:           "hash",
		Email:                  "player@example.com",
		VerificationToken:      "tok",
		PasswordResetExpiresAt: 1234,
	}
	require.NoError(t, repo.Create(ctx, user))

	assert.NotZero(t, user.ID)
	assert.NotZero(t, user.CreatedAt)
	assert.Equal(t, "VALIDNAME", user.NormalizedName)
	assert.Equal(t, "PLAYER@EXAMPLE.COM", user.Email)

	stored, err := repo.FindByName(ctx, "validname")
	require.NoError(t, err)
	assert.Equal(t, "ValidName", stored.Name)
	assert.False(t, stored.Verified)
	assert.Nil(t, stored.PasswordResetHash)
	assert.Nil(t, stored.ExternalID)
	assert.Nil(t, stored.LastLogin)
	assert.Equal(t, int64(1234), stored.PasswordResetExpiresAt)
}

func TestCreate_Duplicates(t *testing.T) {
	tests := []struct {
		name    string
		second  models.User
		wantErr error
	}{
		{
			name:    "same name different case",
			second:  models.User{Name: "PLAYERONE", Email: "other@example.com"},
			wantErr: apperr.ErrDuplicateName,
		},
		{
			name:    "same email",
			second:  models.User{Name: "PlayerTwo", Email: "ONE@example.com"},
			wantErr: apperr.ErrDuplicateEmail,
		},
		{
			name:    "same external id",
			second:  models.User{Name: "PlayerTwo", Email: "two@example.com", ExternalID: ptr("7656")},
			wantErr: apperr.ErrDuplicateExternalID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, repo := testutil.NewTestDB(t)
			ctx := context.Background()

			first := &models.User{Name: "PlayerOne", Email: "one@example.com", ExternalID: ptr("7656")}
			require.NoError(t, repo.Create(ctx, first))

			second := tt.second
			err := repo.Create(ctx, &second)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_NullExternalIDsDoNotConflict(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")
	testutil.NewTestUser(t, repo, "PlayerTwo", "two@example.com")

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestFind_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.FindByName(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "email", nf.Key)
	assert.Equal(t, "NOBODY@EXAMPLE.COM", nf.Value)

	_, err = repo.FindByExternalID(ctx, "123")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFindByExternalID(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Name: "Steamy", Email: "s@example.com", ExternalID: ptr("7656119")}))

	user, err := repo.FindByExternalID(ctx, "7656119")
	require.NoError(t, err)
	assert.Equal(t, "Steamy", user.Name)
}

func TestDeleteByName(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")

	require.NoError(t, repo.DeleteByName(ctx, "playerone"))

	_, err := repo.FindByName(ctx, "PlayerOne")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = repo.DeleteByName(ctx, "PlayerOne")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkVerified(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")

	err := repo.MarkVerified(ctx, "one@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, repo.MarkVerified(ctx, "One@Example.com", user.VerificationToken))

	stored, err := repo.FindByEmail(ctx, "one@example.com")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestSetVerified(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")

	require.NoError(t, repo.SetVerified(ctx, "PlayerOne", true))
	stored, _ := repo.FindByName(ctx, "PlayerOne")
	assert.True(t, stored.Verified)

	require.NoError(t, repo.SetVerified(ctx, "PlayerOne", false))
	stored, _ = repo.FindByName(ctx, "PlayerOne")
	assert.False(t, stored.Verified)

	assert.ErrorIs(t, repo.SetVerified(ctx, "ghost", true), apperr.ErrNotFound)
}

func TestUpdateLastLogin(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")

	require.NoError(t, repo.UpdateLastLogin(ctx, "PlayerOne", 1700000000000))

	stored, err := repo.FindByName(ctx, "PlayerOne")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.Equal(t, int64(1700000000000), *stored.LastLogin)
}

func TestPasswordReset_IssueAndConsume(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")

	require.NoError(t, repo.IssuePasswordReset(ctx, "one@example.com", "reset-hash", 5000))

	stored, _ := repo.FindByEmail(ctx, "one@example.com")
	require.NotNil(t, stored.PasswordResetHash)
	assert.Equal(t, "reset-hash", *stored.PasswordResetHash)
	assert.Equal(t, int64(5000), stored.PasswordResetExpiresAt)

	err := repo.ConsumePasswordReset(ctx, "one@example.com", "other-hash", "new-password-hash", 6000)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, repo.ConsumePasswordReset(ctx, "one@example.com", "reset-hash", "new-password-hash", 6000))

	stored, _ = repo.FindByEmail(ctx, "one@example.com")
	assert.Nil(t, stored.PasswordResetHash)
	assert.Equal(t, int64(6000), stored.PasswordResetExpiresAt)
	assert.Equal(t, "new-password-hash", stored.PasswordHash)

	err = repo.ConsumePasswordReset(ctx, "one@example.com", "reset-hash", "again", 7000)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIssuePasswordReset_UnknownEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	err := repo.IssuePasswordReset(context.Background(), "ghost@example.com", "h", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	testutil.NewTestUser(t, repo, "PlayerOne", "one@example.com")
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
