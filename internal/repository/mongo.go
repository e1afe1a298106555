// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
)

// userDocument is the MongoDB shape of an account.
type userDocument struct { //nolint:govet // fieldalignment: readability over optimization
	ID                     primitive.ObjectID `bson:"_id,omitempty"`
	Name                   string             `bson:"name"`
	UniqueName             string             `bson:"uniqueName"`
	Password               string             `bson:"password"`
	Email                  string             `bson:"email"`
	SteamID                *string            `bson:"steamId,omitempty"`
	VerificationToken      string             `bson:"emailVerificationToken"`
	Verified               bool               `bson:"emailVerified"`
	PasswordResetHash      *string            `bson:"passwordResetToken"`
	PasswordResetExpiresAt int64              `bson:"passwordResetTokenExpiration"`
	LastLogin              *int64             `bson:"lastLogin,omitempty"`
}

func (d *userDocument) toModel() *models.User {
	return &models.User{
		Name:                   d.Name,
		NormalizedName:         d.UniqueName,
		PasswordHash:           d.Password,
		Email:                  d.Email,
		ExternalID:             d.SteamID,
		VerificationToken:      d.VerificationToken,
		Verified:               d.Verified,
		PasswordResetHash:      d.PasswordResetHash,
		PasswordResetExpiresAt: d.PasswordResetExpiresAt,
		LastLogin:              d.LastLogin,
		CreatedAt:              d.ID.Timestamp(),
	}
}

func documentFromModel(u *models.User) *userDocument {
	return &userDocument{
		Name:                   u.Name,
		UniqueName:             u.NormalizedName,
		Password:               u.PasswordHash,
		Email:                  u.Email,
		SteamID:                u.ExternalID,
		VerificationToken:      u.VerificationToken,
		Verified:               u.Verified,
		PasswordResetHash:      u.PasswordResetHash,
		PasswordResetExpiresAt: u.PasswordResetExpiresAt,
		LastLogin:              u.LastLogin,
	}
}

// MongoRepository stores accounts in a MongoDB collection.
type MongoRepository struct {
	users *mongo.Collection
}

// NewMongo wraps an existing collection.
func NewMongo(users *mongo.Collection) *MongoRepository {
	return &MongoRepository{users: users}
}

// ConnectMongo connects to uri, ensures the unique indexes on the account
// collection and returns the repository with the client for shutdown.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoRepository, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	repo := NewMongo(client.Database(database).Collection(collection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return repo, client, nil
}

// EnsureIndexes creates the uniqueness indexes. steamId is sparse because
// most accounts have no external identity.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	indexes := []mongo.IndexModel{
		unique("name"),
		unique("uniqueName"),
		unique("email"),
		{Keys: bson.D{{Key: "steamId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}
	if _, err := r.users.Indexes().CreateMany(ctx, indexes); err != nil {
		return apperr.Infra("create indexes", err)
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, key, value string, filter bson.M) (*models.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(key, value)
	}
	if err != nil {
		return nil, apperr.Infra("find user by "+key, err)
	}
	return doc.toModel(), nil
}

// FindByName looks an account up by its normalized name.
func (r *MongoRepository) FindByName(ctx context.Context, name string) (*models.User, error) {
	normalized := models.NormalizeName(name)
	return r.findOne(ctx, "name", normalized, bson.M{"uniqueName": normalized})
}

// FindByEmail looks an account up by email.
func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized := models.NormalizeEmail(email)
	return r.findOne(ctx, "email", normalized, bson.M{"email": normalized})
}

// FindByExternalID looks an account up by its external identity.
func (r *MongoRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.findOne(ctx, "external_id", externalID, bson.M{"steamId": externalID})
}

// Create inserts a new account.
func (r *MongoRepository) Create(ctx context.Context, user *models.User) error {
	user.NormalizedName = models.NormalizeName(user.Name)
	user.Email = models.NormalizeEmail(user.Email)

	doc := documentFromModel(user)
	doc.ID = primitive.NewObjectID()
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		return classifyMongoCreateError(err)
	}
	user.CreatedAt = doc.ID.Timestamp()
	return nil
}

// DeleteByName removes the account with the given name.
func (r *MongoRepository) DeleteByName(ctx context.Context, name string) error {
	normalized := models.NormalizeName(name)
	res, err := r.users.DeleteOne(ctx, bson.M{"uniqueName": normalized})
	if err != nil {
		return apperr.Infra("delete user", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("name", normalized)
	}
	return nil
}

func (r *MongoRepository) updateOne(ctx context.Context, op, key, value string, filter, set bson.M) error {
	res, err := r.users.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return apperr.Infra(op, err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(key, value)
	}
	return nil
}

// MarkVerified sets verified on the account whose email and verification
// token both match.
func (r *MongoRepository) MarkVerified(ctx context.Context, email, token string) error {
	normalized := models.NormalizeEmail(email)
	return r.updateOne(ctx, "verify email", "email", normalized,
		bson.M{"email": normalized, "emailVerificationToken": token},
		bson.M{"emailVerified": true})
}

// SetVerified overrides the verified flag of an account.
func (r *MongoRepository) SetVerified(ctx context.Context, name string, verified bool) error {
	normalized := models.NormalizeName(name)
	return r.updateOne(ctx, "set verified", "name", normalized,
		bson.M{"uniqueName": normalized},
		bson.M{"emailVerified": verified})
}

// UpdateLastLogin records a successful login at epoch millis at.
func (r *MongoRepository) UpdateLastLogin(ctx context.Context, name string, at int64) error {
	normalized := models.NormalizeName(name)
	return r.updateOne(ctx, "update last login", "name", normalized,
		bson.M{"uniqueName": normalized},
		bson.M{"lastLogin": at})
}

// IssuePasswordReset stores the hash of a fresh reset token.
func (r *MongoRepository) IssuePasswordReset(ctx context.Context, email, tokenHash string, expiresAt int64) error {
	normalized := models.NormalizeEmail(email)
	return r.updateOne(ctx, "issue password reset", "email", normalized,
		bson.M{"email": normalized},
		bson.M{"passwordResetToken": tokenHash, "passwordResetTokenExpiration": expiresAt})
}

// ConsumePasswordReset installs a new password hash and clears the reset
// while tokenHash is still the active reset.
func (r *MongoRepository) ConsumePasswordReset(ctx context.Context, email, tokenHash, passwordHash string, clearedAt int64) error {
	normalized := models.NormalizeEmail(email)
	return r.updateOne(ctx, "consume password reset", "email", normalized,
		bson.M{"email": normalized, "passwordResetToken": tokenHash},
		bson.M{"password": passwordHash, "passwordResetToken": nil, "passwordResetTokenExpiration": clearedAt})
}

// Count returns the number of accounts.
func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, apperr.Infra("count users", err)
	}
	return n, nil
}

// mongoIndexErrors lists the unique indexes in the order conflicts are
// reported.
var mongoIndexErrors = []struct {
	index string
	err   error
}{
	{"email_1", apperr.ErrDuplicateEmail},
	{"steamId_1", apperr.ErrDuplicateExternalID},
	{"uniqueName_1", apperr.ErrDuplicateName},
	{"name_1", apperr.ErrDuplicateName},
}

func classifyMongoCreateError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return apperr.Infra("create user", err)
	}
	return classifyDuplicateMessage(err.Error())
}

func classifyDuplicateMessage(msg string) error {
	for _, idx := range mongoIndexErrors {
		if strings.Contains(msg, "index: "+idx.index+" dup key") {
			return idx.err
		}
	}
	return apperr.ErrCreateFailed
}
