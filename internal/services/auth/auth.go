// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth holds the credential and validation primitives: input
// validators, secret hashing, opaque token generation and session tokens.
package auth

import (
	"context"

	"github.com/google/uuid"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
)

// TokenGenerator produces opaque random tokens.
type TokenGenerator interface {
	NewToken() string
}

// UUIDGenerator generates random UUIDv4 tokens.
type UUIDGenerator struct{}

// NewToken returns a fresh UUID string.
func (UUIDGenerator) NewToken() string {
	return uuid.NewString()
}

// VerifySecret compares plaintext with a stored hash. Hasher failures are
// reported as infrastructure errors, a mismatch as false.
func VerifySecret(ctx context.Context, h Hasher, plaintext, hash string) (bool, error) {
	ok, err := h.Compare(ctx, plaintext, hash)
	if err != nil {
		return false, apperr.Infra("compare secret", err)
	}
	return ok, nil
}

// HashSecret hashes plaintext, reporting hasher failures as infrastructure
// errors.
func HashSecret(ctx context.Context, h Hasher, plaintext string) (string, error) {
	hash, err := h.Hash(ctx, plaintext)
	if err != nil {
		return "", apperr.Infra("hash secret", err)
	}
	return hash, nil
}
