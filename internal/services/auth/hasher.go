// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher turns secrets into one-way hashes and compares them.
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Compare(ctx context.Context, plaintext, hash string) (bool, error)
}

// BcryptHasher hashes with bcrypt on a bounded number of goroutines so a
// burst of logins cannot occupy every CPU.
type BcryptHasher struct {
	sem  *semaphore.Weighted
	cost int
}

// NewBcryptHasher creates a hasher. workers <= 0 means GOMAXPROCS and
// cost <= 0 means bcrypt.DefaultCost.
func NewBcryptHasher(cost, workers int) *BcryptHasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{sem: semaphore.NewWeighted(int64(workers)), cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare reports whether plaintext matches hash. A mismatch is not an
// error.
func (h *BcryptHasher) Compare(ctx context.Context, plaintext, hash string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
