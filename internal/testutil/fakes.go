// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"sync"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
	"codeberg.org/oliverandrich/player-accounts/internal/services/stats"
)

// FakeStats records stats calls. A non-nil error field makes the matching
// call fail.
type FakeStats struct { //nolint:govet // fieldalignment: test helper
	mu sync.Mutex

	CreateErr error
	DeleteErr error
	GetErr    error
	EditErr   error

	Document map[string]any

	Created []string
	Deleted []string
	Fetched []string
	Edits   []stats.Edit
}

func (f *FakeStats) CreateStats(_ context.Context, playerName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, playerName)
	return f.CreateErr
}

func (f *FakeStats) DeleteStats(_ context.Context, playerName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, playerName)
	return f.DeleteErr
}

func (f *FakeStats) GetStats(_ context.Context, playerName string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetched = append(f.Fetched, playerName)
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return f.copyDocument(), nil
}

func (f *FakeStats) EditStats(_ context.Context, edit stats.Edit) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, edit)
	if f.EditErr != nil {
		return nil, f.EditErr
	}
	return f.copyDocument(), nil
}

func (f *FakeStats) copyDocument() map[string]any {
	doc := make(map[string]any, len(f.Document))
	for k, v := range f.Document {
		doc[k] = v
	}
	return doc
}

// SentReset is a password reset mail captured by FakeNotifier.
type SentReset struct {
	Email string
	Token string
}

// FakeNotifier captures account mails instead of sending them.
type FakeNotifier struct { //nolint:govet // fieldalignment: test helper
	mu  sync.Mutex
	Err error

	Verifications []*models.User
	Resets        []SentReset
}

func (f *FakeNotifier) SendVerification(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Verifications = append(f.Verifications, user)
	return nil
}

func (f *FakeNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Resets = append(f.Resets, SentReset{Email: email, Token: token})
	return nil
}

// LastReset returns the most recent reset mail or the zero value.
func (f *FakeNotifier) LastReset() SentReset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Resets) == 0 {
		return SentReset{}
	}
	return f.Resets[len(f.Resets)-1]
}

// FakeVerifier resolves tickets from a fixed map.
type FakeVerifier struct {
	Tickets map[string]string
	Err     error
}

func (f *FakeVerifier) Verify(_ context.Context, ticket string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	id, ok := f.Tickets[ticket]
	if !ok {
		return "", apperr.ErrIdentityRejected
	}
	return id, nil
}

// SequenceTokens returns the given tokens in order and then repeats the
// last one.
type SequenceTokens struct {
	mu     sync.Mutex
	Tokens []string
	next   int
}

func (s *SequenceTokens) NewToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Tokens) == 0 {
		return ""
	}
	i := min(s.next, len(s.Tokens)-1)
	s.next++
	return s.Tokens[i]
}
