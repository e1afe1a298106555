// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the error taxonomy shared by the store, the account
// services and the HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateName       = errors.New("that username is already in use")
	ErrDuplicateEmail      = errors.New("that email is already in use")
	ErrDuplicateExternalID = errors.New("that external id is already in use")
	ErrCreateFailed        = errors.New("there was an error creating your new account")
	ErrBadPassword         = errors.New("password is incorrect")
	ErrUnverified          = errors.New("email address is not verified")
	ErrResetExpired        = errors.New("password reset link expired")
	ErrResetInvalid        = errors.New("password reset link is invalid")
	ErrVerificationFailed  = errors.New("email or verification token is incorrect")
	ErrStatsUnavailable    = errors.New("failed to create account stats")
	ErrMailFailed          = errors.New("failed to send email")
	ErrIdentityRejected    = errors.New("external identity could not be verified")
)

// ValidationError reports a single violated input rule.
type ValidationError struct {
	Code    string
	Message string
	Data    map[string]any // template data for localized messages
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid creates a ValidationError.
func Invalid(code, message string, data map[string]any) *ValidationError {
	return &ValidationError{Code: code, Message: message, Data: data}
}

// NotFoundError is returned by lookups that match no record. It carries the
// lookup key for diagnostics and matches ErrNotFound.
type NotFoundError struct {
	Key   string
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no account with %s %q", e.Key, e.Value)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound creates a NotFoundError.
func NotFound(key, value string) *NotFoundError {
	return &NotFoundError{Key: key, Value: value}
}

// InfrastructureError wraps a failure of a collaborator (database, hashing,
// network). Its text is never shown to players.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infra wraps err as an InfrastructureError. A nil err stays nil.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureError{Op: op, Err: err}
}

// IsPlayerFacing reports whether err may be shown to the player verbatim
// (after localization).
func IsPlayerFacing(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range []error{
		ErrDuplicateName, ErrDuplicateEmail, ErrDuplicateExternalID, ErrCreateFailed,
		ErrBadPassword, ErrUnverified, ErrResetExpired, ErrResetInvalid,
		ErrVerificationFailed, ErrStatsUnavailable, ErrMailFailed, ErrIdentityRejected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
