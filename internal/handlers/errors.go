// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/i18n"
)

// MissingFieldError reports a required request field that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return e.Field + " is missing"
}

// BadBirthDateError reports a birth date that could not be parsed.
type BadBirthDateError struct {
	Value string
}

func (e *BadBirthDateError) Error() string {
	return "Error parsing birthDate: " + e.Value
}

type errorMapping struct {
	target    error
	status    int
	messageID string
}

var errorMappings = []errorMapping{
	{apperr.ErrDuplicateName, http.StatusConflict, "error_duplicate_name"},
	{apperr.ErrDuplicateEmail, http.StatusConflict, "error_duplicate_email"},
	{apperr.ErrDuplicateExternalID, http.StatusConflict, "error_duplicate_external_id"},
	{apperr.ErrCreateFailed, http.StatusConflict, "error_create_failed"},
	{apperr.ErrNotFound, http.StatusNotFound, "error_not_found"},
	{apperr.ErrBadPassword, http.StatusUnauthorized, "error_bad_password"},
	{apperr.ErrUnverified, http.StatusForbidden, "error_unverified"},
	{apperr.ErrResetExpired, http.StatusGone, "error_reset_expired"},
	{apperr.ErrResetInvalid, http.StatusBadRequest, "error_reset_invalid"},
	{apperr.ErrVerificationFailed, http.StatusBadRequest, "error_verification_failed"},
	{apperr.ErrIdentityRejected, http.StatusUnauthorized, "error_identity_rejected"},
	{apperr.ErrStatsUnavailable, http.StatusServiceUnavailable, "error_stats_unavailable"},
	{apperr.ErrMailFailed, http.StatusBadGateway, "error_mail_failed"},
}

// ErrorResponse maps err to a status code and a message in the locale of
// ctx. Anything not player-facing becomes a 500 with the generic message.
func ErrorResponse(ctx context.Context, err error) (int, string) {
	var (
		ve *apperr.ValidationError
		mf *MissingFieldError
		bd *BadBirthDateError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, i18n.TDefault(ctx, ve.Code, ve.Data, ve.Message)
	case errors.As(err, &mf):
		return http.StatusBadRequest, i18n.TDefault(ctx, "error_missing_field", map[string]any{"Field": mf.Field}, mf.Error())
	case errors.As(err, &bd):
		return http.StatusBadRequest, i18n.TDefault(ctx, "error_bad_birth_date", map[string]any{"Value": bd.Value}, bd.Error())
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, i18n.T(ctx, m.messageID)
		}
	}
	return http.StatusInternalServerError, i18n.TDefault(ctx, "error_generic", nil, "There was an error processing your request.")
}

// respondError writes err as {"error": "..."}. Server-side failures are
// logged with their detail.
func respondError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	status, message := ErrorResponse(ctx, err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request_failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.JSON(status, map[string]string{"error": message})
}
