// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
)

// SessionResponse is returned after login, creation and verification.
type SessionResponse struct {
	SessionToken string `json:"sessionToken"`
	PlayerName   string `json:"playerName"`
	Email        string `json:"email"`
}

// SuccessResponse acknowledges an operation without a payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// field pairs a request field name with its value for presence checks.
type field struct {
	name  string
	value string
}

// requireFields returns a MissingFieldError for the first blank field.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}

// bind decodes the request body. A malformed body is reported like a
// missing first field.
func bind(c echo.Context, dst any, first string) error {
	if err := c.Bind(dst); err != nil {
		return &MissingFieldError{Field: first}
	}
	return nil
}

var birthDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
	"1/2/2006",
	"January 2, 2006",
}

// parseBirthDate accepts the date formats game clients send.
func parseBirthDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &BadBirthDateError{Value: raw}
}

// sessionResponse issues a session token for user and writes it.
func (h *Handlers) sessionResponse(c echo.Context, user *models.User) error {
	token, err := h.sessions.Issue(user.NormalizedName)
	if err != nil {
		return respondError(c, apperr.Infra("issue session", err))
	}
	return c.JSON(http.StatusOK, SessionResponse{
		SessionToken: token,
		PlayerName:   user.Name,
		Email:        user.Email,
	})
}

func success(c echo.Context) error {
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
