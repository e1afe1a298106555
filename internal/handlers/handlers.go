// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers exposes the account operations as JSON endpoints.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/player-accounts/internal/services/accounts"
	"codeberg.org/oliverandrich/player-accounts/internal/services/auth"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	accounts *accounts.Provisioner
	manager  *accounts.Manager
	sessions *auth.SessionIssuer
}

// New creates a new Handlers instance.
func New(prov *accounts.Provisioner, sessions *auth.SessionIssuer) *Handlers {
	return &Handlers{
		accounts: prov,
		manager:  prov.Manager(),
		sessions: sessions,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
