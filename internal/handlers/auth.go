// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/player-accounts/internal/services/accounts"
)

// LoginRequest is the request body for the password logins.
type LoginRequest struct {
	PlayerName string `json:"playerName" form:"playerName"`
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
}

// Login authenticates by player name and password.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req, "playerName"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"playerName", req.PlayerName}, field{"password", req.Password}); err != nil {
		return respondError(c, err)
	}

	user, err := h.manager.AuthenticateByName(c.Request().Context(), req.PlayerName, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, user)
}

// LoginByEmail authenticates by email and password.
func (h *Handlers) LoginByEmail(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req, "email"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"email", req.Email}, field{"password", req.Password}); err != nil {
		return respondError(c, err)
	}

	user, err := h.manager.AuthenticateByEmail(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, user)
}

// TicketRequest carries a Steam session ticket.
type TicketRequest struct {
	SteamAuthSessionTicket string `json:"steamAuthSessionTicket" form:"steamAuthSessionTicket"`
}

// LoginExternal authenticates with a Steam session ticket.
func (h *Handlers) LoginExternal(c echo.Context) error {
	var req TicketRequest
	if err := bind(c, &req, "steamAuthSessionTicket"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"steamAuthSessionTicket", req.SteamAuthSessionTicket}); err != nil {
		return respondError(c, err)
	}

	user, err := h.manager.AuthenticateTicket(c.Request().Context(), req.SteamAuthSessionTicket)
	if err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, user)
}

// VerifyRequest is the request body of email verification.
type VerifyRequest struct {
	Email             string `json:"email" form:"email"`
	VerificationToken string `json:"verificationToken" form:"verificationToken"`
}

// Verify marks an email address verified and logs the player in.
func (h *Handlers) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := bind(c, &req, "email"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"email", req.Email}, field{"verificationToken", req.VerificationToken}); err != nil {
		return respondError(c, err)
	}

	user, err := h.manager.VerifyEmail(c.Request().Context(), req.Email, req.VerificationToken)
	if err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, user)
}

// EmailRequest identifies an account by email.
type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

// ResendVerification mails the verification link again.
func (h *Handlers) ResendVerification(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req, "email"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"email", req.Email}); err != nil {
		return respondError(c, err)
	}

	if err := h.accounts.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}
	return success(c)
}

// RequestPasswordReset issues a reset token and mails the reset link.
func (h *Handlers) RequestPasswordReset(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req, "email"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"email", req.Email}); err != nil {
		return respondError(c, err)
	}

	email, err := h.accounts.SendPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"email": email})
}

// ResetPasswordRequest is the request body of a password reset.
type ResetPasswordRequest struct {
	Email              string `json:"email" form:"email"`
	PasswordResetToken string `json:"passwordResetToken" form:"passwordResetToken"`
	NewPassword        string `json:"newPassword" form:"newPassword"`
}

// ResetPassword installs a new password using a reset token.
func (h *Handlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bind(c, &req, "email"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(
		field{"email", req.Email},
		field{"passwordResetToken", req.PasswordResetToken},
		field{"newPassword", req.NewPassword},
	); err != nil {
		return respondError(c, err)
	}

	err := h.manager.ConsumePasswordReset(c.Request().Context(), accounts.ResetRequest{
		Email:       req.Email,
		Token:       req.PasswordResetToken,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return respondError(c, err)
	}
	return success(c)
}
