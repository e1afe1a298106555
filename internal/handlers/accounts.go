// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/player-accounts/internal/services/accounts"
	"codeberg.org/oliverandrich/player-accounts/internal/services/stats"
)

// CreateAccountRequest is the request body for account creation.
type CreateAccountRequest struct {
	PlayerName             string `json:"playerName" form:"playerName"`
	Password               string `json:"password" form:"password"`
	Email                  string `json:"email" form:"email"`
	BirthDate              string `json:"birthDate" form:"birthDate"`
	SteamAuthSessionTicket string `json:"steamAuthSessionTicket" form:"steamAuthSessionTicket"`
}

func (r *CreateAccountRequest) toCreateRequest() (accounts.CreateRequest, error) {
	if err := requireFields(
		field{"playerName", r.PlayerName},
		field{"password", r.Password},
		field{"email", r.Email},
		field{"birthDate", r.BirthDate},
	); err != nil {
		return accounts.CreateRequest{}, err
	}
	birthDate, err := parseBirthDate(r.BirthDate)
	if err != nil {
		return accounts.CreateRequest{}, err
	}
	return accounts.CreateRequest{
		Name:      r.PlayerName,
		Password:  r.Password,
		Email:     r.Email,
		BirthDate: birthDate,
	}, nil
}

// CreateAccount provisions a new account and its stats record.
func (h *Handlers) CreateAccount(c echo.Context) error {
	var req CreateAccountRequest
	if err := bind(c, &req, "playerName"); err != nil {
		return respondError(c, err)
	}
	create, err := req.toCreateRequest()
	if err != nil {
		return respondError(c, err)
	}

	res, err := h.accounts.Provision(c.Request().Context(), create)
	if err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, res.User)
}

// CreateExternalAccount provisions an account bound to a verified Steam
// session ticket.
func (h *Handlers) CreateExternalAccount(c echo.Context) error {
	var req CreateAccountRequest
	if err := bind(c, &req, "playerName"); err != nil {
		return respondError(c, err)
	}
	create, err := req.toCreateRequest()
	if err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"steamAuthSessionTicket", req.SteamAuthSessionTicket}); err != nil {
		return respondError(c, err)
	}

	res, err := h.accounts.ProvisionWithTicket(c.Request().Context(), create, req.SteamAuthSessionTicket)
	if err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, res.User)
}

// PlayerNameRequest identifies an account by name.
type PlayerNameRequest struct {
	PlayerName string `json:"playerName" form:"playerName"`
}

// DeleteAccount deletes an account and its stats record.
func (h *Handlers) DeleteAccount(c echo.Context) error {
	var req PlayerNameRequest
	if err := bind(c, &req, "playerName"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"playerName", req.PlayerName}); err != nil {
		return respondError(c, err)
	}

	if err := h.accounts.Deprovision(c.Request().Context(), req.PlayerName); err != nil {
		return respondError(c, err)
	}
	return success(c)
}

// DeleteLocalAccount deletes an account and leaves its stats record.
func (h *Handlers) DeleteLocalAccount(c echo.Context) error {
	var req PlayerNameRequest
	if err := bind(c, &req, "playerName"); err != nil {
		return respondError(c, err)
	}
	if err := requireFields(field{"playerName", req.PlayerName}); err != nil {
		return respondError(c, err)
	}

	if err := h.accounts.DeleteWithoutStats(c.Request().Context(), req.PlayerName); err != nil {
		return respondError(c, err)
	}
	return success(c)
}

// AccountInfoRequest looks an account up by name or email.
type AccountInfoRequest struct {
	PlayerName string `json:"playerName" form:"playerName"`
	Email      string `json:"email" form:"email"`
}

// AccountInfo returns the stats of an account merged with its account
// fields.
func (h *Handlers) AccountInfo(c echo.Context) error {
	var req AccountInfoRequest
	if err := bind(c, &req, "playerName"); err != nil {
		return respondError(c, err)
	}
	if req.PlayerName == "" && req.Email == "" {
		return respondError(c, &MissingFieldError{Field: "playerName"})
	}

	info, err := h.accounts.AccountInfo(c.Request().Context(), accounts.Lookup{
		Name:  req.PlayerName,
		Email: req.Email,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// UpdateAccountInfoRequest is an operator edit of an account.
type UpdateAccountInfoRequest struct {
	PlayerUniqueName string          `json:"playerUniqueName"`
	Verified         *bool           `json:"verified"`
	CurrentXP        *int64          `json:"currentXP"`
	CurrentLevel     *int64          `json:"currentLevel"`
	Wins             *int64          `json:"wins"`
	Losses           *int64          `json:"losses"`
	PlayerInventory  json.RawMessage `json:"playerInventory"`
}

func (r *UpdateAccountInfoRequest) missing() error {
	switch {
	case r.PlayerUniqueName == "":
		return &MissingFieldError{Field: "playerUniqueName"}
	case r.Verified == nil:
		return &MissingFieldError{Field: "verified"}
	case r.CurrentXP == nil:
		return &MissingFieldError{Field: "currentXP"}
	case r.CurrentLevel == nil:
		return &MissingFieldError{Field: "currentLevel"}
	case r.Wins == nil:
		return &MissingFieldError{Field: "wins"}
	case r.Losses == nil:
		return &MissingFieldError{Field: "losses"}
	case len(r.PlayerInventory) == 0 || string(r.PlayerInventory) == "null":
		return &MissingFieldError{Field: "playerInventory"}
	}
	return nil
}

// UpdateAccountInfo overrides the verified flag and edits the stats record.
func (h *Handlers) UpdateAccountInfo(c echo.Context) error {
	var req UpdateAccountInfoRequest
	if err := bind(c, &req, "playerUniqueName"); err != nil {
		return respondError(c, err)
	}
	if err := req.missing(); err != nil {
		return respondError(c, err)
	}

	info, err := h.accounts.UpdateAccountInfo(c.Request().Context(), accounts.EditRequest{
		Verified: *req.Verified,
		Stats: stats.Edit{
			PlayerUniqueName: req.PlayerUniqueName,
			CurrentXP:        *req.CurrentXP,
			CurrentLevel:     *req.CurrentLevel,
			Wins:             *req.Wins,
			Losses:           *req.Losses,
			PlayerInventory:  req.PlayerInventory,
		},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// CountAccounts returns the number of accounts.
func (h *Handlers) CountAccounts(c echo.Context) error {
	n, err := h.manager.Count(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": n})
}
