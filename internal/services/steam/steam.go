// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package steam resolves Steam session tickets to Steam ids.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
)

// DefaultURL is the ticket authentication endpoint of the Steam Web API.
const DefaultURL = "https://api.steampowered.com/ISteamUserAuth/AuthenticateUserTicket/v1/"

type authenticateResponse struct {
	Response struct {
		Params struct {
			Result  string `json:"result"`
			SteamID string `json:"steamid"`
		} `json:"params"`
	} `json:"response"`
}

// Client verifies session tickets against the Steam Web API.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
	appID  string
}

// New creates a Client. An empty endpoint means DefaultURL.
func New(endpoint, apiKey, appID string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}, url: endpoint, apiKey: apiKey, appID: appID}
}

// Verify returns the Steam id the ticket was issued for. Any failure wraps
// apperr.ErrIdentityRejected.
func (c *Client) Verify(ctx context.Context, ticket string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parsing steam url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	q.Set("appid", c.appID)
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrIdentityRejected, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("steam_call_failed", "error", err)
		return "", fmt.Errorf("%w: %w", apperr.ErrIdentityRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("steam_call_failed", "status", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", apperr.ErrIdentityRejected, resp.StatusCode)
	}

	var body authenticateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", apperr.ErrIdentityRejected, err)
	}
	if body.Response.Params.Result != "OK" || body.Response.Params.SteamID == "" {
		slog.Warn("steam_ticket_rejected", "result", body.Response.Params.Result)
		return "", fmt.Errorf("%w: result %q", apperr.ErrIdentityRejected, body.Response.Params.Result)
	}

	slog.Info("steam_user_identified", "steam_id", body.Response.Params.SteamID)
	return body.Response.Params.SteamID, nil
}
