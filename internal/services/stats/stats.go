// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package stats is the client of the player stats service. Every call is a
// form POST with a single playerStats field holding a JSON document.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
)

// ErrNoResponse is returned when the stats service answered without a body
// where one was required.
var ErrNoResponse = errors.New("no response from stats service")

// Endpoints holds the URL of each stats operation.
type Endpoints struct {
	Create string
	Delete string
	Get    string
	Edit   string
}

// Edit is an operator change to a player's stats record.
type Edit struct { //nolint:govet // fieldalignment: mirrors the wire document
	PlayerUniqueName string          `json:"playerUniqueName"`
	CurrentXP        int64           `json:"currentXP"`
	CurrentLevel     int64           `json:"currentLevel"`
	Wins             int64           `json:"wins"`
	Losses           int64           `json:"losses"`
	PlayerInventory  json.RawMessage `json:"playerInventory"`
}

// Client talks to the stats service.
type Client struct {
	http      *http.Client
	endpoints Endpoints
}

// New creates a Client with the given per-call timeout.
func New(endpoints Endpoints, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}, endpoints: endpoints}
}

// CreateStats creates the stats record for a new player.
func (c *Client) CreateStats(ctx context.Context, playerName string) error {
	_, err := c.call(ctx, "create", c.endpoints.Create, map[string]string{"playerName": playerName})
	return err
}

// DeleteStats removes the stats record of a player.
func (c *Client) DeleteStats(ctx context.Context, playerName string) error {
	_, err := c.call(ctx, "delete", c.endpoints.Delete, map[string]string{"playerName": playerName})
	return err
}

// GetStats returns the stats document of a player.
func (c *Client) GetStats(ctx context.Context, playerName string) (map[string]any, error) {
	body, err := c.call(ctx, "get", c.endpoints.Get, map[string]string{"playerName": playerName})
	if err != nil {
		return nil, err
	}
	return decodeDocument("get", body)
}

// EditStats applies an operator edit and returns the updated document.
func (c *Client) EditStats(ctx context.Context, edit Edit) (map[string]any, error) {
	body, err := c.call(ctx, "edit", c.endpoints.Edit, edit)
	if err != nil {
		return nil, err
	}
	return decodeDocument("edit", body)
}

func decodeDocument(op string, body []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("%w: %s stats: %w", apperr.ErrStatsUnavailable, op, ErrNoResponse)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s stats: decoding response: %w", apperr.ErrStatsUnavailable, op, err)
	}
	return doc, nil
}

// call posts payload and returns the response body. Transport failures and
// non-200 answers wrap apperr.ErrStatsUnavailable.
func (c *Client) call(ctx context.Context, op, endpoint string, payload any) ([]byte, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s stats request: %w", op, err)
	}
	form := url.Values{"playerStats": {string(doc)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %s stats: %w", apperr.ErrStatsUnavailable, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("stats_call_failed", "op", op, "url", endpoint, "error", err)
		return nil, fmt.Errorf("%w: %s stats: %w", apperr.ErrStatsUnavailable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	slog.Info("stats_call", "op", op, "url", endpoint, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %s stats: reading response: %w", apperr.ErrStatsUnavailable, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s stats: status %d", apperr.ErrStatsUnavailable, op, resp.StatusCode)
	}
	return body, nil
}
