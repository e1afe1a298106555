// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"example.com", false},
		{"localhost.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		server   ServerConfig
		expected string
	}{
		{"default port", ServerConfig{Host: "localhost", Port: 80}, "http://localhost"},
		{"custom port", ServerConfig{Host: "localhost", Port: 8080}, "http://localhost:8080"},
		{"wildcard host", ServerConfig{Host: "0.0.0.0", Port: 9000}, "http://localhost:9000"},
		{"remote host", ServerConfig{Host: "accounts.example.com", Port: 8080}, "http://accounts.example.com:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(&Config{Server: tt.server}))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"damn", "shit"}, splitList("damn, shit"))
	assert.Equal(t, []string{"_tm"}, splitList("_tm,,"))
	assert.Nil(t, splitList(""))
}

func TestFlags(t *testing.T) {
	flags := Flags()

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "log-level", "database-driver", "database-dsn", "mongo-uri",
		"name-min-length", "reserved-name-endings", "name-blacklist", "reset-token-hours",
		"throttle-soft-threshold", "throttle-interval", "stats-create-url", "mail-provider",
		"steam-api-key", "session-secret", "admin-token",
	} {
		assert.True(t, flagNames[name], "should have %s flag", name)
	}
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
			assert.Equal(t, "sqlite", cfg.Database.Driver)

			assert.Equal(t, 3, cfg.Accounts.MinNameLength)
			assert.Equal(t, 15, cfg.Accounts.MaxNameLength)
			assert.Equal(t, 7, cfg.Accounts.MinPasswordLength)
			assert.Equal(t, 30, cfg.Accounts.MaxPasswordLength)
			assert.Equal(t, 254, cfg.Accounts.MaxEmailLength)
			assert.Equal(t, []string{"_tm"}, cfg.Accounts.ReservedNameEndings)
			assert.Equal(t, []string{"damn", "shit"}, cfg.Accounts.NameBlacklist)
			assert.Equal(t, 4, cfg.Accounts.ResetTokenHours)
			assert.False(t, cfg.Accounts.SendVerification)
			assert.Equal(t, cfg.Server.BaseURL, cfg.Accounts.CallbackURL)

			assert.Equal(t, int64(100), cfg.Throttle.SuccessDelta)
			assert.Equal(t, int64(500), cfg.Throttle.FailureDelta)
			assert.Equal(t, int64(1000), cfg.Throttle.BlockedDelta)
			assert.Equal(t, int64(7500), cfg.Throttle.SoftThreshold)
			assert.Equal(t, int64(10000), cfg.Throttle.HardThreshold)
			assert.Equal(t, int64(300), cfg.Throttle.DecayDecrement)
			assert.Equal(t, 5*time.Second, cfg.Throttle.DecayInterval)

			assert.Equal(t, "log", cfg.Mail.Provider)
			assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
			assert.Empty(t, cfg.Admin.Token)

			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "https://accounts.example.com", cfg.Server.BaseURL)
			assert.Equal(t, "mongo", cfg.Database.Driver)
			assert.Equal(t, []string{"_tm", "_dev"}, cfg.Accounts.ReservedNameEndings)
			assert.True(t, cfg.Accounts.SendVerification)
			assert.Equal(t, time.Second, cfg.Throttle.DecayInterval)
			assert.Equal(t, "s3cret", cfg.Admin.Token)

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--base-url", "https://accounts.example.com",
		"--database-driver", "MONGO",
		"--reserved-name-endings", "_tm,_dev",
		"--send-verification-on-create",
		"--throttle-interval", "1s",
		"--admin-token", "s3cret",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}
