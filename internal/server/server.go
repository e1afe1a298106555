// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"codeberg.org/oliverandrich/player-accounts/internal/config"
	"codeberg.org/oliverandrich/player-accounts/internal/database"
	"codeberg.org/oliverandrich/player-accounts/internal/handlers"
	"codeberg.org/oliverandrich/player-accounts/internal/i18n"
	"codeberg.org/oliverandrich/player-accounts/internal/repository"
	"codeberg.org/oliverandrich/player-accounts/internal/services/accounts"
	"codeberg.org/oliverandrich/player-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/player-accounts/internal/services/email"
	"codeberg.org/oliverandrich/player-accounts/internal/services/stats"
	"codeberg.org/oliverandrich/player-accounts/internal/services/steam"
	"codeberg.org/oliverandrich/player-accounts/internal/throttle"
)

const shutdownTimeout = 10 * time.Second

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"database", cfg.Database.Driver,
	)

	// i18n
	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	// Store
	store, closeStore, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	// Services
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc, err := newServices(cfg, store, registry)
	if err != nil {
		return err
	}

	e := newEcho(cfg, svc)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, e, svc.throttle, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
}

// openStore connects the configured account store and returns a function
// that releases it.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (accounts.Store, func(), error) {
	switch cfg.Driver {
	case "", "sqlite":
		db, err := database.Open(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return repository.New(db), func() {
			if closeErr := database.Close(db); closeErr != nil {
				slog.Error("failed to close database", "error", closeErr)
			}
		}, nil

	case "mongo":
		repo, client, err := repository.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		return repo, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if closeErr := client.Disconnect(disconnectCtx); closeErr != nil {
				slog.Error("failed to disconnect mongodb", "error", closeErr)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// services bundles everything the routes need.
type services struct {
	handlers *handlers.Handlers
	throttle *throttle.Throttle
	registry *prometheus.Registry
}

func newServices(cfg *config.Config, store accounts.Store, registry *prometheus.Registry) (*services, error) {
	sender, err := email.NewSender(&cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("failed to set up mail: %w", err)
	}
	notifier := email.NewNotifier(sender, email.Links{
		VerifyEmailPage:   cfg.Accounts.VerifyEmailPage,
		PasswordResetPage: cfg.Accounts.PasswordResetPage,
		CallbackURL:       cfg.Accounts.CallbackURL,
		ResetHours:        cfg.Accounts.ResetTokenHours,
	})

	sessions, err := auth.NewSessionIssuer(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to set up sessions: %w", err)
	}
	if cfg.Session.Secret == "" {
		slog.Warn("session secret not configured, tokens will not survive a restart")
	}

	var verifier accounts.IdentityVerifier
	if cfg.Steam.APIKey != "" {
		verifier = steam.New(cfg.Steam.URL, cfg.Steam.APIKey, cfg.Steam.AppID, cfg.Stats.Timeout)
	}

	manager := accounts.NewManager(accounts.Deps{
		Store: store,
		Validator: auth.NewValidator(auth.Rules{
			MinNameLength:       cfg.Accounts.MinNameLength,
			MaxNameLength:       cfg.Accounts.MaxNameLength,
			MinPasswordLength:   cfg.Accounts.MinPasswordLength,
			MaxPasswordLength:   cfg.Accounts.MaxPasswordLength,
			MaxEmailLength:      cfg.Accounts.MaxEmailLength,
			ReservedNameEndings: cfg.Accounts.ReservedNameEndings,
			NameBlacklist:       cfg.Accounts.NameBlacklist,
		}),
		Hasher:   auth.NewBcryptHasher(0, 0),
		Verifier: verifier,
		ResetTTL: time.Duration(cfg.Accounts.ResetTokenHours) * time.Hour,
	})

	statsClient := stats.New(stats.Endpoints{
		Create: cfg.Stats.CreateURL,
		Delete: cfg.Stats.DeleteURL,
		Get:    cfg.Stats.GetURL,
		Edit:   cfg.Stats.EditURL,
	}, cfg.Stats.Timeout)

	prov := accounts.NewProvisioner(manager, statsClient, notifier, accounts.ProvisionerConfig{
		SendVerificationOnCreate: cfg.Accounts.SendVerification,
		CompensationRetries:      3,
		Registerer:               registry,
	})

	th := throttle.New(throttle.Config{
		SuccessDelta:   cfg.Throttle.SuccessDelta,
		FailureDelta:   cfg.Throttle.FailureDelta,
		BlockedDelta:   cfg.Throttle.BlockedDelta,
		SoftThreshold:  cfg.Throttle.SoftThreshold,
		HardThreshold:  cfg.Throttle.HardThreshold,
		DecayDecrement: cfg.Throttle.DecayDecrement,
		DecayInterval:  cfg.Throttle.DecayInterval,
	}, registry)

	return &services{
		handlers: handlers.New(prov, sessions),
		throttle: th,
		registry: registry,
	}, nil
}

func newEcho(cfg *config.Config, svc *services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(middleware.RemoveTrailingSlash())

	setupMiddleware(e, cfg, svc.throttle)
	setupRoutes(e, cfg, svc)
	return e
}

func setupRoutes(e *echo.Echo, cfg *config.Config, svc *services) {
	h := svc.handlers

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{DisableCompression: true})))

	v1 := e.Group("/v1")

	v1.POST("/accounts", h.CreateAccount)
	v1.POST("/accounts/external", h.CreateExternalAccount)

	v1.POST("/login", h.Login)
	v1.POST("/login/email", h.LoginByEmail)
	v1.POST("/login/external", h.LoginExternal)

	v1.POST("/verify", h.Verify)
	v1.POST("/verify/resend", h.ResendVerification)

	v1.POST("/password-reset/request", h.RequestPasswordReset)
	v1.POST("/password-reset", h.ResetPassword)

	admin := v1.Group("/accounts", requireAdmin(cfg.Admin.Token))
	admin.POST("/delete", h.DeleteAccount)
	admin.POST("/delete-local", h.DeleteLocalAccount)
	admin.POST("/info", h.AccountInfo)
	admin.POST("/info/update", h.UpdateAccountInfo)
	admin.GET("/count", h.CountAccounts)
}

// serve runs the HTTP server and the throttle decay loop until ctx is done
// or either of them fails, then shuts the server down gracefully.
func serve(ctx context.Context, e *echo.Echo, th *throttle.Throttle, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return th.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown server", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
