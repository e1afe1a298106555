// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Accounts AccountsConfig
	Throttle ThrottleConfig
	Stats    StatsConfig
	Mail     MailConfig
	Steam    SteamConfig
	Session  SessionConfig
	Admin    AdminConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	Driver          string // sqlite, mongo
	DSN             string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

type AccountsConfig struct { //nolint:govet // fieldalignment not critical for config structs
	MinNameLength       int
	MaxNameLength       int
	MinPasswordLength   int
	MaxPasswordLength   int
	MaxEmailLength      int
	ReservedNameEndings []string
	NameBlacklist       []string
	ResetTokenHours     int
	SendVerification    bool // send the verification email on account creation
	VerifyEmailPage     string
	PasswordResetPage   string
	CallbackURL         string
}

// ThrottleConfig holds the score deltas and thresholds of the request throttle.
type ThrottleConfig struct { //nolint:govet // fieldalignment not critical for config structs
	SuccessDelta   int64
	FailureDelta   int64
	BlockedDelta   int64
	SoftThreshold  int64
	HardThreshold  int64
	DecayDecrement int64
	DecayInterval  time.Duration
}

type StatsConfig struct { //nolint:govet // fieldalignment not critical for config structs
	CreateURL string
	DeleteURL string
	GetURL    string
	EditURL   string
	Timeout   time.Duration
}

type MailConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Provider  string // smtp, log
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	TLSPolicy string // mandatory, opportunistic, none
}

type SteamConfig struct {
	APIKey string
	AppID  string
	URL    string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	Secret string // HMAC secret for session tokens
	TTL    time.Duration
}

type AdminConfig struct {
	Token string // bearer token for operator routes, empty disables the check
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(cmd.String("database-driver")),
			DSN:             cmd.String("database-dsn"),
			MongoURI:        cmd.String("mongo-uri"),
			MongoDatabase:   cmd.String("mongo-database"),
			MongoCollection: cmd.String("mongo-collection"),
		},
		Accounts: AccountsConfig{
			MinNameLength:       int(cmd.Int("name-min-length")),
			MaxNameLength:       int(cmd.Int("name-max-length")),
			MinPasswordLength:   int(cmd.Int("password-min-length")),
			MaxPasswordLength:   int(cmd.Int("password-max-length")),
			MaxEmailLength:      int(cmd.Int("email-max-length")),
			ReservedNameEndings: splitList(cmd.String("reserved-name-endings")),
			NameBlacklist:       splitList(cmd.String("name-blacklist")),
			ResetTokenHours:     int(cmd.Int("reset-token-hours")),
			SendVerification:    cmd.Bool("send-verification-on-create"),
			VerifyEmailPage:     cmd.String("verify-email-page"),
			PasswordResetPage:   cmd.String("password-reset-page"),
			CallbackURL:         cmd.String("callback-url"),
		},
		Throttle: ThrottleConfig{
			SuccessDelta:   int64(cmd.Int("throttle-success")),
			FailureDelta:   int64(cmd.Int("throttle-failure")),
			BlockedDelta:   int64(cmd.Int("throttle-blocked")),
			SoftThreshold:  int64(cmd.Int("throttle-soft-threshold")),
			HardThreshold:  int64(cmd.Int("throttle-hard-threshold")),
			DecayDecrement: int64(cmd.Int("throttle-decrease")),
			DecayInterval:  cmd.Duration("throttle-interval"),
		},
		Stats: StatsConfig{
			CreateURL: cmd.String("stats-create-url"),
			DeleteURL: cmd.String("stats-delete-url"),
			GetURL:    cmd.String("stats-get-url"),
			EditURL:   cmd.String("stats-edit-url"),
			Timeout:   cmd.Duration("stats-timeout"),
		},
		Mail: MailConfig{
			Provider:  strings.ToLower(cmd.String("mail-provider")),
			Host:      cmd.String("smtp-host"),
			Port:      int(cmd.Int("smtp-port")),
			Username:  cmd.String("smtp-username"),
			Password:  cmd.String("smtp-password"),
			From:      cmd.String("mail-from"),
			FromName:  cmd.String("mail-from-name"),
			TLSPolicy: cmd.String("smtp-tls-policy"),
		},
		Steam: SteamConfig{
			APIKey: cmd.String("steam-api-key"),
			AppID:  cmd.String("steam-app-id"),
			URL:    cmd.String("steam-url"),
		},
		Session: SessionConfig{
			Secret: cmd.String("session-secret"),
			TTL:    cmd.Duration("session-ttl"),
		},
		Admin: AdminConfig{
			Token: cmd.String("admin-token"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	if cfg.Accounts.CallbackURL == "" {
		cfg.Accounts.CallbackURL = cfg.Server.BaseURL
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	if cfg.Server.Port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// splitList parses a comma separated list, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func src(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: src("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: src("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL of the service",
			Sources: src("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: src("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: src("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: src("LOG_FORMAT", "log.format"),
		},
		// Database flags
		&cli.StringFlag{
			Name:    "database-driver",
			Value:   "sqlite",
			Usage:   "Account store backend (sqlite, mongo)",
			Sources: src("DATABASE_DRIVER", "database.driver"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/accounts.db",
			Usage:   "SQLite database DSN",
			Sources: src("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "mongo-uri",
			Value:   "mongodb://localhost:27017",
			Usage:   "MongoDB connection URI",
			Sources: src("MONGO_URI", "database.mongo_uri"),
		},
		&cli.StringFlag{
			Name:    "mongo-database",
			Value:   "maestros",
			Usage:   "MongoDB database name",
			Sources: src("MONGO_DATABASE", "database.mongo_database"),
		},
		&cli.StringFlag{
			Name:    "mongo-collection",
			Value:   "users",
			Usage:   "MongoDB collection holding accounts",
			Sources: src("MONGO_COLLECTION", "database.mongo_collection"),
		},
		// Account rules
		&cli.IntFlag{
			Name:    "name-min-length",
			Value:   3,
			Usage:   "Minimum username length",
			Sources: src("NAME_MIN_LENGTH", "accounts.name_min_length"),
		},
		&cli.IntFlag{
			Name:    "name-max-length",
			Value:   15,
			Usage:   "Maximum username length",
			Sources: src("NAME_MAX_LENGTH", "accounts.name_max_length"),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   7,
			Usage:   "Minimum password length",
			Sources: src("PASSWORD_MIN_LENGTH", "accounts.password_min_length"),
		},
		&cli.IntFlag{
			Name:    "password-max-length",
			Value:   30,
			Usage:   "Maximum password length",
			Sources: src("PASSWORD_MAX_LENGTH", "accounts.password_max_length"),
		},
		&cli.IntFlag{
			Name:    "email-max-length",
			Value:   254,
			Usage:   "Maximum email address length",
			Sources: src("EMAIL_MAX_LENGTH", "accounts.email_max_length"),
		},
		&cli.StringFlag{
			Name:    "reserved-name-endings",
			Value:   "_tm",
			Usage:   "Comma separated name suffixes reserved for staff",
			Sources: src("RESERVED_NAME_ENDINGS", "accounts.reserved_name_endings"),
		},
		&cli.StringFlag{
			Name:    "name-blacklist",
			Value:   "damn,shit",
			Usage:   "Comma separated words that may not appear in names",
			Sources: src("NAME_BLACKLIST", "accounts.name_blacklist"),
		},
		&cli.IntFlag{
			Name:    "reset-token-hours",
			Value:   4,
			Usage:   "Hours a password reset link stays valid",
			Sources: src("RESET_TOKEN_HOURS", "accounts.reset_token_hours"),
		},
		&cli.BoolFlag{
			Name:    "send-verification-on-create",
			Usage:   "Send the verification email when an account is created",
			Sources: src("SEND_VERIFICATION_ON_CREATE", "accounts.send_verification_on_create"),
		},
		&cli.StringFlag{
			Name:    "verify-email-page",
			Value:   "https://www.themaestros.com/verify-email",
			Usage:   "Page that consumes email verification links",
			Sources: src("VERIFY_EMAIL_PAGE", "accounts.verify_email_page"),
		},
		&cli.StringFlag{
			Name:    "password-reset-page",
			Value:   "https://www.themaestros.com/password-reset",
			Usage:   "Page that consumes password reset links",
			Sources: src("PASSWORD_RESET_PAGE", "accounts.password_reset_page"),
		},
		&cli.StringFlag{
			Name:    "callback-url",
			Usage:   "Callback URL passed to the verification and reset pages (defaults to base_url)",
			Sources: src("CALLBACK_URL", "accounts.callback_url"),
		},
		// Throttle flags
		&cli.IntFlag{
			Name:    "throttle-success",
			Value:   100,
			Usage:   "Score added for a successful request",
			Sources: src("THROTTLE_SUCCESS", "throttle.success"),
		},
		&cli.IntFlag{
			Name:    "throttle-failure",
			Value:   500,
			Usage:   "Score added for a failed or soft-blocked request",
			Sources: src("THROTTLE_FAILURE", "throttle.failure"),
		},
		&cli.IntFlag{
			Name:    "throttle-blocked",
			Value:   1000,
			Usage:   "Score added for a hard-blocked request",
			Sources: src("THROTTLE_BLOCKED", "throttle.blocked"),
		},
		&cli.IntFlag{
			Name:    "throttle-soft-threshold",
			Value:   7500,
			Usage:   "Score above which requests are rejected with 429",
			Sources: src("THROTTLE_SOFT_THRESHOLD", "throttle.soft_threshold"),
		},
		&cli.IntFlag{
			Name:    "throttle-hard-threshold",
			Value:   10000,
			Usage:   "Score above which connections are dropped",
			Sources: src("THROTTLE_HARD_THRESHOLD", "throttle.hard_threshold"),
		},
		&cli.IntFlag{
			Name:    "throttle-decrease",
			Value:   300,
			Usage:   "Score removed from every connection per decay tick",
			Sources: src("THROTTLE_DECREASE", "throttle.decrease"),
		},
		&cli.DurationFlag{
			Name:    "throttle-interval",
			Value:   5 * time.Second,
			Usage:   "Decay tick interval",
			Sources: src("THROTTLE_INTERVAL", "throttle.interval"),
		},
		// Stats service flags
		&cli.StringFlag{
			Name:    "stats-create-url",
			Value:   "http://localhost:8081/createPlayerStats",
			Usage:   "Stats service create endpoint",
			Sources: src("STATS_CREATE_URL", "stats.create_url"),
		},
		&cli.StringFlag{
			Name:    "stats-delete-url",
			Value:   "http://localhost:8081/deletePlayerStats",
			Usage:   "Stats service delete endpoint",
			Sources: src("STATS_DELETE_URL", "stats.delete_url"),
		},
		&cli.StringFlag{
			Name:    "stats-get-url",
			Value:   "http://localhost:8081/getPlayerStats",
			Usage:   "Stats service lookup endpoint",
			Sources: src("STATS_GET_URL", "stats.get_url"),
		},
		&cli.StringFlag{
			Name:    "stats-edit-url",
			Value:   "http://localhost:8081/editPlayerStats",
			Usage:   "Stats service edit endpoint",
			Sources: src("STATS_EDIT_URL", "stats.edit_url"),
		},
		&cli.DurationFlag{
			Name:    "stats-timeout",
			Value:   10 * time.Second,
			Usage:   "Timeout for stats service calls",
			Sources: src("STATS_TIMEOUT", "stats.timeout"),
		},
		// Mail flags
		&cli.StringFlag{
			Name:    "mail-provider",
			Value:   "log",
			Usage:   "Mail provider (smtp, log)",
			Sources: src("MAIL_PROVIDER", "mail.provider"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: src("SMTP_HOST", "mail.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: src("SMTP_PORT", "mail.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: src("SMTP_USERNAME", "mail.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: src("SMTP_PASSWORD", "mail.password"),
		},
		&cli.StringFlag{
			Name:    "mail-from",
			Value:   "accounts@themaestros.com",
			Usage:   "Sender address",
			Sources: src("MAIL_FROM", "mail.from"),
		},
		&cli.StringFlag{
			Name:    "mail-from-name",
			Value:   "The Maestros",
			Usage:   "Sender display name",
			Sources: src("MAIL_FROM_NAME", "mail.from_name"),
		},
		&cli.StringFlag{
			Name:    "smtp-tls-policy",
			Value:   "mandatory",
			Usage:   "SMTP TLS policy (mandatory, opportunistic, none)",
			Sources: src("SMTP_TLS_POLICY", "mail.tls_policy"),
		},
		// Steam flags
		&cli.StringFlag{
			Name:    "steam-api-key",
			Usage:   "Steam Web API publisher key",
			Sources: src("STEAM_API_KEY", "steam.api_key"),
		},
		&cli.StringFlag{
			Name:    "steam-app-id",
			Usage:   "Steam application id",
			Sources: src("STEAM_APP_ID", "steam.app_id"),
		},
		&cli.StringFlag{
			Name:    "steam-url",
			Value:   "https://api.steampowered.com/ISteamUserAuth/AuthenticateUserTicket/v1/",
			Usage:   "Steam ticket authentication endpoint",
			Sources: src("STEAM_URL", "steam.url"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-secret",
			Usage:   "HMAC secret for session tokens (random per process if empty)",
			Sources: src("SESSION_SECRET", "session.secret"),
		},
		&cli.DurationFlag{
			Name:    "session-ttl",
			Value:   7 * 24 * time.Hour,
			Usage:   "Session token lifetime",
			Sources: src("SESSION_TTL", "session.ttl"),
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "Bearer token required on operator routes",
			Sources: src("ADMIN_TOKEN", "admin.token"),
		},
	}
}
