// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
	"codeberg.org/oliverandrich/player-accounts/internal/services/stats"
)

// Outcome classifies a finished provisioning attempt.
type Outcome int

const (
	// OutcomeCreated means the account and its stats record both exist.
	OutcomeCreated Outcome = iota
	// OutcomeCreatedRemoteFailed means stats creation failed and the
	// account was deleted again.
	OutcomeCreatedRemoteFailed
	// OutcomeCompensationFailed means stats creation failed and the account
	// could not be deleted. It is orphaned.
	OutcomeCompensationFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeCreatedRemoteFailed:
		return "created_remote_failed"
	case OutcomeCompensationFailed:
		return "compensation_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ProvisioningOutcome is the result of the remote step.
type ProvisioningOutcome struct {
	User      *models.User
	RemoteErr error
	Succeeded bool
}

// ProvisioningResult is the result of a whole provisioning attempt.
type ProvisioningResult struct { //nolint:govet // fieldalignment: readability over optimization
	Outcome         Outcome
	User            *models.User
	RemoteErr       error
	CompensationErr error
}

// ProvisionerConfig tunes a Provisioner.
type ProvisionerConfig struct { //nolint:govet // fieldalignment not critical
	SendVerificationOnCreate bool
	// CompensationRetries is the number of retries after the first
	// compensating delete attempt.
	CompensationRetries uint64
	CompensationBackoff time.Duration
	CompensationTimeout time.Duration
	Registerer          prometheus.Registerer // nil: metrics are not exported
}

type provisionerMetrics struct {
	outcomes      *prometheus.CounterVec
	statsCleanups prometheus.Counter
}

func newProvisionerMetrics(reg prometheus.Registerer) *provisionerMetrics {
	m := &provisionerMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "player_accounts_provisioning_total",
			Help: "Account provisioning attempts by outcome.",
		}, []string{"outcome"}),
		statsCleanups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "player_accounts_stats_cleanup_failures_total",
			Help: "Stats records left behind after account deletion.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.statsCleanups)
	}
	return m
}

// Provisioner creates and deletes accounts together with their stats
// records. When stats creation fails the fresh account is deleted again
// before the stats error is returned.
type Provisioner struct {
	manager  *Manager
	stats    StatsService
	notifier Notifier
	cfg      ProvisionerConfig
	metrics  *provisionerMetrics
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(manager *Manager, statsService StatsService, notifier Notifier, cfg ProvisionerConfig) *Provisioner {
	if cfg.CompensationBackoff <= 0 {
		cfg.CompensationBackoff = 100 * time.Millisecond
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 10 * time.Second
	}
	return &Provisioner{
		manager:  manager,
		stats:    statsService,
		notifier: notifier,
		cfg:      cfg,
		metrics:  newProvisionerMetrics(cfg.Registerer),
	}
}

// Manager returns the lifecycle manager the provisioner drives.
func (p *Provisioner) Manager() *Manager {
	return p.manager
}

// Provision creates an account and its stats record. On OutcomeCreated the
// verification mail is sent when configured; a mail failure is returned
// with the result but the account stays. On the two failure outcomes the
// returned error is the stats error.
func (p *Provisioner) Provision(ctx context.Context, req CreateRequest) (*ProvisioningResult, error) {
	return p.provision(ctx, req, p.cfg.SendVerificationOnCreate)
}

// ProvisionWithTicket resolves an external session ticket to an external
// id and provisions an account bound to it. The verification mail is always
// sent.
func (p *Provisioner) ProvisionWithTicket(ctx context.Context, req CreateRequest, ticket string) (*ProvisioningResult, error) {
	externalID, err := p.manager.ResolveTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	req.ExternalID = externalID
	return p.provision(ctx, req, true)
}

func (p *Provisioner) provision(ctx context.Context, req CreateRequest, sendVerification bool) (*ProvisioningResult, error) {
	user, err := p.manager.CreateAccount(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome := p.createRemote(ctx, user)
	if outcome.Succeeded {
		p.metrics.outcomes.WithLabelValues(OutcomeCreated.String()).Inc()
		result := &ProvisioningResult{Outcome: OutcomeCreated, User: user}
		if sendVerification {
			if err := p.notifier.SendVerification(ctx, user); err != nil {
				return result, err
			}
		}
		return result, nil
	}

	result := &ProvisioningResult{
		Outcome:   OutcomeCreatedRemoteFailed,
		User:      user,
		RemoteErr: outcome.RemoteErr,
	}
	if err := p.compensate(ctx, user.Name); err != nil {
		result.Outcome = OutcomeCompensationFailed
		result.CompensationErr = err
		slog.Error("compensation_failed", "name", user.Name, "remote_error", outcome.RemoteErr, "error", err)
	} else {
		slog.Warn("account_rolled_back", "name", user.Name, "remote_error", outcome.RemoteErr)
	}
	p.metrics.outcomes.WithLabelValues(result.Outcome.String()).Inc()

	return result, outcome.RemoteErr
}

// createRemote creates the stats record. Failures are recorded in the
// outcome, never returned.
func (p *Provisioner) createRemote(ctx context.Context, user *models.User) ProvisioningOutcome {
	err := p.stats.CreateStats(ctx, user.NormalizedName)
	if err == nil {
		return ProvisioningOutcome{Succeeded: true, User: user}
	}
	if !errors.Is(err, apperr.ErrStatsUnavailable) {
		err = fmt.Errorf("%w: %w", apperr.ErrStatsUnavailable, err)
	}
	return ProvisioningOutcome{Succeeded: false, User: user, RemoteErr: err}
}

// compensate deletes the account without touching stats, retrying with
// exponential backoff. Not found counts as done. It runs detached from the
// request's cancellation so a disconnecting client cannot orphan the
// account.
func (p *Provisioner) compensate(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CompensationTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(p.cfg.CompensationRetries, retry.NewExponential(p.cfg.CompensationBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.manager.DeleteAccount(ctx, name)
		if err == nil || errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		slog.Warn("compensation_attempt_failed", "name", name, "error", err)
		return retry.RetryableError(err)
	})
}

// Deprovision deletes an account and then its stats record. A stats
// failure is logged and counted; the account stays deleted.
func (p *Provisioner) Deprovision(ctx context.Context, name string) error {
	if err := p.manager.DeleteAccount(ctx, name); err != nil {
		return err
	}
	if err := p.stats.DeleteStats(ctx, models.NormalizeName(name)); err != nil {
		p.metrics.statsCleanups.Inc()
		slog.Error("stats_cleanup_failed", "name", name, "error", err)
	}
	return nil
}

// DeleteWithoutStats deletes only the account.
func (p *Provisioner) DeleteWithoutStats(ctx context.Context, name string) error {
	return p.manager.DeleteAccount(ctx, name)
}

// Lookup selects an account by name or, when Name is empty, by email.
type Lookup struct {
	Name  string
	Email string
}

func (p *Provisioner) find(ctx context.Context, lookup Lookup) (*models.User, error) {
	if lookup.Name != "" {
		return p.manager.GetByName(ctx, lookup.Name)
	}
	return p.manager.GetByEmail(ctx, lookup.Email)
}

// AccountInfo returns the stats document of an account merged with its
// account fields.
func (p *Provisioner) AccountInfo(ctx context.Context, lookup Lookup) (map[string]any, error) {
	user, err := p.find(ctx, lookup)
	if err != nil {
		return nil, err
	}

	info, err := p.stats.GetStats(ctx, user.NormalizedName)
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = map[string]any{}
	}
	info["email"] = user.Email
	info["verified"] = user.Verified
	info["lastLogin"] = models.Millis(user.LastLogin)
	info["createdAt"] = user.CreatedAt.UnixMilli()
	return info, nil
}

// EditRequest is an operator change to an account and its stats.
type EditRequest struct {
	Stats    stats.Edit
	Verified bool
}

// UpdateAccountInfo sets the verified flag and forwards the stats edit. The
// returned document is the edited stats with the verified flag.
func (p *Provisioner) UpdateAccountInfo(ctx context.Context, req EditRequest) (map[string]any, error) {
	user, err := p.manager.SetVerified(ctx, req.Stats.PlayerUniqueName, req.Verified)
	if err != nil {
		return nil, err
	}

	info, err := p.stats.EditStats(ctx, req.Stats)
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = map[string]any{}
	}
	info["verified"] = user.Verified
	return info, nil
}

// ResendVerification mails the verification link again.
func (p *Provisioner) ResendVerification(ctx context.Context, email string) error {
	user, err := p.manager.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return p.notifier.SendVerification(ctx, user)
}

// SendPasswordReset issues a reset token and mails it. It returns the
// normalized email the mail went to.
func (p *Provisioner) SendPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := p.manager.IssuePasswordReset(ctx, email)
	if err != nil {
		return "", err
	}
	normalized := models.NormalizeEmail(email)
	if err := p.notifier.SendPasswordReset(ctx, normalized, token); err != nil {
		return "", err
	}
	return normalized, nil
}
