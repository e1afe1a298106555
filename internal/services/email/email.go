// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email sends the account verification and password reset mails.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/wneessen/go-mail"

	"codeberg.org/oliverandrich/player-accounts/internal/apperr"
	"codeberg.org/oliverandrich/player-accounts/internal/config"
	"codeberg.org/oliverandrich/player-accounts/internal/i18n"
	"codeberg.org/oliverandrich/player-accounts/internal/models"
)

// Sender delivers a plain text mail.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSender returns the sender for the configured provider.
func NewSender(cfg *config.MailConfig) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "smtp":
		return NewSMTPSender(cfg)
	case "", "log":
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg *config.MailConfig
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg *config.MailConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	switch strings.ToLower(s.cfg.TLSPolicy) {
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS on 465, STARTTLS elsewhere
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// Send delivers the mail.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg, err := s.message(to, subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

// LogSender writes mails to the log instead of sending them. Meant for
// development.
type LogSender struct{}

// Send logs the mail.
func (LogSender) Send(_ context.Context, to, subject, body string) error {
	slog.Info("email_logged", "to", to, "subject", subject, "body", body)
	return nil
}

// Links configures the pages the mails point to.
type Links struct {
	VerifyEmailPage   string
	PasswordResetPage string
	CallbackURL       string // base URL of this service
	ResetHours        int
}

// Notifier renders and sends the account mails.
type Notifier struct {
	sender Sender
	links  Links
}

// NewNotifier creates a Notifier.
func NewNotifier(sender Sender, links Links) *Notifier {
	links.CallbackURL = strings.TrimSuffix(links.CallbackURL, "/")
	return &Notifier{sender: sender, links: links}
}

// SendVerification mails the verification link of user.
func (n *Notifier) SendVerification(ctx context.Context, user *models.User) error {
	subject, body := n.VerificationMessage(ctx, user.Name, user.Email, user.VerificationToken)
	if err := n.sender.Send(ctx, user.Email, subject, body); err != nil {
		slog.Error("verification_email_failed", "email", user.Email, "error", err)
		return fmt.Errorf("%w: %w", apperr.ErrMailFailed, err)
	}
	slog.Info("verification_email_sent", "email", user.Email)
	return nil
}

// SendPasswordReset mails a password reset link carrying token.
func (n *Notifier) SendPasswordReset(ctx context.Context, email, token string) error {
	subject, body := n.PasswordResetMessage(ctx, email, token)
	if err := n.sender.Send(ctx, email, subject, body); err != nil {
		slog.Error("password_reset_email_failed", "email", email, "error", err)
		return fmt.Errorf("%w: %w", apperr.ErrMailFailed, err)
	}
	slog.Info("password_reset_email_sent", "email", email)
	return nil
}

// VerificationMessage renders the subject and body of a verification mail.
func (n *Notifier) VerificationMessage(ctx context.Context, name, email, token string) (string, string) {
	link := pageLink(n.links.VerifyEmailPage, url.Values{
		"email":             {email},
		"verificationToken": {token},
		"callbackUrl":       {n.links.CallbackURL + "/v1/verify"},
	})
	subject := i18n.T(ctx, "email_verification_subject")
	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Name": name,
		"Link": link,
	})
	return subject, body
}

// PasswordResetMessage renders the subject and body of a reset mail.
func (n *Notifier) PasswordResetMessage(ctx context.Context, email, token string) (string, string) {
	link := pageLink(n.links.PasswordResetPage, url.Values{
		"email":              {email},
		"passwordResetToken": {token},
		"callbackUrl":        {n.links.CallbackURL + "/v1/password-reset"},
	})
	subject := i18n.T(ctx, "email_reset_subject")
	body := i18n.TData(ctx, "email_reset_body", map[string]any{
		"Hours": n.links.ResetHours,
		"Link":  link,
	})
	return subject, body
}

func pageLink(page string, query url.Values) string {
	sep := "?"
	if strings.Contains(page, "?") {
		sep = "&"
	}
	return page + sep + query.Encode()
}
