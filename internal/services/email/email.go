// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers verification codes over SMTP.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"codeberg.org/oliverandrich/chat-backend/internal/config"
	"codeberg.org/oliverandrich/chat-backend/internal/i18n"
	"codeberg.org/oliverandrich/chat-backend/internal/services/notify"
	"github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var verificationTmpl = template.Must(template.ParseFS(templateFS, "templates/verification.html"))

// Service sends verification codes via SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

var _ notify.Sender = (*Service)(nil)

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{cfg: cfg}, nil
}

// Content is a rendered verification email.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Render builds the localized verification email for msg.
// The locale is taken from ctx.
func Render(ctx context.Context, msg notify.Message) (Content, error) {
	data := struct {
		Locale, Subject, Greeting, Intro, Code, Expiry, Ignore string
	}{
		Locale:   i18n.GetLocale(ctx),
		Subject:  i18n.T(ctx, "email_verification_subject"),
		Greeting: i18n.TData(ctx, "email_verification_greeting", map[string]any{"Name": msg.Name}),
		Intro:    i18n.T(ctx, "email_verification_intro"),
		Code:     msg.Code,
		Expiry:   i18n.TData(ctx, "email_verification_expiry", map[string]any{"Minutes": msg.ValidMinutes()}),
		Ignore:   i18n.T(ctx, "email_verification_ignore"),
	}

	var html bytes.Buffer
	if err := verificationTmpl.Execute(&html, data); err != nil {
		return Content{}, fmt.Errorf("rendering verification email: %w", err)
	}

	text := strings.Join([]string{data.Greeting, "", data.Intro, "", "    " + data.Code, "", data.Expiry, "", data.Ignore}, "\n")

	return Content{Subject: data.Subject, HTML: html.String(), Text: text}, nil
}

// SendVerificationCode implements notify.Sender.
func (s *Service) SendVerificationCode(ctx context.Context, msg notify.Message) error {
	content, err := Render(ctx, msg)
	if err != nil {
		return err
	}
	return s.send(ctx, msg.To, content)
}

// send sends an email via SMTP using go-mail.
func (s *Service) send(ctx context.Context, to string, content Content) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(content.Subject)
	msg.SetBodyString(mail.TypeTextHTML, content.HTML)
	msg.AddAlternativeString(mail.TypeTextPlain, content.Text)

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Implicit TLS on 465, STARTTLS everywhere else
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
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
