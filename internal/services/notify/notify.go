// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package notify defines how verification codes reach users.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Message is a verification code addressed to a user.
type Message struct {
	To        string
	Name      string
	Code      string
	ExpiresAt time.Time
	// TTL is how long the code stays valid from the moment it was issued.
	TTL time.Duration
}

// ValidMinutes returns the TTL in whole minutes, rounded up.
func (m Message) ValidMinutes() int {
	return int((m.TTL + time.Minute - 1) / time.Minute)
}

// Sender delivers verification codes.
type Sender interface {
	SendVerificationCode(ctx context.Context, msg Message) error
}

// LogSender writes codes to the log instead of delivering them.
// Intended for local development only.
type LogSender struct {
	Logger *slog.Logger
}

// SendVerificationCode implements Sender.
func (s LogSender) SendVerificationCode(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "verification_code",
		"to", msg.To,
		"code", msg.Code,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
