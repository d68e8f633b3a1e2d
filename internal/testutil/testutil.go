// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/database"
	"codeberg.org/oliverandrich/chat-backend/internal/models"
	"codeberg.org/oliverandrich/chat-backend/internal/repository"
	"codeberg.org/oliverandrich/chat-backend/internal/services/notify"
	"codeberg.org/oliverandrich/chat-backend/internal/services/password"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword satisfies the password policy and is used for fixture users.
const TestPassword = "Passw0rd!"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// NewTestUser creates a user with TestPassword. Verified users carry no code.
func NewTestUser(t *testing.T, repo *repository.Repository, email string, verified bool) *models.User {
	t.Helper()
	hash, err := password.Hash(TestPassword, bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:           email,
		PasswordHash:    string(hash),
		Name:            "Test User",
		IsEmailVerified: verified,
	}
	if !verified {
		code := "123456"
		expiry := time.Now().Add(15 * time.Minute).UTC()
		user.EmailVerificationCode = &code
		user.EmailVerificationExpiry = &expiry
	}

	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// RecordingSender captures verification messages instead of delivering them.
// Err, when set, is returned from every send.
type RecordingSender struct {
	mu       sync.Mutex
	Messages []notify.Message
	Err      error
}

// SendVerificationCode implements notify.Sender.
func (s *RecordingSender) SendVerificationCode(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	return s.Err
}

// LastCode returns the code of the most recent message to the given address.
func (s *RecordingSender) LastCode(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].To == to {
			return s.Messages[i].Code
		}
	}
	return ""
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// NewRequest creates an HTTP request with a JSON content type.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// FindCookie returns the named cookie set on the recorded response, or nil.
func FindCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
