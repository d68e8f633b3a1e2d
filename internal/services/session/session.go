// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session carries issued token pairs in HTTP cookies.
package session

import (
	"net/http"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/services/token"
)

// Cookie names
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// Manager builds and reads the token cookies.
type Manager struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a cookie manager. Cookies are marked Secure when secure
// is true. Each cookie lives as long as the token it carries.
func NewManager(secure bool, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secure:     secure,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessCookie wraps an access token.
func (m *Manager) AccessCookie(value string) *http.Cookie {
	return m.cookie(AccessCookieName, value, m.accessTTL)
}

// RefreshCookie wraps a refresh token.
func (m *Manager) RefreshCookie(value string) *http.Cookie {
	return m.cookie(RefreshCookieName, value, m.refreshTTL)
}

// SetTokens writes both cookies of pair to w.
func (m *Manager) SetTokens(w http.ResponseWriter, pair token.Pair) {
	http.SetCookie(w, m.AccessCookie(pair.AccessToken))
	http.SetCookie(w, m.RefreshCookie(pair.RefreshToken))
}

// Clear returns expired cookies that remove both tokens from the client.
func (m *Manager) Clear() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, 2)
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := m.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		cookies = append(cookies, c)
	}
	return cookies
}

// ClearTokens writes the expiring cookies to w.
func (m *Manager) ClearTokens(w http.ResponseWriter) {
	for _, c := range m.Clear() {
		http.SetCookie(w, c)
	}
}

// AccessToken returns the access token cookie value, if any.
func (m *Manager) AccessToken(r *http.Request) (string, bool) {
	return cookieValue(r, AccessCookieName)
}

// RefreshToken returns the refresh token cookie value, if any.
func (m *Manager) RefreshToken(r *http.Request) (string, bool) {
	return cookieValue(r, RefreshCookieName)
}

func (m *Manager) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func cookieValue(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
