// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides echo middleware for authentication, rate
// limiting and locale detection.
package middleware

import (
	"strings"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"codeberg.org/oliverandrich/chat-backend/internal/auth"
	"codeberg.org/oliverandrich/chat-backend/internal/services/session"
	"codeberg.org/oliverandrich/chat-backend/internal/services/token"
	"github.com/labstack/echo/v4"
)

// TokenValidator checks a signed token of the expected kind.
type TokenValidator interface {
	Validate(raw string, expected token.Kind) (*token.Claims, error)
}

// ErrUnauthenticated is returned when a protected route is called without
// a valid access token.
var ErrUnauthenticated = apperr.New(apperr.KindUnauthorized, "Unauthorized")

// RequireAccessToken rejects requests without a valid access token. The
// token is read from the access_token cookie, falling back to an
// Authorization: Bearer header.
func RequireAccessToken(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c)
			if raw == "" {
				return ErrUnauthenticated
			}

			claims, err := tokens.Validate(raw, token.KindAccess)
			if err != nil {
				c.Logger().Debugf("access token rejected: %v", err)
				return ErrUnauthenticated
			}

			r := c.Request()
			c.SetRequest(r.WithContext(auth.WithClaims(r.Context(), claims)))
			return next(c)
		}
	}
}

func accessToken(c echo.Context) string {
	if cookie, err := c.Cookie(session.AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	return ""
}
