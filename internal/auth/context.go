// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/chat-backend/internal/ctxkeys"
	"codeberg.org/oliverandrich/chat-backend/internal/services/token"
)

// WithClaims returns a context carrying the claims of a validated access token.
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ctxkeys.Claims{}, claims)
}

// GetClaims returns the authenticated claims from the context, or nil if not authenticated.
func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(ctxkeys.Claims{}).(*token.Claims); ok {
		return claims
	}
	return nil
}

// UserID returns the subject of the authenticated claims, or "".
func UserID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// IsAuthenticated returns true if the context has authenticated claims.
func IsAuthenticated(ctx context.Context) bool {
	return GetClaims(ctx) != nil
}
