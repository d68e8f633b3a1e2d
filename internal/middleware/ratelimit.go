// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"github.com/labstack/echo/v4"
)

// Limiter decides whether a hit for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Limit() int
}

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = apperr.New(apperr.KindTooManyRequests, "Too many requests, please try again later")

// RateLimit limits requests per route and client IP. A nil limiter
// disables limiting. Limiter failures let the request through.
func RateLimit(limiter Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			key := c.Request().Method + ":" + c.Path() + ":" + c.RealIP()

			allowed, retryAfter, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				slog.WarnContext(c.Request().Context(), "rate_limit_unavailable", "error", err)
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				return ErrRateLimited
			}
			return next(c)
		}
	}
}
