// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit implements a fixed-window request limiter backed by Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps failures talking to Redis.
var ErrUnavailable = errors.New("rate limiter unavailable")

const keyPrefix = "ratelimit:"

// Limiter allows up to limit hits per key within each window.
type Limiter struct {
	rdb    redis.UniversalClient
	limit  int64
	window time.Duration
}

// New creates a limiter. limit and window must be positive.
func New(rdb redis.UniversalClient, limit int, window time.Duration) (*Limiter, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d per %s", limit, window)
	}
	return &Limiter{rdb: rdb, limit: int64(limit), window: window}, nil
}

// Limit returns the configured number of hits per window.
func (l *Limiter) Limit() int {
	return int(l.limit)
}

// Allow records a hit for key. When the key is over its limit, allowed is
// false and retryAfter tells when the window resets.
func (l *Limiter) Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error) {
	k := keyPrefix + key

	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	if n <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if ttl < 0 {
		// Key lost its expiry; start a fresh window.
		_ = l.rdb.Expire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}
