// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and validates the signed access/refresh token pair.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrWrongKind    = errors.New("wrong token kind")
)

// Config holds the signing secrets and lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	Kind  Kind   `json:"type"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access and refresh token.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer mints and validates tokens. It is safe for concurrent use.
type Issuer struct {
	keys map[Kind][]byte
	ttls map[Kind]time.Duration
	now  func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock replaces the time source used for issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer. Both secrets are required.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("access token secret is required")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	i := &Issuer{
		keys: map[Kind][]byte{
			KindAccess:  []byte(cfg.AccessSecret),
			KindRefresh: []byte(cfg.RefreshSecret),
		},
		ttls: map[Kind]time.Duration{
			KindAccess:  cfg.AccessTTL,
			KindRefresh: cfg.RefreshTTL,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured lifetime for tokens of kind k.
func (i *Issuer) TTL(k Kind) time.Duration {
	return i.ttls[k]
}

// Issue mints a new access and refresh token for the user.
func (i *Issuer) Issue(userID, email string) (Pair, error) {
	access, err := i.sign(userID, email, KindAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(userID, email, KindRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) sign(userID, email string, kind Kind) (string, error) {
	now := i.now()
	claims := Claims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttls[kind])),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys[kind])
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and checks that the token is of
// the expected kind. The signing key is chosen by the token's declared kind,
// so a genuine token of the other kind yields ErrWrongKind rather than a
// signature failure.
func (i *Issuer) Validate(tokenString string, expected Kind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		c, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrInvalidToken
		}
		key, ok := i.keys[c.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown token type %q", c.Kind)
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Kind != expected {
		return nil, ErrWrongKind
	}
	return claims, nil
}
