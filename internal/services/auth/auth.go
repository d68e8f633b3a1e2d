// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account and session flow: sign-up, email
// verification, sign-in and token refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"codeberg.org/oliverandrich/chat-backend/internal/models"
	"codeberg.org/oliverandrich/chat-backend/internal/repository"
	"codeberg.org/oliverandrich/chat-backend/internal/services/notify"
	"codeberg.org/oliverandrich/chat-backend/internal/services/otp"
	"codeberg.org/oliverandrich/chat-backend/internal/services/password"
	"codeberg.org/oliverandrich/chat-backend/internal/services/token"
)

// DefaultBcryptCost is the minimum work factor for password hashes.
const DefaultBcryptCost = 12

var (
	ErrEmailTaken          = apperr.New(apperr.KindConflict, "User with this email already exists")
	ErrUserNotFound        = apperr.New(apperr.KindNotFound, "User not found")
	ErrAlreadyVerified     = apperr.New(apperr.KindConflict, "Email is already verified")
	ErrNoCodeIssued        = apperr.New(apperr.KindValidation, "No verification code found. Please request a new one.")
	ErrCodeExpired         = apperr.New(apperr.KindUnauthorized, "Verification code has expired")
	ErrInvalidCode         = apperr.New(apperr.KindUnauthorized, "Invalid verification code")
	ErrInvalidCredentials  = apperr.New(apperr.KindUnauthorized, "Invalid credentials")
	ErrEmailNotVerified    = apperr.New(apperr.KindForbidden, "Please verify your email before signing in")
	ErrInvalidRefreshToken = apperr.New(apperr.KindForbidden, "Invalid refresh token")
	ErrDeliveryFailed      = apperr.New(apperr.KindInternal, "Failed to send verification code")
)

// UserStore is the persistence the flow depends on.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error
	MarkEmailVerified(ctx context.Context, id, code string) error
}

// TokenIssuer mints and checks token pairs.
type TokenIssuer interface {
	Issue(userID, email string) (token.Pair, error)
	Validate(raw string, expected token.Kind) (*token.Claims, error)
}

type Service struct {
	users             UserStore
	tokens            TokenIssuer
	sender            notify.Sender
	passwordValidator *PasswordValidator
	now               func() time.Time
	generateCode      func() (string, error)
	bcryptCost        int
	codeTTL           time.Duration
	logger            *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces the verification code generator.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generateCode = gen }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithCodeTTL sets how long verification codes stay valid.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) { s.codeTTL = ttl }
}

// WithLogger sets the logger for domain events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(users UserStore, tokens TokenIssuer, sender notify.Sender, opts ...Option) *Service {
	s := &Service{
		users:             users,
		tokens:            tokens,
		sender:            sender,
		passwordValidator: DefaultPasswordValidator(),
		now:               time.Now,
		generateCode:      otp.Generate,
		bcryptCost:        DefaultBcryptCost,
		codeTTL:           otp.DefaultTTL,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PasswordValidator returns the password policy used at sign-up.
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// SignUpParams holds the parameters for user registration
type SignUpParams struct {
	Email    string
	Password string
	Name     string
}

// SignUpResult is returned after a successful registration.
type SignUpResult struct {
	Email string
}

// Session is the outcome of a successful verification or sign-in.
type Session struct {
	User   models.Profile
	Tokens token.Pair
}

// SignUp creates an unverified account and sends it a verification code.
// Delivery failures are logged; the account is created regardless.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	if err := validation(
		ValidateEmail(params.Email),
		s.passwordValidator.Validate(params.Password),
		ValidateName(params.Name),
	); err != nil {
		return nil, err
	}

	_, err := s.users.GetUserByEmail(ctx, params.Email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := password.Hash(params.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, expiresAt, err := s.newCode()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:                   params.Email,
		PasswordHash:            string(passwordHash),
		Name:                    params.Name,
		EmailVerificationCode:   &code,
		EmailVerificationExpiry: &expiresAt,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		// Lost a race against a concurrent sign-up for the same address
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "sign_up_success", "user_id", user.ID, "email", user.Email)

	if err := s.send(ctx, user, code, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "verification_email_failed", "user_id", user.ID, "error", err)
	}

	return &SignUpResult{Email: user.Email}, nil
}

// VerifyEmail checks a verification code and signs the user in.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*Session, error) {
	if err := validation(ValidateEmail(email), ValidateCode(code)); err != nil {
		return nil, err
	}

	user, err := s.pendingUser(ctx, email)
	if err != nil {
		return nil, err
	}

	if !user.HasPendingCode() {
		return nil, ErrNoCodeIssued
	}
	if s.now().After(*user.EmailVerificationExpiry) {
		s.logger.WarnContext(ctx, "verify_email_failed", "user_id", user.ID, "reason", "code_expired")
		return nil, ErrCodeExpired
	}
	if *user.EmailVerificationCode != code {
		s.logger.WarnContext(ctx, "verify_email_failed", "user_id", user.ID, "reason", "code_mismatch")
		return nil, ErrInvalidCode
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A resend or a parallel verification replaced the code after it was read.
			s.logger.WarnContext(ctx, "verify_email_failed", "user_id", user.ID, "reason", "code_superseded")
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}
	user.IsEmailVerified = true
	user.EmailVerificationCode = nil
	user.EmailVerificationExpiry = nil

	s.logger.InfoContext(ctx, "email_verified", "user_id", user.ID)

	return s.newSession(user)
}

// ResendCode issues a new verification code, replacing the previous one.
// Unlike SignUp, a delivery failure fails the call.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	if err := validation(ValidateEmail(email)); err != nil {
		return err
	}

	user, err := s.pendingUser(ctx, email)
	if err != nil {
		return err
	}

	code, expiresAt, err := s.newCode()
	if err != nil {
		return err
	}

	if err := s.users.SetVerificationCode(ctx, user.ID, code, expiresAt); err != nil {
		// Verified concurrently
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAlreadyVerified
		}
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.send(ctx, user, code, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "verification_email_failed", "user_id", user.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.logger.InfoContext(ctx, "verification_code_resent", "user_id", user.ID)
	return nil
}

// SignIn authenticates a verified user by email and password.
func (s *Service) SignIn(ctx context.Context, email, pw string) (*Session, error) {
	var passwordErrs []apperr.FieldError
	if pw == "" {
		passwordErrs = append(passwordErrs, fieldError("password", "Password is required"))
	}
	if err := validation(ValidateEmail(email), passwordErrs); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = password.Compare(s.dummy(), pw)
			s.logger.WarnContext(ctx, "sign_in_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsEmailVerified {
		s.logger.WarnContext(ctx, "sign_in_failed", "user_id", user.ID, "reason", "email_not_verified")
		return nil, ErrEmailNotVerified
	}

	if err := password.Compare([]byte(user.PasswordHash), pw); err != nil {
		s.logger.WarnContext(ctx, "sign_in_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	s.logger.InfoContext(ctx, "sign_in_success", "user_id", user.ID)
	return s.newSession(user)
}

// Refresh exchanges a refresh token for a new token pair. Every rejection
// looks the same to the caller; the cause is only logged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := s.tokens.Validate(refreshToken, token.KindRefresh)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh_rejected", "reason", refreshReason(err))
		return token.Pair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.WarnContext(ctx, "refresh_rejected", "user_id", claims.Subject, "reason", "user_not_found")
			return token.Pair{}, ErrInvalidRefreshToken
		}
		return token.Pair{}, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsEmailVerified {
		s.logger.WarnContext(ctx, "refresh_rejected", "user_id", user.ID, "reason", "email_not_verified")
		return token.Pair{}, ErrInvalidRefreshToken
	}

	pair, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return token.Pair{}, fmt.Errorf("failed to issue tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens_refreshed", "user_id", user.ID)
	return pair, nil
}

// Logout ends a session. Tokens are stateless, so there is nothing to
// revoke server side; clients drop their cookies.
func (s *Service) Logout(ctx context.Context) error {
	s.logger.DebugContext(ctx, "logout")
	return nil
}

// Me returns the profile of the user behind an access token subject.
func (s *Service) Me(ctx context.Context, userID string) (models.Profile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Profile{}, ErrUserNotFound
		}
		return models.Profile{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user.Profile(), nil
}

// pendingUser loads an account that still awaits verification.
func (s *Service) pendingUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsEmailVerified {
		return nil, ErrAlreadyVerified
	}
	return user, nil
}

func (s *Service) newCode() (string, time.Time, error) {
	code, err := s.generateCode()
	if err != nil {
		return "", time.Time{}, apperr.Wrap(err, "Failed to generate verification code")
	}
	return code, s.now().Add(s.codeTTL).UTC(), nil
}

func (s *Service) send(ctx context.Context, user *models.User, code string, expiresAt time.Time) error {
	return s.sender.SendVerificationCode(ctx, notify.Message{
		To:        user.Email,
		Name:      user.Name,
		Code:      code,
		ExpiresAt: expiresAt,
		TTL:       s.codeTTL,
	})
}

func (s *Service) newSession(user *models.User) (*Session, error) {
	pair, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return &Session{User: user.Profile(), Tokens: pair}, nil
}

// dummy returns a hash to compare against when the user does not exist,
// so unknown emails cost as much as wrong passwords.
func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = password.Hash("dummy-password-for-timing", s.bcryptCost)
	})
	return s.dummyHash
}

func refreshReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrWrongKind):
		return "wrong_kind"
	default:
		return "invalid"
	}
}
