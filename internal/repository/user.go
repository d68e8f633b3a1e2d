// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, avatar_url, is_email_verified,
	email_verification_code, email_verification_expiry, created_at, updated_at`

// CreateUser inserts a new user. An empty ID is replaced by a random UUID.
// Returns ErrEmailExists when the email is already taken.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :password_hash, :name, :avatar_url, :is_email_verified,
			:email_verification_code, :email_verification_expiry, :created_at, :updated_at)`, user)
	return wrapError(err)
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by exact email match.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// SetVerificationCode replaces the pending verification code of an unverified user.
func (r *Repository) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verification_code = ?, email_verification_expiry = ?, updated_at = ?
		WHERE id = ? AND is_email_verified = 0`,
		code, expiresAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// MarkEmailVerified flags the user as verified and clears the pending code,
// provided code is still the pending one. Returns ErrNotFound when the user
// is missing, already verified, or holds a different code.
func (r *Repository) MarkEmailVerified(ctx context.Context, id, code string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_email_verified = 1, email_verification_code = NULL,
			email_verification_expiry = NULL, updated_at = ?
		WHERE id = ? AND is_email_verified = 0 AND email_verification_code = ?`,
		time.Now().UTC(), id, code)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
