// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// User is an account in the credential store.
//
// A verified user never carries a pending verification code; an unverified
// user holds at most one code together with its expiry.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID                      string     `db:"id" json:"id"`
	Email                   string     `db:"email" json:"email"`
	PasswordHash            string     `db:"password_hash" json:"-"`
	Name                    string     `db:"name" json:"name"`
	AvatarURL               *string    `db:"avatar_url" json:"avatarUrl"`
	IsEmailVerified         bool       `db:"is_email_verified" json:"isEmailVerified"`
	EmailVerificationCode   *string    `db:"email_verification_code" json:"-"`
	EmailVerificationExpiry *time.Time `db:"email_verification_expiry" json:"-"`
	CreatedAt               time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updatedAt"`
}

// Profile is the public view of a user returned to clients.
type Profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

// Profile returns the client-facing subset of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

// HasPendingCode reports whether a verification code and expiry are stored.
func (u *User) HasPendingCode() bool {
	return u.EmailVerificationCode != nil && u.EmailVerificationExpiry != nil
}
