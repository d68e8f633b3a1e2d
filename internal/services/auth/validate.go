// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"unicode/utf8"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"codeberg.org/oliverandrich/chat-backend/internal/services/otp"
)

const (
	MaxEmailLength = 255
	MinNameLength  = 2
	MaxNameLength  = 100
)

var namePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
}

// DefaultPasswordValidator returns the sign-up password policy.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:        8,
		MaxLength:        128,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
	}
}

// Validate checks a password and returns one field error per violated rule.
func (v *PasswordValidator) Validate(password string) []apperr.FieldError {
	var errs []apperr.FieldError

	length := utf8.RuneCountInString(password)
	if length < v.MinLength {
		errs = append(errs, fieldError("password", fmt.Sprintf("Password must be at least %d characters", v.MinLength)))
	}
	if v.MaxLength > 0 && length > v.MaxLength {
		errs = append(errs, fieldError("password", "Password too long"))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}

	if (v.RequireUppercase && !hasUpper) || (v.RequireLowercase && !hasLower) || (v.RequireDigit && !hasDigit) {
		errs = append(errs, fieldError("password",
			"Password must contain at least one uppercase letter, one lowercase letter, and one number"))
	}

	return errs
}

// ValidateEmail checks that email is present, well formed and not too long.
func ValidateEmail(email string) []apperr.FieldError {
	if email == "" {
		return []apperr.FieldError{fieldError("email", "Email is required")}
	}

	var errs []apperr.FieldError
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs = append(errs, fieldError("email", "Invalid email format"))
	}
	if len(email) > MaxEmailLength {
		errs = append(errs, fieldError("email", "Email too long"))
	}
	return errs
}

// ValidateName checks a display name: letters and spaces only.
func ValidateName(name string) []apperr.FieldError {
	var errs []apperr.FieldError

	length := utf8.RuneCountInString(name)
	if length < MinNameLength {
		errs = append(errs, fieldError("name", fmt.Sprintf("Name must be at least %d characters", MinNameLength)))
	}
	if length > MaxNameLength {
		errs = append(errs, fieldError("name", "Name too long"))
	}
	if length > 0 && !namePattern.MatchString(name) {
		errs = append(errs, fieldError("name", "Name can only contain letters and spaces"))
	}
	return errs
}

// ValidateCode checks that code has the shape of a verification code.
func ValidateCode(code string) []apperr.FieldError {
	if code == "" {
		return []apperr.FieldError{fieldError("code", "Verification code is required")}
	}
	if !otp.Valid(code) {
		return []apperr.FieldError{fieldError("code", fmt.Sprintf("Verification code must be %d digits", otp.Length))}
	}
	return nil
}

func fieldError(field, message string) apperr.FieldError {
	return apperr.FieldError{Field: field, Message: message}
}

// validation collects field errors into a single Validation error, or nil.
func validation(groups ...[]apperr.FieldError) error {
	var fields []apperr.FieldError
	for _, g := range groups {
		fields = append(fields, g...)
	}
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields...)
}
