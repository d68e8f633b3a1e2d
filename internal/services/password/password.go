// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package password hashes and checks account passwords.
//
// bcrypt only reads the first 72 bytes of its input, and x/crypto rejects
// longer passwords outright. Passwords are therefore reduced to the base64
// form of their SHA-256 digest (44 bytes) before they reach bcrypt.
package password

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// Hash returns the bcrypt hash of password at the given cost.
func Hash(password string, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword(prehash(password), cost)
}

// Compare reports whether password matches hash. It returns
// bcrypt.ErrMismatchedHashAndPassword on mismatch.
func Compare(hash []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hash, prehash(password))
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}
