// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp generates the numeric email verification codes.
package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"
)

const (
	// Length is the number of digits in a code.
	Length = 6
	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 15 * time.Minute

	minCode = 100000
	maxCode = 999999
)

var span = big.NewInt(maxCode - minCode + 1)

// Generate returns a code drawn uniformly from 100000-999999 using crypto/rand.
func Generate() (string, error) {
	return generateFrom(rand.Reader)
}

func generateFrom(r io.Reader) (string, error) {
	n, err := rand.Int(r, span)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+minCode, 10), nil
}

// Valid reports whether code is exactly six ASCII digits.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
