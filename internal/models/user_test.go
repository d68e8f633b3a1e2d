// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_Profile(t *testing.T) {
	avatar := "https://i.pravatar.cc/150?img=1"
	user := &models.User{
		ID:           "u1",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Name:         "Alice",
		AvatarURL:    &avatar,
	}

	p := user.Profile()

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, &avatar, p.AvatarURL)
}

func TestProfile_JSON(t *testing.T) {
	user := &models.User{ID: "u1", Email: "bob@example.com", Name: "Bob"}

	data, err := json.Marshal(user.Profile())
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"u1","email":"bob@example.com","name":"Bob","avatarUrl":null}`, string(data))
}

func TestUser_JSONHidesSecrets(t *testing.T) {
	code := "123456"
	user := &models.User{ID: "u1", PasswordHash: "secret-hash", EmailVerificationCode: &code}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-hash")
	assert.NotContains(t, string(data), "123456")
}

func TestUser_HasPendingCode(t *testing.T) {
	code := "123456"
	expiry := time.Now()

	assert.False(t, (&models.User{}).HasPendingCode())
	assert.False(t, (&models.User{EmailVerificationCode: &code}).HasPendingCode())
	assert.True(t, (&models.User{EmailVerificationCode: &code, EmailVerificationExpiry: &expiry}).HasPendingCode())
}
