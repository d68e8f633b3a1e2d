// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package seed inserts the development accounts used for local testing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/chat-backend/internal/models"
	"codeberg.org/oliverandrich/chat-backend/internal/repository"
	"codeberg.org/oliverandrich/chat-backend/internal/services/password"
)

// Account is a development user. Password is stored hashed.
type Account struct {
	ID        string
	Email     string
	Password  string
	Name      string
	AvatarURL string
}

// Accounts are the seeded development users.
var Accounts = []Account{
	{ID: "u_alice", Email: "alice@example.com", Password: "password123", Name: "Alice", AvatarURL: "https://i.pravatar.cc/150?img=1"},
	{ID: "u_bob", Email: "bob@example.com", Password: "password123", Name: "Bob", AvatarURL: "https://i.pravatar.cc/150?img=2"},
	{ID: "u_charlie", Email: "charlie@example.com", Password: "password123", Name: "Charlie", AvatarURL: "https://i.pravatar.cc/150?img=3"},
	{ID: "u_bot", Email: "bot@chat.local", Password: "bot", Name: "Chat Assistant", AvatarURL: "https://i.pravatar.cc/150?img=8"},
}

// Store is the subset of the repository the seeder needs.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Run creates every account that does not exist yet and returns how many
// were inserted. Seeded accounts are verified.
func Run(ctx context.Context, store Store, cost int) (int, error) {
	created := 0
	for _, acc := range Accounts {
		_, err := store.GetUserByEmail(ctx, acc.Email)
		if err == nil {
			slog.DebugContext(ctx, "seed user exists", "email", acc.Email)
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, fmt.Errorf("looking up %s: %w", acc.Email, err)
		}

		hash, err := password.Hash(acc.Password, cost)
		if err != nil {
			return created, fmt.Errorf("hashing password for %s: %w", acc.Email, err)
		}

		avatar := acc.AvatarURL
		user := &models.User{
			ID:              acc.ID,
			Email:           acc.Email,
			PasswordHash:    string(hash),
			Name:            acc.Name,
			AvatarURL:       &avatar,
			IsEmailVerified: true,
		}
		if err := store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrEmailExists) {
				continue
			}
			return created, fmt.Errorf("creating %s: %w", acc.Email, err)
		}
		created++
		slog.InfoContext(ctx, "seeded user", "email", acc.Email, "id", acc.ID)
	}
	return created, nil
}
