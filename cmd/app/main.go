// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"codeberg.org/oliverandrich/chat-backend/internal/config"
	"codeberg.org/oliverandrich/chat-backend/internal/database"
	"codeberg.org/oliverandrich/chat-backend/internal/repository"
	"codeberg.org/oliverandrich/chat-backend/internal/seed"
	"codeberg.org/oliverandrich/chat-backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Chat backend authentication service",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: withDB(func(_ context.Context, _ *cli.Command, _ *sqlx.DB) error { return nil }),
			},
			{
				Name:  "down",
				Usage: "Roll back the most recent migration",
				Action: withDB(func(_ context.Context, _ *cli.Command, db *sqlx.DB) error {
					return database.MigrateDown(db.DB)
				}),
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Action: withDB(func(_ context.Context, _ *cli.Command, db *sqlx.DB) error {
					return database.MigrateReset(db.DB)
				}),
			},
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Insert the development users",
		Action: withDB(func(ctx context.Context, cmd *cli.Command, db *sqlx.DB) error {
			cfg := config.NewFromCLI(cmd)
			created, err := seed.Run(ctx, repository.New(db), cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}
			slog.Info("seed complete", "created", created)
			return nil
		}),
	}
}

// withDB opens the configured database, which applies pending migrations,
// runs fn and reports the resulting schema version.
func withDB(fn func(context.Context, *cli.Command, *sqlx.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)

		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := fn(ctx, cmd, db); err != nil {
			return err
		}

		version, err := database.Version(db.DB)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		slog.Info("database ready", "dsn", cfg.Database.DSN, "version", version)
		return nil
	}
}
