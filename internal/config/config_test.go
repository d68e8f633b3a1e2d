// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func validConfig() *Config {
	return &Config{
		Token: TokenConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Auth:   AuthConfig{BcryptCost: MinBcryptCost, CodeTTL: 15 * time.Minute},
		Notify: NotifyConfig{Driver: NotifyLog},
	}
}

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestShouldUseTLS(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		host     string
		expected bool
	}{
		{"off mode", "off", "example.com", false},
		{"acme mode", "acme", "localhost", true},
		{"manual mode", "manual", "localhost", true},
		{"auto mode with localhost", "auto", "localhost", false},
		{"auto mode with remote host", "auto", "example.com", true},
		{"empty mode with remote host", "", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldUseTLS(tt.mode, tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		expected string
	}{
		{
			name: "localhost HTTP custom port",
			cfg: &Config{
				Server: ServerConfig{Host: "localhost", Port: 4000},
				TLS:    TLSConfig{Mode: "off"},
			},
			expected: "http://localhost:4000",
		},
		{
			name: "remote host with auto TLS",
			cfg: &Config{
				Server: ServerConfig{Host: "chat.example.com", Port: 443},
				TLS:    TLSConfig{Mode: "auto"},
			},
			expected: "https://chat.example.com",
		},
		{
			name: "ACME mode forces port 443",
			cfg: &Config{
				Server: ServerConfig{Host: "chat.example.com", Port: 4000},
				TLS:    TLSConfig{Mode: "acme"},
			},
			expected: "https://chat.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(tt.cfg))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing secrets", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token.AccessSecret = ""
		cfg.Token.RefreshSecret = ""

		err := cfg.Validate()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET")
		assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")
	})

	t.Run("weak bcrypt cost", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.BcryptCost = 10

		assert.ErrorContains(t, cfg.Validate(), "bcrypt cost")
	})

	t.Run("smtp driver without host", func(t *testing.T) {
		cfg := validConfig()
		cfg.Notify.Driver = NotifySMTP

		assert.ErrorContains(t, cfg.Validate(), "smtp-host")
	})

	t.Run("amqp driver without url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Notify.Driver = NotifyAMQP
		cfg.AMQP.Queue = "q"

		assert.ErrorContains(t, cfg.Validate(), "amqp-url")
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := validConfig()
		cfg.Notify.Driver = "pigeon"

		assert.ErrorContains(t, cfg.Validate(), "unknown notify driver")
	})

	t.Run("redis without window", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.URL = "redis://localhost:6379/0"

		assert.ErrorContains(t, cfg.Validate(), "rate limit")
	})
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Environment: "Production"}}
	assert.True(t, cfg.IsProduction())

	cfg.Server.Environment = "development"
	assert.False(t, cfg.IsProduction())
}

func TestFlags(t *testing.T) {
	flagNames := make(map[string]bool)
	for _, f := range Flags() {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "log-level", "database-dsn", "tls-mode",
		"jwt-access-secret", "jwt-refresh-secret", "jwt-access-expiry", "jwt-refresh-expiry",
		"bcrypt-cost", "notify-driver", "smtp-host", "amqp-url", "redis-url",
	} {
		assert.True(t, flagNames[name], "should have %s flag", name)
	}
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 4000, cfg.Server.Port)
			assert.Equal(t, "http://localhost:4000", cfg.Server.BaseURL)
			assert.Equal(t, "info", cfg.Log.Level)
			assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
			assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
			assert.Equal(t, MinBcryptCost, cfg.Auth.BcryptCost)
			assert.Equal(t, 15*time.Minute, cfg.Auth.CodeTTL)
			assert.Equal(t, NotifySMTP, cfg.Notify.Driver)
			assert.Equal(t, 587, cfg.SMTP.Port)
			assert.True(t, cfg.SMTP.TLS)
			assert.Empty(t, cfg.Redis.URL)

			// Secrets have no defaults
			assert.Error(t, cfg.Validate())
			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "a", cfg.Token.AccessSecret)
			assert.Equal(t, "b", cfg.Token.RefreshSecret)
			assert.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
			assert.Equal(t, NotifyLog, cfg.Notify.Driver)
			assert.True(t, cfg.IsProduction())
			assert.NoError(t, cfg.Validate())

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--environment", "production",
		"--jwt-access-secret", "a",
		"--jwt-refresh-secret", "b",
		"--jwt-access-expiry", "5m",
		"--notify-driver", "LOG",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}
