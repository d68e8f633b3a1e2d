// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// MinBcryptCost is the lowest password hashing cost accepted at startup.
const MinBcryptCost = 12

// Notification drivers.
const (
	NotifySMTP = "smtp"
	NotifyAMQP = "amqp"
	NotifyLog  = "log"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	TLS       TLSConfig
	Token     TokenConfig
	Auth      AuthConfig
	Notify    NotifyConfig
	SMTP      SMTPConfig
	AMQP      AMQPConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int    // in MB
	Environment string // development, production
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// TokenConfig holds the signing secrets and lifetimes of the token pair.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type AuthConfig struct {
	BcryptCost int
	CodeTTL    time.Duration
}

type NotifyConfig struct {
	Driver string // smtp, amqp, log
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type AMQPConfig struct {
	URL   string
	Queue string
}

type RedisConfig struct {
	URL string // empty disables rate limiting
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			Environment: cmd.String("environment"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Token: TokenConfig{
			AccessSecret:  cmd.String("jwt-access-secret"),
			RefreshSecret: cmd.String("jwt-refresh-secret"),
			AccessTTL:     cmd.Duration("jwt-access-expiry"),
			RefreshTTL:    cmd.Duration("jwt-refresh-expiry"),
		},
		Auth: AuthConfig{
			BcryptCost: int(cmd.Int("bcrypt-cost")),
			CodeTTL:    cmd.Duration("verification-code-ttl"),
		},
		Notify: NotifyConfig{
			Driver: strings.ToLower(cmd.String("notify-driver")),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		AMQP: AMQPConfig{
			URL:   cmd.String("amqp-url"),
			Queue: cmd.String("amqp-queue"),
		},
		Redis: RedisConfig{
			URL: cmd.String("redis-url"),
		},
		RateLimit: RateLimitConfig{
			Requests: int(cmd.Int("rate-limit-requests")),
			Window:   cmd.Duration("rate-limit-window"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate reports configuration that must prevent the server from starting.
func (c *Config) Validate() error {
	var errs []error

	if c.Token.AccessSecret == "" {
		errs = append(errs, errors.New("jwt access secret is required (JWT_ACCESS_SECRET)"))
	}
	if c.Token.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt refresh secret is required (JWT_REFRESH_SECRET)"))
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Auth.BcryptCost < MinBcryptCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be at least %d", MinBcryptCost))
	}
	if c.Auth.CodeTTL <= 0 {
		errs = append(errs, errors.New("verification code ttl must be positive"))
	}

	switch c.Notify.Driver {
	case NotifySMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("smtp driver requires smtp-host and smtp-from"))
		}
	case NotifyAMQP:
		if c.AMQP.URL == "" || c.AMQP.Queue == "" {
			errs = append(errs, errors.New("amqp driver requires amqp-url and amqp-queue"))
		}
	case NotifyLog:
	default:
		errs = append(errs, fmt.Errorf("unknown notify driver: %q", c.Notify.Driver))
	}

	if c.Redis.URL != "" && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   4000,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL of the API",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:  "environment",
			Value: "development",
			Usage: "Runtime environment (development, production)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("APP_ENV"),
				cli.EnvVar("NODE_ENV"),
				toml.TOML("server.environment", configFile),
			),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "off",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "jwt-access-secret",
			Usage:   "HMAC secret for access tokens (required)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_ACCESS_SECRET"), toml.TOML("token.access_secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "jwt-refresh-secret",
			Usage:   "HMAC secret for refresh tokens (required)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_REFRESH_SECRET"), toml.TOML("token.refresh_secret", configFile)),
		},
		&cli.DurationFlag{
			Name:    "jwt-access-expiry",
			Value:   15 * time.Minute,
			Usage:   "Access token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_ACCESS_EXPIRY"), toml.TOML("token.access_expiry", configFile)),
		},
		&cli.DurationFlag{
			Name:    "jwt-refresh-expiry",
			Value:   7 * 24 * time.Hour,
			Usage:   "Refresh token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_REFRESH_EXPIRY"), toml.TOML("token.refresh_expiry", configFile)),
		},
		// Auth flags
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   MinBcryptCost,
			Usage:   "bcrypt cost for password hashes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("auth.bcrypt_cost", configFile)),
		},
		&cli.DurationFlag{
			Name:    "verification-code-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of email verification codes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("VERIFICATION_CODE_TTL"), toml.TOML("auth.code_ttl", configFile)),
		},
		// Notification flags
		&cli.StringFlag{
			Name:    "notify-driver",
			Value:   NotifySMTP,
			Usage:   "Verification code delivery (smtp, amqp, log)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("NOTIFY_DRIVER"), toml.TOML("notify.driver", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USER"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASS"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FROM_EMAIL"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Chat App",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP (STARTTLS, implicit TLS on port 465)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.StringFlag{
			Name:    "amqp-url",
			Usage:   "RabbitMQ URL for the amqp notify driver",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AMQP_URL"), toml.TOML("amqp.url", configFile)),
		},
		&cli.StringFlag{
			Name:    "amqp-queue",
			Value:   "auth.verification_code",
			Usage:   "Queue receiving verification code events",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AMQP_QUEUE"), toml.TOML("amqp.queue", configFile)),
		},
		// Rate limit flags
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for rate limiting (disabled when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_URL"), toml.TOML("redis.url", configFile)),
		},
		&cli.IntFlag{
			Name:    "rate-limit-requests",
			Value:   10,
			Usage:   "Requests allowed per client and auth route within one window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_REQUESTS"), toml.TOML("rate_limit.requests", configFile)),
		},
		&cli.DurationFlag{
			Name:    "rate-limit-window",
			Value:   time.Minute,
			Usage:   "Rate limit window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATE_LIMIT_WINDOW"), toml.TOML("rate_limit.window", configFile)),
		},
	}
}
