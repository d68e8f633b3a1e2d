// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage and services into the echo
// HTTP server.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/config"
	"codeberg.org/oliverandrich/chat-backend/internal/database"
	"codeberg.org/oliverandrich/chat-backend/internal/handlers"
	"codeberg.org/oliverandrich/chat-backend/internal/i18n"
	appmw "codeberg.org/oliverandrich/chat-backend/internal/middleware"
	"codeberg.org/oliverandrich/chat-backend/internal/repository"
	authsvc "codeberg.org/oliverandrich/chat-backend/internal/services/auth"
	"codeberg.org/oliverandrich/chat-backend/internal/services/email"
	"codeberg.org/oliverandrich/chat-backend/internal/services/mailqueue"
	"codeberg.org/oliverandrich/chat-backend/internal/services/notify"
	"codeberg.org/oliverandrich/chat-backend/internal/services/ratelimit"
	"codeberg.org/oliverandrich/chat-backend/internal/services/session"
	"codeberg.org/oliverandrich/chat-backend/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// APIPrefix is the path prefix of all API routes.
const APIPrefix = "/api/v1"

const shutdownTimeout = 10 * time.Second

// Deps are the services the router dispatches to.
type Deps struct {
	DB      handlers.Pinger
	Auth    *authsvc.Service
	Tokens  *token.Issuer
	Cookies *session.Manager
	// Limiter throttles the credential endpoints. Nil disables limiting.
	Limiter appmw.Limiter
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"environment", cfg.Server.Environment,
	)

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	repo := repository.New(db)

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	sender, closeSender, err := newSender(cfg)
	if err != nil {
		return fmt.Errorf("failed to create notification sender: %w", err)
	}
	defer func() {
		if closeErr := closeSender(); closeErr != nil {
			slog.Error("failed to close notification sender", "error", closeErr)
		}
	}()

	deps := Deps{
		DB: db,
		Auth: authsvc.NewService(repo, issuer, sender,
			authsvc.WithBcryptCost(cfg.Auth.BcryptCost),
			authsvc.WithCodeTTL(cfg.Auth.CodeTTL),
		),
		Tokens:  issuer,
		Cookies: session.NewManager(cfg.IsProduction(), issuer.TTL(token.KindAccess), issuer.TTL(token.KindRefresh)),
	}

	if cfg.Redis.URL != "" {
		rdb, redisErr := database.OpenRedis(ctx, cfg.Redis.URL)
		if redisErr != nil {
			return fmt.Errorf("failed to connect to redis: %w", redisErr)
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Error("failed to close redis", "error", closeErr)
			}
		}()

		limiter, limitErr := ratelimit.New(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if limitErr != nil {
			return limitErr
		}
		deps.Limiter = limiter
		slog.Info("rate limiting enabled", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	e := NewRouter(cfg, deps)

	return startWithGracefulShutdown(ctx, e, cfg)
}

// NewRouter builds the echo instance with middleware and all routes.
func NewRouter(cfg *config.Config, deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler
	// Client IPs key the rate limiter, so forwarding headers are not trusted.
	e.IPExtractor = echo.ExtractIPDirect()

	setupMiddleware(e, cfg)
	setupRoutes(e, deps)

	return e
}

func setupRoutes(e *echo.Echo, deps Deps) {
	h := handlers.New(deps.DB)
	ah := handlers.NewAuth(deps.Auth, deps.Cookies)
	limited := appmw.RateLimit(deps.Limiter)

	e.GET("/health", h.Health)

	api := e.Group(APIPrefix)

	authGroup := api.Group("/auth")
	authGroup.POST("/sign-up", ah.SignUp, limited)
	authGroup.POST("/verify-email", ah.VerifyEmail, limited)
	authGroup.POST("/resend-code", ah.ResendCode, limited)
	authGroup.POST("/sign-in", ah.SignIn, limited)
	authGroup.POST("/refresh", ah.Refresh)
	authGroup.POST("/logout", ah.Logout)

	api.GET("/users/me", ah.Me, appmw.RequireAccessToken(deps.Tokens))
}

// newSender returns the configured notification driver and a function that
// releases its resources.
func newSender(cfg *config.Config) (notify.Sender, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Notify.Driver {
	case config.NotifySMTP:
		svc, err := email.NewService(&cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		return svc, noop, nil
	case config.NotifyAMQP:
		pub, err := mailqueue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	case config.NotifyLog:
		slog.Warn("verification codes are logged, not delivered", "driver", cfg.Notify.Driver)
		return notify.LogSender{}, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown notify driver %q", cfg.Notify.Driver)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)
	serve := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))

	// Plain HTTP server for the ACME challenge and HTTPS redirects
	var redirectServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		serve("http", func() error { return e.Start(addr) })
	case TLSModeACME:
		serve("https", func() error { return startTLSServer(e, ":443", tlsResult.TLSConfig) })
		redirectServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serve("redirect", redirectServer.ListenAndServe)
	case TLSModeSelfSigned, TLSModeManual:
		serve("https", func() error { return startTLSServer(e, addr, tlsResult.TLSConfig) })
	}
	slog.Info("server running", "url", cfg.Server.BaseURL, "tls", tlsResult.Mode)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if redirectServer != nil {
		if err := redirectServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer serves e over TLS on addr.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	e.TLSServer.Handler = e
	e.TLSServer.ReadHeaderTimeout = 10 * time.Second
	return e.TLSServer.Serve(e.TLSListener)
}
