package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/credentials"
	httpapi "github.com/aussiebroadwan/gatekeeper/internal/auth/http"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	counters   ratelimit.CounterStore
	accountant *ratelimit.Accountant
	issuer     *jwtx.Issuer
	verifier   *jwtx.HS256Verifier

	// Services
	loginService        *service.LoginService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initTokens(); err != nil {
		_ = app.closeAll()
		return nil, err
	}

	if err := app.initRateLimiting(); err != nil {
		_ = app.closeAll()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.closeAll()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"counter_store", app.cfg.RateLimitStore,
		"fail_mode", app.accountant.FailMode().String(),
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.closeAll()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.closeAll(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the counter store and database of an application that was
// never started with Run.
func (app *Application) Close() error { return app.closeAll() }

// closeAll releases the counter store and the database.
func (app *Application) closeAll() error {
	var errs []error

	if c, ok := app.counters.(io.Closer); ok {
		if err := c.Close(); err != nil {
			app.logger.Error("error closing counter store", "error", err)
			errs = append(errs, err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initTokens builds the HS256 issuer and verifier from the shared secret
func (app *Application) initTokens() error {
	signer, err := jwtx.NewSignerHS256("", []byte(app.cfg.SigningSecret))
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}

	app.issuer = &jwtx.Issuer{
		Signer:   signer,
		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,
		TTL:      app.cfg.TokenTTL,
	}
	app.verifier = jwtx.NewVerifierHS256([]byte(app.cfg.SigningSecret), jwtx.VerifyOptions{
		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,
		Leeway:   app.cfg.TokenLeeway,
	})
	return nil
}

// initRateLimiting connects the counter store and builds the accountant
func (app *Application) initRateLimiting() error {
	switch app.cfg.RateLimitStore {
	case CounterStoreMemory:
		app.logger.Warn("using in-process rate limit counters, limits are not shared between instances")
		app.counters = ratelimit.NewMemoryStore(time.Now)
	default:
		rs, err := ratelimit.OpenRedisStore(app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to open counter store: %w", err)
		}
		app.counters = rs

		// An unreachable store is not fatal, the fail mode decides what
		// requests see until it comes back.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			app.logger.Warn("counter store unreachable at startup", "error", err)
		}
	}

	rules, err := app.cfg.rules()
	if err != nil {
		return fmt.Errorf("invalid rate limit rules: %w", err)
	}

	acc, err := ratelimit.New(ratelimit.Config{
		Store:        app.counters,
		Rules:        rules,
		FailMode:     app.cfg.failMode(),
		StoreTimeout: app.cfg.StoreTimeout,
		KeyPrefix:    app.cfg.KeyPrefix,
		Logger:       app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	app.accountant = acc

	for _, r := range rules {
		app.logger.Debug("rate limit rule", "rule", r.String())
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	creds, err := app.cfg.credentialStore()
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	if app.cfg.Env != "dev" && app.cfg.Users == credentials.DefaultSeed {
		app.logger.Warn("running with the built-in demo users, set AUTH_USERS")
	}

	app.loginService = &service.LoginService{
		Credentials: creds,
		Issuer:      app.issuer,
		Store:       app.db,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.verifier,
		app.accountant,
		BuildVersion,
		app.db,
		app.logger,
		app.cfg.TrustProxy,
	)

	// Wire services to router
	router.LoginService = app.loginService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
