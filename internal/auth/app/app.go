package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/saansook/saansook/internal/auth/http"
	"github.com/saansook/saansook/internal/auth/service"
	"github.com/saansook/saansook/internal/auth/store"
	redisdrv "github.com/saansook/saansook/internal/auth/store/drivers/redis"
	"github.com/saansook/saansook/internal/auth/store/drivers/sqlite"
	"github.com/saansook/saansook/pkg/jwtx"
	"github.com/saansook/saansook/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	registry store.Store
	codec    *jwtx.Codec

	// Services
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
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

	if err := app.initRegistry(); err != nil {
		return nil, err
	}

	codec, err := jwtx.NewCodec([]byte(cfg.Secret), cfg.Algorithm, cfg.Issuer)
	if err != nil {
		_ = app.registry.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service (no-op for stores that expire natively)
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store_driver", app.cfg.StoreDriver,
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
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

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

	// Close the session store connection
	if err := app.registry.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initRegistry initializes the configured session store driver
func (app *Application) initRegistry() error {
	switch app.cfg.StoreDriver {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.StoreTimeout)
		defer cancel()

		st, err := redisdrv.NewStore(ctx, redisdrv.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.registry = st

	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", app.cfg.DatabaseFile)
		st, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		if err := st.ApplyMigrations(); err != nil {
			_ = st.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.registry = st

		app.logger.Info("database migrations applied successfully")

	default:
		return fmt.Errorf("unsupported store driver %q", app.cfg.StoreDriver)
	}

	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Codec:             app.codec,
		Store:             app.registry,
		KeyPrefix:         app.cfg.KeyPrefix,
		AccessTTL:         app.cfg.AccessTTL,
		RefreshTTL:        app.cfg.RefreshTTL,
		StoreTimeout:      app.cfg.StoreTimeout,
		MinPasswordLength: app.cfg.MinPasswordLength,
		Limiter:           service.NewLoginLimiter(app.cfg.LoginAttempts, app.cfg.LoginWindow),
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.registry,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.registry, app.logger)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Sessions exposes the session service for embedding callers that mount
// this core inside a larger API process.
func (app *Application) Sessions() *service.SessionService {
	return app.sessionService
}
