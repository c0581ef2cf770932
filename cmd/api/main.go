// Package main is the entry point for the shopimport API server.
//
// It loads configuration, connects the database pool, wires the billing
// reconciler and import pipeline to their gateway clients, mounts the HTTP
// chassis, and serves until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopimport/internal/api/handlers"
	"shopimport/internal/billing"
	"shopimport/internal/config"
	"shopimport/internal/core"
	"shopimport/internal/db"
	"shopimport/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("shopimport API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database pool: %w", err)
	}

	// Repositories.
	settingsRepo := db.NewTenantSettingsRepo(pool, logger)
	productRepo := db.NewImportedProductRepo(pool, logger)
	prefsRepo := db.NewTenantPreferencesRepo(pool, logger)

	// Operator-visibility metrics. Disabled environments get the no-op
	// emitter; the reconciler still logs mismatches either way.
	var metrics interface {
		EmitPlanMismatch(ctx context.Context, tenantID string, amount float64, currency string)
		EmitWebhookOutcome(ctx context.Context, outcome string)
	}
	if cfg.Observability.EnableMetrics {
		cw, err := external.NewCloudWatchMetrics(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("initializing metrics emitter: %w", err)
		}
		metrics = cw
	} else {
		metrics = external.NoopMetrics{}
	}

	// Billing core.
	catalog := billing.NewCatalog()
	reconciler := billing.NewReconciler(catalog, settingsRepo, metrics, logger)
	enforcer := billing.NewEnforcer(catalog, settingsRepo, productRepo, logger)

	// Gateway clients.
	platformClient := external.NewPlatformClient(cfg.Platform, cfg.Server.PublicURL, logger)
	scraperClient := external.NewScraperClient(cfg.Scraper, logger)
	verifier := external.NewHMACVerifier(cfg.Platform.WebhookSecret.Unmask())

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Closers = append(srv.Closers, pool.Close)

	// Public endpoints: webhook and checkout return carry their own
	// verification and sit outside tenant auth.
	webhookHandler := handlers.NewWebhookHandler(verifier, reconciler, metrics, logger)
	returnHandler := handlers.NewBillingReturnHandler(reconciler, cfg.Server.AppURL, logger)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars,
		webhookHandler.RegisterRoutes,
		returnHandler.RegisterRoutes,
	)

	// Authenticated /v1 endpoints.
	billingHandler := handlers.NewBillingHandler(
		platformClient, reconciler, reconciler, enforcer, catalog, srv.Validator, logger)
	importsHandler := handlers.NewImportsHandler(
		scraperClient, platformClient, productRepo, prefsRepo, enforcer, srv.Validator, logger)
	settingsHandler := handlers.NewSettingsHandler(prefsRepo, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		billingHandler.RegisterRoutes,
		importsHandler.RegisterRoutes,
		settingsHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
