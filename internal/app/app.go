package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licensegate/internal/config"
	"licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/ledger"
	customMiddleware "licensegate/internal/middleware"
	"licensegate/internal/store/gormstore"
	handlers "licensegate/internal/transport/http"
)

// VERSION is stamped into /api/version responses.
const VERSION = "v1.0.0"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         *gormstore.Store
	Ledger        *ledger.Ledger
	Metrics       *infrastructure.Metrics
	OTelProviders *infrastructure.OTelProviders
	Logger        *slog.Logger
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("version", VERSION),
		slog.String("storage_driver", cfg.Storage.Driver))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	store, err := gormstore.Open(gormstore.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Store:         store,
		Ledger:        ledger.New(store, logger),
		Metrics:       infrastructure.NewMetrics(),
		OTelProviders: otelProviders,
		Logger:        logger,
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger, a.Metrics))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	errorHandler := errors.NewErrorHandler(a.Logger)
	checkHandler := handlers.NewCheckHandler(a.Ledger, a.Metrics, a.Logger)
	adminHandler := handlers.NewAdminHandler(a.Ledger, errorHandler, a.Metrics, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Store, VERSION, a.Logger)

	// Unauthenticated client surface
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			if a.Config.Check.RateLimitEnabled {
				r.Use(customMiddleware.NewRateLimiter(
					a.Config.Check.RateLimitRPS,
					a.Config.Check.RateLimitBurst,
					a.Logger,
				).Handler)
			}
			r.Post("/check", checkHandler.Check)
		})

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/version", healthHandler.Version)
	})

	// Admin surface, gated by the shared credential. Auth runs before
	// anything that could touch the ledger.
	r.Route("/admin", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.AdminAuth(a.Config.Admin.Token, a.Logger))
		r.Mount("/", adminHandler.Routes())
	})

	// Prometheus scrape endpoint
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	// Root: basic service banner, mirrors /api/health
	r.Get("/", healthHandler.HealthCheck)

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run starts the server and blocks until an interrupt arrives, then
// shuts down gracefully.
func (a *Application) Run() error {
	serverErr := make(chan error, 1)

	go func() {
		a.Logger.Info("HTTP server listening",
			slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		a.Logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	}

	return a.Shutdown()
}

// Shutdown stops the server, flushes telemetry and closes the store.
func (a *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		a.Logger.Error("OpenTelemetry shutdown failed", slog.String("error", err.Error()))
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Store close failed", slog.String("error", err.Error()))
		return err
	}

	infrastructure.CloseLogFile()
	a.Logger.Info("Shutdown complete")
	return nil
}
