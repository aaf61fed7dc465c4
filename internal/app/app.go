package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"licsrv/internal/config"
	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
	"licsrv/internal/messages"
	customMiddleware "licsrv/internal/middleware"
	"licsrv/internal/services"
	handlers "licsrv/internal/transport/http"
)

const AppName = "licsrv"

var (
	// Version is set at build time with -ldflags "-X licsrv/internal/app.Version=..."
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = ""
)

// sweepInterval is how often idle rate limit identities are dropped.
const sweepInterval = 10 * time.Minute

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Components    *Components
	HealthService *services.HealthService
	Limiter       *customMiddleware.ActionLimiter // nil when action limits are off
	Catalog       *messages.Catalog
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// New wires the application from cfg. The caller owns logger.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("data_dir", cfg.Paths.DataDir))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry, Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.NewEntitlementMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	components, err := NewComponents(ctx, cfg, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	catalog, err := messages.Default()
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to load message catalog: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Components:    components,
		HealthService: services.NewHealthService(Version, BuildTime, components.Probes(), 0, logger),
		Catalog:       catalog,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if cfg.Security.RateLimit.ActionLimits {
		app.Limiter = customMiddleware.NewActionLimiter(customMiddleware.DefaultPolicies(), metrics, logger)
	}
	if cfg.Security.AdminKeyHash == "" {
		logger.WarnContext(ctx, "No admin key hash configured, administrative API disabled")
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// guards returns the limiter as the handler interfaces, or nil interfaces when
// action limits are off.
func (a *Application) guards() (handlers.ActionGuard, handlers.LimitResetter) {
	if a.Limiter == nil {
		return nil, nil
	}
	return a.Limiter, a.Limiter
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger)
	metrics := a.Components.Metrics

	// RequestID → RealIP → OTel → Logger → Recoverer
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			metrics,
			a.Logger,
		).Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	r.Get("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP).GetMetrics)

	a.setupAPIRoutes(r)
	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	decoder := customMiddleware.NewValidator(a.Logger)
	guard, resetter := a.guards()
	c := a.Components

	r.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.MaxBodyBytes(a.Config.Server.MaxBodyBytes))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
		r.Use(customMiddleware.ContentTypeValidator("application/json"))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Get("/status", healthHandler.Status)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.Status)
		r.Get("/version", healthHandler.Version)

		r.Mount("/license", handlers.NewLicenseHandler(c.LicenseService, decoder, guard, a.Logger).Routes())
		r.Mount("/trial", handlers.NewTrialHandler(c.TrialService, c.LicenseService, decoder, guard, a.Logger).Routes())
		r.Mount("/v1/messages", handlers.NewMessagesHandler(a.Catalog, a.Logger).Routes())

		adminHandler := handlers.NewAdminHandler(c.LicenseService, c.TrialService, resetter, decoder, a.Logger)
		r.With(
			customMiddleware.AuditLog(a.Logger),
			customMiddleware.AdminAuth(a.Config.Security.AdminKeyHash, a.Logger),
		).Mount("/admin", adminHandler.Routes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully and releases every component.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening", slog.String("address", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.InfoContext(ctx, "Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if a.Config.Backup.Interval > 0 {
		g.Go(func() error {
			a.runBackups(gctx)
			return nil
		})
	}

	if a.Limiter != nil {
		g.Go(func() error {
			a.runSweeper(gctx)
			return nil
		})
	}

	err := g.Wait()
	a.Stop(context.WithoutCancel(ctx))
	return err
}

// Stop releases telemetry and storage. It is safe to call after Run returns.
func (a *Application) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
	if err := a.Components.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing storage", slog.String("error", err.Error()))
	}
	a.Logger.InfoContext(ctx, "Application shutdown complete")
}

// runBackups takes a scheduled backup every Backup.Interval.
func (a *Application) runBackups(ctx context.Context) {
	ticker := time.NewTicker(a.Config.Backup.Interval)
	defer ticker.Stop()

	backupType := a.Config.Backup.Type
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx := infrastructure.EnsureTraceID(ctx)
			manifest, err := a.Components.Backups.Create(runCtx, backupType)
			a.Components.Metrics.RecordBackup(runCtx, backupType, err == nil)
			if err != nil {
				a.Logger.ErrorContext(runCtx, "Scheduled backup failed",
					slog.String("type", backupType),
					slog.String("error", err.Error()))
				continue
			}
			a.Logger.InfoContext(runCtx, "Scheduled backup created",
				slog.String("name", manifest.Name),
				slog.Int("files", len(manifest.Files)))
		}
	}
}

// runSweeper drops idle identities from the action limiter.
func (a *Application) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.Limiter.Sweep(); removed > 0 {
				a.Logger.DebugContext(ctx, "Rate limit state swept", slog.Int("removed", removed))
			}
		}
	}
}
