package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ticketwise/enhancer/config"
	httpx "github.com/ticketwise/enhancer/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	DB       *sql.DB
	Redis    *redis.Client
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Admission:    cfg.Services.Admission,
		Jobs:         cfg.Services.Jobs,
		HealthChecks: buildHealthChecks(cfg.DB, cfg.Redis),
		MaxBodyBytes: appCfg.HTTP.MaxBodyBytes,
		Logger:       logger,
	})

	return startServer(logger, handler, appCfg.HTTP)
}

func buildHealthChecks(db *sql.DB, rdb *redis.Client) map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error, 2)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return checks
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService interface{ StopAll() }
	Logger     *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server, stopping the job
// notifier first so idle workers unblock.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.JobService != nil {
		cfg.JobService.StopAll()
	}

	logger.Info("stopping HTTP server")
	if err := cfg.Server.Shutdown(cfg.Context); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
