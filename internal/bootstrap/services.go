package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ticketwise/enhancer/config"
	"github.com/ticketwise/enhancer/internal/adapters/backends"
	"github.com/ticketwise/enhancer/internal/adapters/contextnodes"
	"github.com/ticketwise/enhancer/internal/adapters/provider"
	"github.com/ticketwise/enhancer/internal/adapters/reaper"
	"github.com/ticketwise/enhancer/internal/adapters/worker"
	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/data"
	"github.com/ticketwise/enhancer/internal/observability/statsd"
	"github.com/ticketwise/enhancer/internal/service"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs        *service.JobService
	Admission   *service.AdmissionService
	Gatherer    *service.Gatherer
	Synthesizer *service.Synthesizer
	Updater     *service.Updater
	Tenants     core.TenantRepository
	History     core.HistoryRepository
	MetricsSink *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient *redis.Client
	Logger      *slog.Logger
}

// InitServices wires repositories and services from infrastructure handles.
func InitServices(deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil || deps.RedisClient == nil {
		return nil, errors.New("database and redis connections are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metricsSink := buildMetricsSink(logger, cfg.Observability.Metrics)

	encryptor := CreateEncryptor(cfg.CredentialsEncryptionKey, logger)
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	scopes := data.NewScopeFactory(deps.DB)
	historyRepo := data.NewHistoryRepo(scopes, data.HistoryRepoConfig{Logger: logger})
	tenantRepo := data.NewTenantRepo(deps.DB, encryptor)
	dedupRepo := data.NewRedisDedupRepo(deps.RedisClient)

	jobSvc := service.MustNewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: cfg.Worker.JobLease,
		Logger:       logger,
	})

	admission, err := service.NewAdmissionService(service.AdmissionOptions{
		Tenants:    tenantRepo,
		Dedup:      dedupRepo,
		Jobs:       jobSvc,
		History:    historyRepo,
		DedupTTL:   cfg.Redis.DedupTTL,
		MaxRetries: cfg.Worker.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init admission service: %w", err)
	}

	synthesizer, err := buildSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}

	gatherer := service.NewGatherer(service.GathererOptions{
		Nodes:             buildContextNodes(cfg.Gatherer, historyRepo),
		NodeTimeout:       cfg.Gatherer.NodeTimeout,
		AggregateDeadline: cfg.Gatherer.AggregateDeadline,
		Logger:            logger,
	})

	registry := backends.NewRegistry(
		backends.NewRESTAdapter(backends.RESTOptions{
			Timeout: cfg.Updater.RequestTimeout,
			Logger:  logger,
		}),
		backends.NewOAuthAdapter(backends.OAuthOptions{
			Timeout: cfg.Updater.RequestTimeout,
			Logger:  logger,
		}),
	)
	updater, err := service.NewUpdater(service.UpdaterOptions{
		Registry:    registry,
		MaxAttempts: cfg.Updater.MaxAttempts,
		BackoffBase: cfg.Updater.BackoffBase,
		BackoffCap:  cfg.Updater.BackoffCap,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init updater: %w", err)
	}

	return &ServiceContainer{
		Jobs:        jobSvc,
		Admission:   admission,
		Gatherer:    gatherer,
		Synthesizer: synthesizer,
		Updater:     updater,
		Tenants:     tenantRepo,
		History:     historyRepo,
		MetricsSink: metricsSink,
	}, nil
}

func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  "enhancer",
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

func buildSynthesizer(cfg *config.AppConfig, logger *slog.Logger) (*service.Synthesizer, error) {
	breaker := service.NewCircuitBreaker(service.BreakerOptions{
		FailureThreshold: cfg.Synthesizer.BreakerThreshold,
		Cooldown:         cfg.Synthesizer.BreakerCooldown,
	})

	var providerClient core.SynthesisProvider
	if cfg.Synthesizer.ProviderURL != "" {
		client, err := provider.NewClient(provider.Options{
			BaseURL: cfg.Synthesizer.ProviderURL,
			APIKey:  cfg.Synthesizer.ProviderAPIKey,
			Timeout: cfg.Synthesizer.ProviderTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init synthesis provider: %w", err)
		}
		providerClient = client
	} else {
		logger.Warn("no synthesis provider configured; all jobs use the fallback formatter")
	}

	return service.NewSynthesizer(service.SynthesizerOptions{
		Provider:        providerClient,
		Breaker:         breaker,
		DefaultMaxWords: cfg.Synthesizer.DefaultMaxWords,
		Logger:          logger,
	}), nil
}

// buildContextNodes assembles the gatherer's node set: the similar-ticket
// lookup plus whichever HTTP sources are configured.
func buildContextNodes(cfg config.GathererConfig, history core.HistoryRepository) []core.ContextNode {
	nodes := []core.ContextNode{
		&contextnodes.SimilarTicketsNode{History: history},
	}
	httpSources := map[string]string{
		"documentation": cfg.DocsURL,
		"inventory":     cfg.InventoryURL,
		"monitoring":    cfg.MonitoringURL,
	}
	for name, baseURL := range httpSources {
		if baseURL == "" {
			continue
		}
		nodes = append(nodes, contextnodes.NewHTTPLookupNode(name, baseURL, cfg.LookupToken, nil))
	}
	return nodes
}

// ServiceOrchestrationConfig holds everything needed to run the enabled
// services for this process.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient *redis.Client
	Services    *ServiceContainer
	Logger      *slog.Logger
}

type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, len(enabled)+1)
	var backgrounds []backgroundServiceHandle

	if enabled[config.ServiceModeWorker] {
		handle, startErr := startWorker(serviceCtx, cfg, logger, errCh)
		if startErr != nil {
			return startErr
		}
		backgrounds = append(backgrounds, handle)
	}

	if enabled[config.ServiceModeReaper] {
		handle, startErr := startReaper(serviceCtx, cfg, logger, errCh)
		if startErr != nil {
			return startErr
		}
		backgrounds = append(backgrounds, handle)
	}

	var httpServer *http.Server
	if enabled[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			DB:       cfg.DB,
			Redis:    cfg.RedisClient,
			Logger:   logger,
		})
	}

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		jobService:  cfg.Services.Jobs,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func startWorker(
	ctx context.Context,
	cfg *ServiceOrchestrationConfig,
	logger *slog.Logger,
	errCh chan<- error,
) (backgroundServiceHandle, error) {
	runner, err := worker.NewRunner(worker.RunnerOptions{
		Jobs:           cfg.Services.Jobs,
		Tenants:        cfg.Services.Tenants,
		History:        cfg.Services.History,
		Gatherer:       cfg.Services.Gatherer,
		Synthesizer:    cfg.Services.Synthesizer,
		Updater:        cfg.Services.Updater,
		Logger:         logger,
		Metrics:        cfg.Services.MetricsSink,
		Lease:          cfg.Config.Worker.JobLease,
		Concurrency:    cfg.Config.Worker.Concurrency,
		OverallTimeout: cfg.Config.Worker.OverallTimeout,
	})
	if err != nil {
		return backgroundServiceHandle{}, fmt.Errorf("init worker: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- fmt.Errorf("worker: %w", runErr)
		}
	}()
	return backgroundServiceHandle{name: "worker", done: done}, nil
}

func startReaper(
	ctx context.Context,
	cfg *ServiceOrchestrationConfig,
	logger *slog.Logger,
	errCh chan<- error,
) (backgroundServiceHandle, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config.Reaper,
		Logger:  logger,
		Metrics: cfg.Services.MetricsSink,
	})
	if err != nil {
		return backgroundServiceHandle{}, fmt.Errorf("init reaper: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- fmt.Errorf("reaper: %w", runErr)
		}
	}()
	return backgroundServiceHandle{name: "reaper", done: done}, nil
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	jobService  *service.JobService
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:    shutdownCtx,
			Server:     cfg.httpServer,
			JobService: cfg.jobService,
			Logger:     cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.jobService != nil {
		cfg.jobService.StopAll()
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
