package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the webhook HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the enhancement pipeline worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the job reaper for queue maintenance.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains enhancement worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// JobLease is the duration to lease a reserved job. Heartbeats extend it
	// while the pipeline runs.
	JobLease time.Duration `env:"WORKER_JOB_LEASE" envDefault:"30s"`

	// OverallTimeout is the hard ceiling on one job's pipeline.
	OverallTimeout time.Duration `env:"WORKER_OVERALL_TIMEOUT" envDefault:"120s"`

	// MaxRetries is the retry budget for a job that fails processing.
	MaxRetries int `env:"WORKER_MAX_RETRIES" envDefault:"3"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
	if w.OverallTimeout < 10*time.Second {
		w.OverallTimeout = 10 * time.Second
	}
	if w.MaxRetries < 0 {
		w.MaxRetries = 0
	}
}

// GathererConfig contains context gathering configuration.
type GathererConfig struct {
	// NodeTimeout bounds each context node independently.
	NodeTimeout time.Duration `env:"GATHERER_NODE_TIMEOUT" envDefault:"8s"`

	// AggregateDeadline bounds the whole gather phase.
	AggregateDeadline time.Duration `env:"GATHERER_AGGREGATE_DEADLINE" envDefault:"30s"`

	// DocsURL, InventoryURL, and MonitoringURL are the external lookup
	// endpoints for the built-in context nodes. An empty URL leaves that node
	// unregistered.
	DocsURL       string `env:"GATHERER_DOCS_URL"       envDefault:""`
	InventoryURL  string `env:"GATHERER_INVENTORY_URL"  envDefault:""`
	MonitoringURL string `env:"GATHERER_MONITORING_URL" envDefault:""`

	// LookupToken authenticates the HTTP lookup nodes against the sources.
	LookupToken string `env:"GATHERER_LOOKUP_TOKEN" envDefault:""`
}

// Sanitize applies guardrails to gatherer configuration values.
func (g *GathererConfig) Sanitize() {
	if g.NodeTimeout < time.Second {
		g.NodeTimeout = time.Second
	}
	if g.AggregateDeadline < g.NodeTimeout {
		g.AggregateDeadline = g.NodeTimeout
	}
}

// SynthesizerConfig contains synthesis configuration.
type SynthesizerConfig struct {
	// ProviderURL is the AI synthesis endpoint. Empty disables the AI path
	// entirely; every job then uses the deterministic fallback formatter.
	ProviderURL string `env:"SYNTHESIZER_PROVIDER_URL" envDefault:""`

	// ProviderAPIKey authenticates against the provider.
	ProviderAPIKey string `env:"SYNTHESIZER_PROVIDER_API_KEY" envDefault:""`

	// ProviderTimeout bounds each synthesis call.
	ProviderTimeout time.Duration `env:"SYNTHESIZER_PROVIDER_TIMEOUT" envDefault:"20s"`

	// DefaultMaxWords caps enhancement length when a tenant sets no cap.
	DefaultMaxWords int `env:"SYNTHESIZER_DEFAULT_MAX_WORDS" envDefault:"500"`

	// BreakerThreshold is the consecutive-failure count that opens the
	// provider circuit breaker.
	BreakerThreshold int `env:"SYNTHESIZER_BREAKER_THRESHOLD" envDefault:"3"`

	// BreakerCooldown is how long the breaker stays open before a trial call.
	BreakerCooldown time.Duration `env:"SYNTHESIZER_BREAKER_COOLDOWN" envDefault:"5m"`
}

// Sanitize applies guardrails to synthesizer configuration values.
func (s *SynthesizerConfig) Sanitize() {
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = 20 * time.Second
	}
	if s.DefaultMaxWords < 1 {
		s.DefaultMaxWords = 500
	}
	if s.BreakerThreshold < 1 {
		s.BreakerThreshold = 1
	}
	if s.BreakerCooldown < time.Second {
		s.BreakerCooldown = time.Second
	}
}

// UpdaterConfig contains outbound updater retry configuration.
type UpdaterConfig struct {
	// MaxAttempts bounds attempts per ticket update, including the first.
	MaxAttempts int `env:"UPDATER_MAX_ATTEMPTS" envDefault:"3"`

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `env:"UPDATER_BACKOFF_BASE" envDefault:"2s"`

	// BackoffCap is the ceiling on any single retry delay.
	BackoffCap time.Duration `env:"UPDATER_BACKOFF_CAP" envDefault:"30s"`

	// RequestTimeout bounds each backend call.
	RequestTimeout time.Duration `env:"UPDATER_REQUEST_TIMEOUT" envDefault:"15s"`
}

// Sanitize applies guardrails to updater configuration values.
func (u *UpdaterConfig) Sanitize() {
	if u.MaxAttempts < 1 {
		u.MaxAttempts = 1
	}
	if u.BackoffBase < 100*time.Millisecond {
		u.BackoffBase = 100 * time.Millisecond
	}
	if u.BackoffCap < u.BackoffBase {
		u.BackoffCap = u.BackoffBase
	}
	if u.RequestTimeout <= 0 {
		u.RequestTimeout = 15 * time.Second
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	// Jobs stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// TerminalMaxAge is the maximum age for completed/failed jobs before deletion.
	TerminalMaxAge time.Duration `env:"REAPER_TERMINAL_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.TerminalMaxAge < 1*time.Hour {
		r.TerminalMaxAge = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
