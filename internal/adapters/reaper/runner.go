// Package reaper runs the periodic queue maintenance loop: requeueing
// expired-lease jobs, failing stale pending jobs, and purging terminal jobs
// past retention.
package reaper

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/ticketwise/enhancer/config"
	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/data"
	"github.com/ticketwise/enhancer/internal/observability/statsd"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.ReaperRepository
	Metrics statsd.Sink
}

// Runner executes reaper sweeps at the configured interval.
type Runner struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var repo core.ReaperRepository
	if opts.Repo != nil {
		repo = opts.Repo
	} else {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	return &Runner{
		repo:    repo,
		config:  opts.Config,
		logger:  logger.With("component", "reaper"),
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper", "interval", r.config.Interval)

	// Jitter the first sweep so multiple instances don't tick together.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// sweep runs all maintenance operations once. Errors are logged, not fatal:
// the next tick retries.
func (r *Runner) sweep(ctx context.Context) {
	now := time.Now()
	batch := r.config.BatchSize

	requeued, err := r.repo.RequeueExpiredLeases(ctx, now, batch)
	r.report(ctx, "requeue_expired_leases", requeued, err)

	failed, err := r.repo.FailStalePending(ctx, now.Add(-r.config.PendingMaxAge), batch)
	r.report(ctx, "fail_stale_pending", failed, err)

	purged, err := r.repo.PurgeTerminal(ctx, now.Add(-r.config.TerminalMaxAge), batch)
	r.report(ctx, "purge_terminal", purged, err)
}

func (r *Runner) report(ctx context.Context, op string, n int, err error) {
	if err != nil {
		r.logger.ErrorContext(ctx, "reaper operation failed", "op", op, "error", err)
		if r.metrics != nil {
			r.metrics.Count("reaper.errors", 1, map[string]string{"op": op})
		}
		return
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "reaper operation", "op", op, "rows", n)
	}
	if r.metrics != nil {
		r.metrics.Count("reaper.rows", int64(n), map[string]string{"op": op})
	}
}
