package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	"github.com/ticketwise/enhancer/internal/errors"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 2 * time.Second
	defaultBackoffCap  = 30 * time.Second
)

// AdapterRegistry resolves a backend adapter by tenant backend type.
type AdapterRegistry interface {
	Resolve(backendType model.BackendType) (core.TicketBackendAdapter, error)
}

// UpdaterOptions groups dependencies for the Updater.
type UpdaterOptions struct {
	Registry AdapterRegistry // Required: adapter lookup by backend type

	// MaxAttempts bounds attempts per update, including the first. Defaults to 3.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt up to
	// BackoffCap. Defaults: 2s base, 30s cap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Sleep is injectable for tests. Defaults to a context-aware sleep.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Updater applies the core's uniform retry policy around any backend
// adapter: transient failures are retried with exponential backoff, permanent
// failures abort immediately, and exhausting retries surfaces the last error.
type Updater struct {
	registry    AdapterRegistry
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// NewUpdater constructs an Updater.
func NewUpdater(opts UpdaterOptions) (*Updater, error) {
	if opts.Registry == nil {
		return nil, errors.Validation("adapter registry is required")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	base := opts.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	capd := opts.BackoffCap
	if capd <= 0 {
		capd = defaultBackoffCap
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		registry:    opts.Registry,
		maxAttempts: maxAttempts,
		backoffBase: base,
		backoffCap:  capd,
		sleep:       sleep,
		logger:      logger,
	}, nil
}

// Update writes the enhancement back to the tenant's ticketing backend.
func (u *Updater) Update(
	ctx context.Context,
	tenant *model.Tenant,
	job *model.Job,
	enhancement model.Enhancement,
) error {
	adapter, err := u.registry.Resolve(tenant.BackendType)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodePermanentAdapter,
			"no adapter for backend %q", tenant.BackendType)
	}

	params := core.UpdateTicketParams{
		Credentials:      tenant.Credentials,
		ExternalTicketID: job.ExternalTicketID,
		Enhancement:      enhancement,
	}

	var lastErr error
	delay := u.backoffBase
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		result, updateErr := adapter.UpdateTicket(ctx, params)
		if updateErr == nil {
			u.logger.InfoContext(ctx, "ticket updated",
				"correlation_id", job.CorrelationID,
				"tenant_id", tenant.ID,
				"attempt", attempt,
				"http_status", result.HTTPStatus)
			return nil
		}

		lastErr = updateErr
		if !errors.Retryable(updateErr) {
			u.logger.WarnContext(ctx, "backend rejected update",
				"correlation_id", job.CorrelationID, "error", updateErr)
			return updateErr
		}
		if attempt == u.maxAttempts {
			break
		}

		u.logger.WarnContext(ctx, "transient update failure, backing off",
			"correlation_id", job.CorrelationID,
			"attempt", attempt,
			"delay", delay,
			"error", updateErr)
		if sleepErr := u.sleep(ctx, delay); sleepErr != nil {
			return errors.Wrap(sleepErr, errors.ErrCodeTimeout, "update aborted")
		}
		delay *= 2
		if delay > u.backoffCap {
			delay = u.backoffCap
		}
	}

	return errors.Wrapf(lastErr, errors.ErrCodePermanentAdapter,
		"update failed after %d attempts", u.maxAttempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
