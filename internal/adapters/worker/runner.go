// Package worker pulls enhancement jobs off the queue and drives each one
// through the full pipeline: tenant resolution, context gathering, synthesis,
// outbound update, and history finalization.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
	"github.com/ticketwise/enhancer/internal/observability/metrics"
	"github.com/ticketwise/enhancer/internal/observability/statsd"
	"github.com/ticketwise/enhancer/internal/service"
)

const (
	defaultLease          = 30 * time.Second
	defaultOverallTimeout = 120 * time.Second

	overallTimeoutMessage = "overall_timeout"
)

// RunnerOptions configures the enhancement worker.
type RunnerOptions struct {
	Jobs        *service.JobService    // Required
	Tenants     core.TenantRepository  // Required
	History     core.HistoryRepository // Required
	Gatherer    *service.Gatherer      // Required
	Synthesizer *service.Synthesizer   // Required
	Updater     *service.Updater       // Required

	Logger  *slog.Logger
	Metrics statsd.Sink

	// Lease is the per-job reservation lease; heartbeats extend it while the
	// pipeline runs. Defaults to 30s.
	Lease time.Duration
	// Concurrency is the number of worker goroutines. Defaults to 1.
	Concurrency int
	// OverallTimeout is the hard ceiling on one job's pipeline. Defaults to 120s.
	OverallTimeout time.Duration
}

// Runner reserves queued jobs and executes the enhancement pipeline.
type Runner struct {
	jobs        *service.JobService
	tenants     core.TenantRepository
	history     core.HistoryRepository
	gatherer    *service.Gatherer
	synthesizer *service.Synthesizer
	updater     *service.Updater
	logger      *slog.Logger
	metrics     statsd.Sink
	lease       time.Duration
	workers     int
	overall     time.Duration
}

// NewRunner constructs a worker runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job service is required")
	}
	if opts.Tenants == nil {
		return nil, errors.New("tenant repository is required")
	}
	if opts.History == nil {
		return nil, errors.New("history repository is required")
	}
	if opts.Gatherer == nil || opts.Synthesizer == nil || opts.Updater == nil {
		return nil, errors.New("gatherer, synthesizer, and updater are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	overall := opts.OverallTimeout
	if overall <= 0 {
		overall = defaultOverallTimeout
	}

	return &Runner{
		jobs:        opts.Jobs,
		tenants:     opts.Tenants,
		history:     opts.History,
		gatherer:    opts.Gatherer,
		synthesizer: opts.Synthesizer,
		updater:     opts.Updater,
		logger:      logger,
		metrics:     opts.Metrics,
		lease:       lease,
		workers:     workers,
		overall:     overall,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is
// cancelled. The first fatal error cancels all workers.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting enhancement worker",
		"workers", r.workers, "lease", r.lease, "overall_timeout", r.overall)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, ch := r.jobs.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// pipelineResult carries the successful pipeline outputs into finalization.
type pipelineResult struct {
	nodesSucceeded int
	nodesFailed    int
	synthesisMode  model.SynthesisMode
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, mode model.SynthesisMode, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition:    transition,
			Result:        result,
			SynthesisMode: string(mode),
			Duration:      time.Since(start),
			Err:           err,
		})
	}

	// Hard ceiling on the whole pipeline. The parent ctx stays alive for
	// finalization so a timed-out job can still be recorded as failed.
	jobCtx, cancel := context.WithTimeout(ctx, r.overall)
	defer cancel()

	stopHeartbeat := r.startHeartbeat(jobCtx, job.CorrelationID)
	result, err := r.enhance(jobCtx, job)
	stopHeartbeat()

	if err != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			err = apperrors.Wrap(err, apperrors.ErrCodeTimeout, overallTimeoutMessage)
		}
		r.finalizeFailure(ctx, job, result, err, start)
		emit("failed", metrics.ResultError, result.synthesisMode, err)
		return
	}

	outcome := model.HistoryOutcome{
		NodesSucceeded:   result.nodesSucceeded,
		NodesFailed:      result.nodesFailed,
		SynthesisMode:    result.synthesisMode,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	if recorded, histErr := r.history.MarkCompleted(ctx, job.TenantID, job.CorrelationID, outcome); histErr != nil {
		r.logger.ErrorContext(ctx, "mark history completed",
			"correlation_id", job.CorrelationID, "error", histErr)
	} else if !recorded {
		r.logger.WarnContext(ctx, "history row already terminal",
			"correlation_id", job.CorrelationID)
	}

	if completed, completeErr := r.jobs.Complete(ctx, job.CorrelationID); completeErr != nil {
		r.logger.ErrorContext(ctx, "complete job",
			"correlation_id", job.CorrelationID, "error", completeErr)
		emit("completed", metrics.ResultError, result.synthesisMode, completeErr)
	} else {
		res := metrics.ResultNoop
		if completed {
			res = metrics.ResultSuccess
		}
		emit("completed", res, result.synthesisMode, nil)
	}
}

// enhance runs the pipeline for one reserved job. Gathering and synthesis
// cannot fail the job; only tenant resolution and the outbound update can.
func (r *Runner) enhance(ctx context.Context, job *model.Job) (pipelineResult, error) {
	result := pipelineResult{}

	tenant, err := r.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		return result, fmt.Errorf("resolve tenant %s: %w", job.TenantID, err)
	}
	if !tenant.Active {
		return result, apperrors.Forbiddenf("tenant %s deactivated after admission", tenant.ID)
	}

	bundle := r.gatherer.Gather(ctx, core.ContextRequest{
		CorrelationID:    job.CorrelationID,
		TenantID:         job.TenantID,
		ExternalTicketID: job.ExternalTicketID,
		RawPayload:       job.RawPayload,
	})
	result.nodesSucceeded, result.nodesFailed = bundle.Counts()

	enhancement := r.synthesizer.Synthesize(ctx, job.CorrelationID, bundle, tenant.Preferences)
	result.synthesisMode = enhancement.Mode

	if err := r.updater.Update(ctx, tenant, job, enhancement); err != nil {
		return result, fmt.Errorf("update ticket %s: %w", job.ExternalTicketID, err)
	}

	r.logger.InfoContext(ctx, "job enhanced",
		"correlation_id", job.CorrelationID,
		"tenant_id", job.TenantID,
		"external_ticket_id", job.ExternalTicketID,
		"synthesis_mode", enhancement.Mode,
		"word_count", enhancement.WordCount)
	return result, nil
}

// finalizeFailure routes a pipeline error to the right queue transition.
// Infrastructure errors release the job untouched so lease redelivery retries
// it without consuming an attempt. Permanent backend rejections and
// overall-timeout failures go straight to failed: the outbound update already
// exhausted its own retry budget or cannot change on a rerun, so requeueing
// the whole pipeline would only repeat the rejection. Everything else
// consumes a retry and requeues while the budget lasts.
func (r *Runner) finalizeFailure(ctx context.Context, job *model.Job, result pipelineResult, err error, start time.Time) {
	r.logger.WarnContext(ctx, "job pipeline failed",
		"correlation_id", job.CorrelationID, "error", err)

	if apperrors.IsInfrastructure(err) {
		if _, relErr := r.jobs.Release(ctx, job.CorrelationID); relErr != nil {
			r.logger.ErrorContext(ctx, "release job",
				"correlation_id", job.CorrelationID, "error", relErr)
		}
		return
	}

	outcome := model.HistoryOutcome{
		NodesSucceeded:   result.nodesSucceeded,
		NodesFailed:      result.nodesFailed,
		SynthesisMode:    result.synthesisMode,
		ErrorMessage:     err.Error(),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}

	if apperrors.IsPermanentAdapter(err) || apperrors.IsTimeout(err) {
		if _, failErr := r.jobs.FailTerminal(ctx, job.CorrelationID, err.Error()); failErr != nil {
			r.logger.ErrorContext(ctx, "fail job terminally",
				"correlation_id", job.CorrelationID, "error", failErr)
		}
		r.markHistoryFailed(ctx, job, outcome)
		return
	}

	if _, failErr := r.jobs.Fail(ctx, job.CorrelationID, err.Error()); failErr != nil {
		r.logger.ErrorContext(ctx, "fail job",
			"correlation_id", job.CorrelationID, "error", failErr)
	}

	// The history row only goes terminal once the job itself is out of
	// retries; a requeued job stays pending in history too.
	current, getErr := r.jobs.Status(ctx, job.CorrelationID)
	if getErr != nil {
		r.logger.ErrorContext(ctx, "read job status after failure",
			"correlation_id", job.CorrelationID, "error", getErr)
		return
	}
	if current.Status == model.JobStatusFailed {
		r.markHistoryFailed(ctx, job, outcome)
	}
}

func (r *Runner) markHistoryFailed(ctx context.Context, job *model.Job, outcome model.HistoryOutcome) {
	if recorded, histErr := r.history.MarkFailed(ctx, job.TenantID, job.CorrelationID, outcome); histErr != nil {
		r.logger.ErrorContext(ctx, "mark history failed",
			"correlation_id", job.CorrelationID, "error", histErr)
	} else if !recorded {
		r.logger.WarnContext(ctx, "history row already terminal",
			"correlation_id", job.CorrelationID)
	}
}

// startHeartbeat extends the job lease at half-lease intervals while the
// pipeline runs. The returned func stops the heartbeat.
func (r *Runner) startHeartbeat(ctx context.Context, correlationID string) func() {
	interval := r.lease / 2
	if interval < time.Second {
		interval = time.Second
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.jobs.Heartbeat(ctx, correlationID, r.lease); err != nil {
					r.logger.WarnContext(ctx, "heartbeat failed",
						"correlation_id", correlationID, "error", err)
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
