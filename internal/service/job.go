package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo         core.JobRepository // Required: job repository
	DefaultLease time.Duration      // Required: default lease duration for jobs
	Logger       *slog.Logger       // Optional: structured logger
	PollInterval time.Duration      // Optional: worker wake-up interval when idle
}

// JobService wraps the queue repository with lease handling and a small
// in-process notifier that wakes idle workers when jobs are enqueued, with a
// periodic tick as a safety net for jobs enqueued by other processes.
type JobService struct {
	repo         core.JobRepository
	defaultLease time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	ticker *time.Ticker
	stop   chan struct{}
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.DefaultLease <= 0 {
		return nil, errors.New("DefaultLease must be positive")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	s := &JobService{
		repo:         opts.Repo,
		defaultLease: opts.DefaultLease,
		pollInterval: poll,
		logger:       opts.Logger,
		subs:         make(map[chan struct{}]struct{}),
		stop:         make(chan struct{}),
	}
	s.ticker = time.NewTicker(poll)
	go s.tickLoop()
	return s, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

func (s *JobService) tickLoop() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
			s.Notify()
		}
	}
}

// Subscribe registers for job availability notifications. Returns an
// unsubscribe function and the notification channel.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return unsub, ch
}

// Notify wakes all subscribed workers. Non-blocking: a worker that already
// has a pending wake-up is not signalled twice.
func (s *JobService) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// StopAll stops the background tick loop.
func (s *JobService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
		s.ticker.Stop()
	}
}

// Create admits a new job and wakes workers when it is genuinely new.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, bool, error) {
	job, created, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if created {
		s.Notify()
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "job admitted",
			"correlation_id", job.CorrelationID,
			"tenant_id", job.TenantID,
			"created", created)
	}
	return job, created, nil
}

// ReserveNext reserves the next available job for processing.
func (s *JobService) ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error) {
	if lease <= 0 {
		lease = s.defaultLease
	}
	seconds := int(lease / time.Second)
	if seconds < 1 {
		// sub-second leases expire before the worker can heartbeat
		seconds = 1
	}

	job, err := s.repo.ReserveNext(ctx, seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"correlation_id", job.CorrelationID, "lease_seconds", seconds)
	}
	return job, nil
}

// Heartbeat extends the lease on a running job.
func (s *JobService) Heartbeat(ctx context.Context, correlationID string, extend time.Duration) (bool, error) {
	seconds := int(extend / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	updated, err := s.repo.Heartbeat(ctx, correlationID, seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", correlationID, err)
	}
	return updated, nil
}

// Complete transitions a running job to completed.
func (s *JobService) Complete(ctx context.Context, correlationID string) (bool, error) {
	ok, err := s.repo.Complete(ctx, correlationID)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", correlationID, err)
	}
	return ok, nil
}

// Fail records a job failure, requeueing while retries remain.
func (s *JobService) Fail(ctx context.Context, correlationID, message string) (bool, error) {
	ok, err := s.repo.Fail(ctx, correlationID, message)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", correlationID, err)
	}
	if ok {
		// the job may have gone back to pending
		s.Notify()
	}
	return ok, nil
}

// FailTerminal moves a running job straight to failed, bypassing the retry
// budget.
func (s *JobService) FailTerminal(ctx context.Context, correlationID, message string) (bool, error) {
	ok, err := s.repo.FailTerminal(ctx, correlationID, message)
	if err != nil {
		return false, fmt.Errorf("fail job %s terminally: %w", correlationID, err)
	}
	return ok, nil
}

// Release returns a running job to pending without consuming a retry.
func (s *JobService) Release(ctx context.Context, correlationID string) (bool, error) {
	ok, err := s.repo.Release(ctx, correlationID)
	if err != nil {
		return false, fmt.Errorf("release job %s: %w", correlationID, err)
	}
	return ok, nil
}

// Status returns the public status view for an execution id.
func (s *JobService) Status(ctx context.Context, executionID string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByCorrelationID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		ExecutionID: job.CorrelationID,
		Status:      job.Status,
		CompletedAt: job.CompletedAt,
		LastError:   job.LastError,
	}, nil
}

// Stats returns job counts per status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}
