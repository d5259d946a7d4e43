package data

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/ticketwise/enhancer/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// RetryDelaySeconds is the delay applied when a failed job is requeued
	// for another attempt. Defaults to 30.
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides durable queue operations backed by Postgres. Reservation
// uses FOR UPDATE SKIP LOCKED so any number of workers can dequeue
// concurrently without double-delivery inside a lease window.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const defaultRetryDelaySeconds = 30

func (r *JobRepo) retryDelay() int {
	if r.cfg.RetryDelaySeconds > 0 {
		return r.cfg.RetryDelaySeconds
	}
	return defaultRetryDelaySeconds
}

const jobColumns = `
  correlation_id,
  tenant_id,
  external_ticket_id,
  status,
  priority,
  raw_payload,
  received_at,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	err := row.Scan(
		&j.CorrelationID,
		&j.TenantID,
		&j.ExternalTicketID,
		&j.Status,
		&j.Priority,
		&j.RawPayload,
		&j.ReceivedAt,
		&j.ScheduledAt,
		&j.StartedAt,
		&j.CompletedAt,
		&j.RetryCount,
		&j.MaxRetries,
		&j.LastError,
		&j.LeaseExpiresAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create admits a job. A concurrent or repeated admission for the same
// (tenant, ticket) while a non-terminal job exists hits the partial unique
// index; in that case the existing job is returned with created=false so the
// admission path stays idempotent under redelivery.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, bool, error) {
	if req == nil {
		return nil, false, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO jobs (
		  correlation_id, tenant_id, external_ticket_id, status, priority,
		  raw_payload, received_at, scheduled_at, max_retries
		)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8)
		RETURNING `+jobColumns,
		req.CorrelationID,
		req.TenantID,
		req.ExternalTicketID,
		req.Priority,
		[]byte(req.RawPayload),
		req.ReceivedAt,
		r.timeProvider.Now(),
		maxRetries,
	)

	job, err := scanJob(row)
	if err == nil {
		return job, true, nil
	}
	if !IsUniqueViolation(err) {
		return nil, false, MapDBError(err)
	}

	existing, findErr := r.findActive(ctx, req.TenantID, req.ExternalTicketID)
	if findErr != nil {
		return nil, false, findErr
	}
	return existing, false, nil
}

func (r *JobRepo) findActive(ctx context.Context, tenantID, ticketID string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1 AND external_ticket_id = $2
		  AND status IN ('pending', 'running')
		ORDER BY created_at DESC
		LIMIT 1`, tenantID, ticketID)
	job, err := scanJob(row)
	if err != nil {
		return nil, MapDBError(err)
	}
	return job, nil
}

// SQL used by ReserveNext to atomically reserve the next pending job.
const reserveNextSQL = `
  WITH cte AS (
    SELECT correlation_id FROM jobs
    WHERE status = 'pending' AND scheduled_at <= $1
    ORDER BY priority DESC, scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $2
  FROM cte
  WHERE j.correlation_id = cte.correlation_id
  RETURNING ` + jobColumns

// ReserveNext reserves the next pending job, moving it to running with the
// given lease. Returns model.ErrNoJobsAvailable when the queue is empty.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds < 1 {
		leaseSeconds = 1
	}
	now := r.timeProvider.Now()
	leaseExpiry := now.Add(secondsToDuration(leaseSeconds))

	row := r.DB.QueryRowContext(ctx, reserveNextSQL, now, now, leaseExpiry)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, MapDBError(err)
	}
	return job, nil
}

// Heartbeat extends the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, correlationID string, leaseSeconds int) (bool, error) {
	if leaseSeconds < 1 {
		leaseSeconds = 1
	}
	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $1, updated_at = $2
		WHERE correlation_id = $3 AND status = 'running'`,
		now.Add(secondsToDuration(leaseSeconds)), now, correlationID)
	if err != nil {
		return false, MapDBError(err)
	}
	return rowsAffected(res), nil
}

// Complete transitions a running job to completed.
func (r *JobRepo) Complete(ctx context.Context, correlationID string) (bool, error) {
	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = $1, lease_expires_at = NULL, updated_at = $1
		WHERE correlation_id = $2 AND status = 'running'`,
		now, correlationID)
	if err != nil {
		return false, MapDBError(err)
	}
	return rowsAffected(res), nil
}

// Fail records a failure. While retries remain the job is requeued with a
// delay; once exhausted it transitions to failed.
func (r *JobRepo) Fail(ctx context.Context, correlationID, message string) (bool, error) {
	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET
		  retry_count = retry_count + 1,
		  last_error = $1,
		  status = CASE WHEN retry_count + 1 > max_retries THEN 'failed' ELSE 'pending' END,
		  completed_at = CASE WHEN retry_count + 1 > max_retries THEN $2 ELSE NULL END,
		  scheduled_at = CASE WHEN retry_count + 1 > max_retries THEN scheduled_at
		                      ELSE $2 + make_interval(secs => $3) END,
		  lease_expires_at = NULL,
		  updated_at = $2
		WHERE correlation_id = $4 AND status = 'running'`,
		message, now, r.retryDelay(), correlationID)
	if err != nil {
		return false, MapDBError(err)
	}
	return rowsAffected(res), nil
}

// FailTerminal moves a running job straight to failed, bypassing the retry
// budget. Used for permanent backend rejections and overall-timeout failures
// where another attempt cannot change the outcome.
func (r *JobRepo) FailTerminal(ctx context.Context, correlationID, message string) (bool, error) {
	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET
		  status = 'failed',
		  last_error = $1,
		  completed_at = $2,
		  lease_expires_at = NULL,
		  updated_at = $2
		WHERE correlation_id = $3 AND status = 'running'`,
		message, now, correlationID)
	if err != nil {
		return false, MapDBError(err)
	}
	return rowsAffected(res), nil
}

// Release returns a running job to pending without consuming a retry. Used
// when processing never started safely.
func (r *JobRepo) Release(ctx context.Context, correlationID string) (bool, error) {
	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', lease_expires_at = NULL, updated_at = $1
		WHERE correlation_id = $2 AND status = 'running'`,
		now, correlationID)
	if err != nil {
		return false, MapDBError(err)
	}
	return rowsAffected(res), nil
}

// GetByCorrelationID fetches a job by its correlation id.
func (r *JobRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE correlation_id = $1`, correlationID)
	job, err := scanJob(row)
	if err != nil {
		return nil, MapDBError(err)
	}
	return job, nil
}

// Stats returns job counts per status.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, MapDBError(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	stats := &model.JobStats{}
	for rows.Next() {
		var status model.JobStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, MapDBError(scanErr)
		}
		switch status {
		case model.JobStatusPending:
			stats.Pending = count
		case model.JobStatusRunning:
			stats.Running = count
		case model.JobStatusCompleted:
			stats.Completed = count
		case model.JobStatusFailed:
			stats.Failed = count
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, MapDBError(rowsErr)
	}
	return stats, nil
}

func rowsAffected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
