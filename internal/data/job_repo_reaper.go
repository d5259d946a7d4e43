package data

import (
	"context"
	"time"
)

// RequeueExpiredLeases returns running jobs whose lease has lapsed to pending
// so another worker can pick them up. This is what makes delivery
// at-least-once: a worker that dies mid-job loses its lease and the job is
// redelivered.
func (r *JobRepo) RequeueExpiredLeases(ctx context.Context, now time.Time, batch int) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', lease_expires_at = NULL, updated_at = $1
		WHERE correlation_id IN (
		  SELECT correlation_id FROM jobs
		  WHERE status = 'running' AND lease_expires_at IS NOT NULL AND lease_expires_at < $1
		  LIMIT $2
		)`, now, batch)
	if err != nil {
		return 0, MapDBError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FailStalePending fails jobs stuck in pending beyond the max age.
func (r *JobRepo) FailStalePending(ctx context.Context, olderThan time.Time, batch int) (int, error) {
	now := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', last_error = 'stale pending job reaped', completed_at = $1, updated_at = $1
		WHERE correlation_id IN (
		  SELECT correlation_id FROM jobs
		  WHERE status = 'pending' AND created_at < $2
		  LIMIT $3
		)`, now, olderThan, batch)
	if err != nil {
		return 0, MapDBError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeTerminal deletes completed/failed jobs past retention. History rows
// are kept independently and purged by tenant-scoped retention elsewhere.
func (r *JobRepo) PurgeTerminal(ctx context.Context, olderThan time.Time, batch int) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE correlation_id IN (
		  SELECT correlation_id FROM jobs
		  WHERE status IN ('completed', 'failed') AND completed_at < $1
		  LIMIT $2
		)`, olderThan, batch)
	if err != nil {
		return 0, MapDBError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
