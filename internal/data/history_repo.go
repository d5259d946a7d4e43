package data

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	apperrors "github.com/ticketwise/enhancer/internal/errors"

	"github.com/ticketwise/enhancer/internal/domain/model"
)

// HistoryRepo persists job lifecycle rows. All operations run through a
// tenant scope; the row-level security policy on job_history makes an
// unscoped query return zero rows.
type HistoryRepo struct {
	scopes       *ScopeFactory
	timeProvider TimeProvider
	logger       *slog.Logger
}

// HistoryRepoConfig holds optional dependencies for HistoryRepo.
type HistoryRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewHistoryRepo creates a HistoryRepo using the given scope factory.
func NewHistoryRepo(scopes *ScopeFactory, cfg HistoryRepoConfig) *HistoryRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &HistoryRepo{scopes: scopes, timeProvider: tp, logger: cfg.Logger}
}

const historyColumns = `
  correlation_id,
  tenant_id,
  status,
  started_at,
  completed_at,
  context_nodes_succeeded,
  context_nodes_failed,
  synthesis_mode,
  error_message,
  processing_time_ms,
  created_at,
  updated_at
`

func scanHistory(row rowScanner) (*model.JobHistory, error) {
	var h model.JobHistory
	err := row.Scan(
		&h.CorrelationID,
		&h.TenantID,
		&h.Status,
		&h.StartedAt,
		&h.CompletedAt,
		&h.ContextNodesSucceeded,
		&h.ContextNodesFailed,
		&h.SynthesisMode,
		&h.ErrorMessage,
		&h.ProcessingTimeMs,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CreatePending inserts the pending history row at admission time. The insert
// is duplicate-safe so an admission retry after a partial failure cannot
// double-insert.
func (r *HistoryRepo) CreatePending(ctx context.Context, tenantID, correlationID string) error {
	return r.scopes.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO job_history (correlation_id, tenant_id, status, created_at, updated_at)
			VALUES ($1, $2, 'pending', $3, $3)
			ON CONFLICT (correlation_id) DO NOTHING`,
			correlationID, tenantID, r.timeProvider.Now())
		if err != nil {
			return MapDBError(err)
		}
		return nil
	})
}

// MarkCompleted records a terminal completed transition. Status stays
// monotonic: a row already terminal is left untouched.
func (r *HistoryRepo) MarkCompleted(
	ctx context.Context,
	tenantID, correlationID string,
	outcome model.HistoryOutcome,
) (bool, error) {
	return r.markTerminal(ctx, tenantID, correlationID, model.JobStatusCompleted, outcome)
}

// MarkFailed records a terminal failed transition.
func (r *HistoryRepo) MarkFailed(
	ctx context.Context,
	tenantID, correlationID string,
	outcome model.HistoryOutcome,
) (bool, error) {
	return r.markTerminal(ctx, tenantID, correlationID, model.JobStatusFailed, outcome)
}

func (r *HistoryRepo) markTerminal(
	ctx context.Context,
	tenantID, correlationID string,
	status model.JobStatus,
	outcome model.HistoryOutcome,
) (bool, error) {
	var updated bool
	err := r.scopes.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		now := r.timeProvider.Now()
		var errMsg *string
		if outcome.ErrorMessage != "" {
			errMsg = &outcome.ErrorMessage
		}
		// Upsert: when the pending row was lost at admission time, the
		// terminal transition still materializes it, so every finished job
		// has exactly one history row. A row already terminal stays as-is.
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO job_history (
			  correlation_id, tenant_id, status, started_at, completed_at,
			  context_nodes_succeeded, context_nodes_failed, synthesis_mode,
			  error_message, processing_time_ms, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8, $9, $4, $4)
			ON CONFLICT (correlation_id) DO UPDATE
			SET
			  status = EXCLUDED.status,
			  started_at = COALESCE(job_history.started_at, EXCLUDED.started_at),
			  completed_at = EXCLUDED.completed_at,
			  context_nodes_succeeded = EXCLUDED.context_nodes_succeeded,
			  context_nodes_failed = EXCLUDED.context_nodes_failed,
			  synthesis_mode = EXCLUDED.synthesis_mode,
			  error_message = EXCLUDED.error_message,
			  processing_time_ms = EXCLUDED.processing_time_ms,
			  updated_at = EXCLUDED.updated_at
			WHERE job_history.status = 'pending'`,
			correlationID, tenantID, status, now,
			outcome.NodesSucceeded, outcome.NodesFailed,
			outcome.SynthesisMode, errMsg, outcome.ProcessingTimeMs)
		if execErr != nil {
			return MapDBError(execErr)
		}
		updated = rowsAffected(res)
		return nil
	})
	return updated, err
}

// GetByCorrelationID fetches a history row within the tenant's scope.
func (r *HistoryRepo) GetByCorrelationID(
	ctx context.Context,
	tenantID, correlationID string,
) (*model.JobHistory, error) {
	var hist *model.JobHistory
	err := r.scopes.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+historyColumns+` FROM job_history WHERE correlation_id = $1`,
			correlationID)
		h, scanErr := scanHistory(row)
		if scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return apperrors.NotFoundf("history %s not found", correlationID)
			}
			return MapDBError(scanErr)
		}
		hist = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hist, nil
}

// FindSimilar returns recent completed histories for the tenant. Used by the
// similar-ticket context node.
func (r *HistoryRepo) FindSimilar(ctx context.Context, tenantID string, limit int) ([]model.JobHistory, error) {
	if limit < 1 {
		limit = 10
	}
	var out []model.JobHistory
	err := r.scopes.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		rows, queryErr := tx.QueryContext(ctx, `
			SELECT `+historyColumns+`
			FROM job_history
			WHERE status = 'completed'
			ORDER BY completed_at DESC
			LIMIT $1`, limit)
		if queryErr != nil {
			return MapDBError(queryErr)
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			h, scanErr := scanHistory(rows)
			if scanErr != nil {
				return MapDBError(scanErr)
			}
			out = append(out, *h)
		}
		return MapDBError(rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeOlderThan deletes terminal history rows past retention for a tenant.
func (r *HistoryRepo) PurgeOlderThan(ctx context.Context, tenantID string, olderThan int64, batch int) (int, error) {
	var n int64
	err := r.scopes.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `
			DELETE FROM job_history
			WHERE correlation_id IN (
			  SELECT correlation_id FROM job_history
			  WHERE status IN ('completed', 'failed')
			    AND completed_at < now() - make_interval(secs => $1)
			  LIMIT $2
			)`, olderThan, batch)
		if execErr != nil {
			return MapDBError(execErr)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}
