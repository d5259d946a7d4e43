// Package core defines the interfaces between the orchestration services and
// their data/transport adapters. Services depend on these contracts only;
// concrete implementations live under internal/data and internal/adapters.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ticketwise/enhancer/internal/domain/model"
)

// JobRepository provides durable queue operations for enhancement jobs.
type JobRepository interface {
	// Create admits a job. Admission is idempotent on (tenant_id,
	// external_ticket_id) over non-terminal jobs: a duplicate insert returns
	// the existing job with created=false.
	Create(ctx context.Context, req *model.CreateJobRequest) (job *model.Job, created bool, err error)

	// ReserveNext atomically reserves the next pending job, moving it to
	// running with a lease. Returns model.ErrNoJobsAvailable when the queue
	// is empty.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)

	// Heartbeat extends the lease on a running job.
	Heartbeat(ctx context.Context, correlationID string, leaseSeconds int) (bool, error)

	// Complete transitions a running job to completed.
	Complete(ctx context.Context, correlationID string) (bool, error)

	// Fail records a retryable failure: the job goes back to pending with a
	// retry delay while retries remain, and to failed once exhausted.
	Fail(ctx context.Context, correlationID, message string) (bool, error)

	// FailTerminal transitions a running job straight to failed regardless of
	// remaining retries. Used for rejections that cannot change on retry.
	FailTerminal(ctx context.Context, correlationID, message string) (bool, error)

	// Release returns a running job to pending without consuming a retry.
	// Used when processing never started safely (infrastructure errors).
	Release(ctx context.Context, correlationID string) (bool, error)

	// GetByCorrelationID fetches a job by its correlation id.
	GetByCorrelationID(ctx context.Context, correlationID string) (*model.Job, error)

	// Stats returns job counts per status.
	Stats(ctx context.Context) (*model.JobStats, error)
}

// HistoryRepository persists job lifecycle rows. Every method requires an
// explicit tenant id; implementations refuse to execute without one.
type HistoryRepository interface {
	CreatePending(ctx context.Context, tenantID, correlationID string) error
	MarkCompleted(ctx context.Context, tenantID, correlationID string, outcome model.HistoryOutcome) (bool, error)
	MarkFailed(ctx context.Context, tenantID, correlationID string, outcome model.HistoryOutcome) (bool, error)
	GetByCorrelationID(ctx context.Context, tenantID, correlationID string) (*model.JobHistory, error)
	// FindSimilar returns recent completed histories for the tenant, used by
	// the similar-ticket context node.
	FindSimilar(ctx context.Context, tenantID string, limit int) ([]model.JobHistory, error)
}

// TenantRepository reads tenant records. Tenants are provisioned externally
// and read-only to the core.
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
}

// AdmitParams groups parameters for DedupStore.Admit.
type AdmitParams struct {
	DeliveryID string
	TenantID   string
	// Response is the admission response body stored on first admission and
	// replayed verbatim on duplicates within the retention window.
	Response []byte
	TTL      time.Duration
}

// AdmitResult is the outcome of a dedup admission check.
type AdmitResult struct {
	// New is true when this delivery id was not seen within the window.
	New bool
	// StoredResponse holds the previously issued response when New is false.
	StoredResponse []byte
}

// DedupStore tracks recently seen delivery identifiers to guarantee
// at-most-once admission. Admit must be a single atomic check-and-set.
type DedupStore interface {
	Admit(ctx context.Context, p AdmitParams) (AdmitResult, error)

	// Forget removes a delivery admitted by Admit. Called to compensate when
	// the enqueue following a fresh admission fails, so the sender's retry is
	// not replayed a response for a job that never existed.
	Forget(ctx context.Context, tenantID, deliveryID string) error
}

// ContextRequest carries the job fields context nodes may use for lookups.
type ContextRequest struct {
	CorrelationID    string
	TenantID         string
	ExternalTicketID string
	RawPayload       json.RawMessage
}

// ContextNode is one independent data-gathering operation. Fetch must honor
// ctx cancellation; failures are isolated per node and never cancel siblings.
type ContextNode interface {
	Name() string
	Fetch(ctx context.Context, req ContextRequest) (json.RawMessage, error)
}

// SynthesisRequest carries gathered context into a provider call.
type SynthesisRequest struct {
	CorrelationID string
	Bundle        *model.ContextBundle
	MaxWords      int
}

// SynthesisProvider turns gathered context into recommendation text. Failures
// are caught locally by the synthesizer and trigger the fallback formatter.
type SynthesisProvider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// UpdateTicketParams groups parameters for TicketBackendAdapter.UpdateTicket.
type UpdateTicketParams struct {
	Credentials      model.BackendCredentials
	ExternalTicketID string
	Enhancement      model.Enhancement
}

// UpdateResult reports the backend's response to an update attempt.
type UpdateResult struct {
	HTTPStatus int
}

// TicketBackendAdapter writes an enhancement back to the originating
// ticketing system. Implementations are selected by the tenant's backend
// type through the adapter registry; errors carry the taxonomy codes that
// drive the core's uniform retry policy.
type TicketBackendAdapter interface {
	Type() model.BackendType
	UpdateTicket(ctx context.Context, p UpdateTicketParams) (UpdateResult, error)
}

// ReaperRepository provides queue maintenance operations.
type ReaperRepository interface {
	// RequeueExpiredLeases returns running jobs whose lease has lapsed to
	// pending, preserving at-least-once delivery.
	RequeueExpiredLeases(ctx context.Context, now time.Time, batch int) (int, error)
	// FailStalePending fails jobs stuck pending beyond the max age.
	FailStalePending(ctx context.Context, olderThan time.Time, batch int) (int, error)
	// PurgeTerminal deletes terminal jobs (and their history) past retention.
	PurgeTerminal(ctx context.Context, olderThan time.Time, batch int) (int, error)
}
