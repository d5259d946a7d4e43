// Package model defines the core data types used throughout the enhancement
// orchestration engine.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of an enhancement job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed by a worker.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the outbound update succeeded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed with no safe fallback.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal returns true if the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job represents one admitted enhancement request. A job is owned exclusively
// by the worker processing it; after creation only status transitions change,
// and those are recorded through JobHistory.
type Job struct {
	CorrelationID    string          `json:"correlation_id"             db:"correlation_id"`
	TenantID         string          `json:"tenant_id"                  db:"tenant_id"`
	ExternalTicketID string          `json:"external_ticket_id"         db:"external_ticket_id"`
	Status           JobStatus       `json:"status"                     db:"status"`
	Priority         int             `json:"priority"                   db:"priority"`
	RawPayload       json.RawMessage `json:"raw_payload"                db:"raw_payload"`
	ReceivedAt       time.Time       `json:"received_at"                db:"received_at"`
	ScheduledAt      time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount       int             `json:"retry_count"                db:"retry_count"`
	MaxRetries       int             `json:"max_retries"                db:"max_retries"`
	LastError        *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt   *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt        time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"                 db:"updated_at"`
}

// NewCorrelationID mints the opaque token that ties together every log line,
// history row, and downstream call for a single admission.
func NewCorrelationID() string {
	return uuid.NewString()
}

// CreateJobRequest represents a request to admit a new enhancement job.
type CreateJobRequest struct {
	CorrelationID    string          `json:"correlation_id"`
	TenantID         string          `json:"tenant_id"`
	ExternalTicketID string          `json:"external_ticket_id"`
	RawPayload       json.RawMessage `json:"raw_payload"`
	Priority         int             `json:"priority,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
	MaxRetries       int             `json:"max_retries"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.CorrelationID) == "" {
		return errors.New("correlation id is required")
	}
	if strings.TrimSpace(r.TenantID) == "" {
		return errors.New("tenant id is required")
	}
	if strings.TrimSpace(r.ExternalTicketID) == "" {
		return errors.New("external ticket id is required")
	}
	if len(r.RawPayload) == 0 {
		return errors.New("raw payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobStatusResponse is the public view of a job's progress, keyed by the
// execution id returned from the webhook endpoint.
type JobStatusResponse struct {
	ExecutionID string     `json:"execution_id"`
	Status      JobStatus  `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}
