package model

import "time"

// SynthesisMode records which path produced the enhancement text.
type SynthesisMode string

const (
	// SynthesisModeAI indicates the AI provider produced the enhancement.
	SynthesisModeAI SynthesisMode = "ai"
	// SynthesisModeFallback indicates the deterministic formatter produced it.
	SynthesisModeFallback SynthesisMode = "fallback"
)

// Valid returns true if the SynthesisMode is valid.
func (m SynthesisMode) Valid() bool {
	return m == SynthesisModeAI || m == SynthesisModeFallback
}

// JobHistory tracks the lifecycle of a single job. Exactly one row exists per
// job, keyed by the correlation id; status is monotonic and never returns to
// pending once a terminal transition has been recorded.
type JobHistory struct {
	CorrelationID         string        `json:"correlation_id"          db:"correlation_id"`
	TenantID              string        `json:"tenant_id"               db:"tenant_id"`
	Status                JobStatus     `json:"status"                  db:"status"`
	StartedAt             *time.Time    `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"  db:"completed_at"`
	ContextNodesSucceeded int           `json:"context_nodes_succeeded" db:"context_nodes_succeeded"`
	ContextNodesFailed    int           `json:"context_nodes_failed"    db:"context_nodes_failed"`
	SynthesisMode         SynthesisMode `json:"synthesis_mode"          db:"synthesis_mode"`
	ErrorMessage          *string       `json:"error_message,omitempty" db:"error_message"`
	ProcessingTimeMs      int64         `json:"processing_time_ms"      db:"processing_time_ms"`
	CreatedAt             time.Time     `json:"created_at"              db:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"              db:"updated_at"`
}

// HistoryOutcome groups the values recorded on a terminal transition.
type HistoryOutcome struct {
	NodesSucceeded   int
	NodesFailed      int
	SynthesisMode    SynthesisMode
	ErrorMessage     string
	ProcessingTimeMs int64
}
