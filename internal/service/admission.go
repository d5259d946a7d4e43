package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	"github.com/ticketwise/enhancer/internal/errors"
)

// webhookSchema is the baseline shape every backend payload must satisfy
// before per-backend field extraction runs.
const webhookSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "minProperties": 1
}`

// AdmissionOptions groups dependencies for the AdmissionService.
type AdmissionOptions struct {
	Tenants core.TenantRepository // Required
	Dedup   core.DedupStore       // Required
	Jobs    *JobService           // Required
	History core.HistoryRepository // Required

	// DedupTTL is the dedup retention window. Defaults to 24h.
	DedupTTL time.Duration
	// MaxRetries applied to admitted jobs. Defaults to 3.
	MaxRetries int
	Logger     *slog.Logger
	// TimeNow is injectable for tests. Defaults to time.Now.
	TimeNow func() time.Time
}

// AdmissionService is the webhook admission path: signature verification,
// replay protection, payload validation, idempotent dedup, and enqueue.
// Admission errors are returned synchronously and never enqueue a job.
type AdmissionService struct {
	tenants    core.TenantRepository
	dedup      core.DedupStore
	jobs       *JobService
	history    core.HistoryRepository
	dedupTTL   time.Duration
	maxRetries int
	logger     *slog.Logger
	timeNow    func() time.Time
	schema     *jsonschema.Schema
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(opts AdmissionOptions) (*AdmissionService, error) {
	if opts.Tenants == nil || opts.Dedup == nil || opts.Jobs == nil || opts.History == nil {
		return nil, fmt.Errorf("tenants, dedup, jobs, and history are all required")
	}
	dedupTTL := opts.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeNow := opts.TimeNow
	if timeNow == nil {
		timeNow = time.Now
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", strings.NewReader(webhookSchema)); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	schema, err := compiler.Compile("webhook.json")
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}

	return &AdmissionService{
		tenants:    opts.Tenants,
		dedup:      opts.Dedup,
		jobs:       opts.Jobs,
		history:    opts.History,
		dedupTTL:   dedupTTL,
		maxRetries: maxRetries,
		logger:     logger,
		timeNow:    timeNow,
		schema:     schema,
	}, nil
}

// AdmitRequest carries one inbound webhook delivery.
type AdmitRequest struct {
	TenantScope     string
	Body            []byte
	SignatureHeader string
	TimestampHeader string
	DeliveryID      string
}

// AdmitResponse is the body returned to the webhook caller.
type AdmitResponse struct {
	Status      string `json:"status"`
	ExecutionID string `json:"execution_id"`

	// Duplicate marks a replayed admission; not serialized.
	Duplicate bool `json:"-"`
}

// Admit runs the full admission path for one delivery.
func (s *AdmissionService) Admit(ctx context.Context, req AdmitRequest) (*AdmitResponse, error) {
	tenant, err := s.tenants.GetByID(ctx, req.TenantScope)
	if err != nil {
		return nil, err
	}
	if !tenant.Active {
		return nil, errors.Forbiddenf("tenant %s is inactive", tenant.ID)
	}
	if !tenant.BackendType.Valid() {
		return nil, errors.Forbiddenf("tenant %s has unsupported backend %q", tenant.ID, tenant.BackendType)
	}

	if verifyErr := VerifySignature(req.Body, req.SignatureHeader, tenant.SigningSecret); verifyErr != nil {
		return nil, verifyErr
	}
	if tsErr := VerifyTimestamp(req.TimestampHeader, s.timeNow()); tsErr != nil {
		return nil, tsErr
	}

	ticketID, err := s.validatePayload(req.Body, tenant)
	if err != nil {
		return nil, err
	}

	correlationID := model.NewCorrelationID()
	resp := &AdmitResponse{Status: "queued", ExecutionID: correlationID}
	respBody, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal admission response: %w", err)
	}

	admit, err := s.dedup.Admit(ctx, core.AdmitParams{
		DeliveryID: deliveryID(req),
		TenantID:   tenant.ID,
		Response:   respBody,
		TTL:        s.dedupTTL,
	})
	if err != nil {
		return nil, err
	}
	if !admit.New {
		return replayedResponse(admit.StoredResponse)
	}

	job, created, err := s.jobs.Create(ctx, &model.CreateJobRequest{
		CorrelationID:    correlationID,
		TenantID:         tenant.ID,
		ExternalTicketID: ticketID,
		RawPayload:       req.Body,
		ReceivedAt:       s.timeNow(),
		MaxRetries:       s.maxRetries,
	})
	if err != nil {
		// The dedup record was written before the enqueue. Without the
		// compensation a sender retry would be replayed "queued" for a job
		// that never made it into the queue.
		if forgetErr := s.dedup.Forget(ctx, tenant.ID, deliveryID(req)); forgetErr != nil {
			s.logger.ErrorContext(ctx, "forget dedup entry after enqueue failure",
				"correlation_id", correlationID,
				"tenant_id", tenant.ID,
				"error", forgetErr)
		}
		return nil, err
	}
	if !created {
		// A non-terminal job for this ticket already exists; answer with its
		// execution id instead of the one we minted.
		s.logger.InfoContext(ctx, "admission joined existing job",
			"correlation_id", job.CorrelationID,
			"tenant_id", tenant.ID,
			"external_ticket_id", ticketID)
		return &AdmitResponse{Status: "queued", ExecutionID: job.CorrelationID, Duplicate: true}, nil
	}

	if histErr := s.history.CreatePending(ctx, tenant.ID, job.CorrelationID); histErr != nil {
		s.logger.ErrorContext(ctx, "create pending history failed",
			"correlation_id", job.CorrelationID, "error", histErr)
	}

	s.logger.InfoContext(ctx, "delivery admitted",
		"correlation_id", job.CorrelationID,
		"tenant_id", tenant.ID,
		"external_ticket_id", ticketID)
	return resp, nil
}

// validatePayload schema-checks the raw body and extracts the external
// ticket id with the tenant's JMESPath expression.
func (s *AdmissionService) validatePayload(body []byte, tenant *model.Tenant) (string, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeValidation, "payload is not valid JSON")
	}
	if err := s.schema.Validate(payload); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeValidation, "payload failed schema validation")
	}

	expr := tenant.TicketIDExpr
	if strings.TrimSpace(expr) == "" {
		return "", errors.Validation("tenant has no ticket id expression configured")
	}
	extracted, err := jmespath.Search(expr, payload)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeValidation, "ticket id expression %q failed", expr)
	}

	ticketID, ok := extracted.(string)
	if !ok || strings.TrimSpace(ticketID) == "" {
		return "", errors.ValidationField("external_ticket_id", "payload carries no ticket id")
	}
	return ticketID, nil
}

// deliveryID prefers the delivery header; absent one, the body hash
// identifies the delivery so resends without the header still deduplicate.
func deliveryID(req AdmitRequest) string {
	if strings.TrimSpace(req.DeliveryID) != "" {
		return req.DeliveryID
	}
	sum := sha256.Sum256(req.Body)
	return hex.EncodeToString(sum[:])
}

func replayedResponse(stored []byte) (*AdmitResponse, error) {
	var resp AdmitResponse
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &resp); err != nil {
			return nil, fmt.Errorf("decode stored admission response: %w", err)
		}
	}
	if resp.Status == "" {
		resp.Status = "queued"
	}
	resp.Duplicate = true
	return &resp, nil
}
