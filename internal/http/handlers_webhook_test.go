package httpx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
	"github.com/ticketwise/enhancer/internal/service"
)

const webhookTestSecret = "router-test-secret"

type routerTenantStore struct {
	tenant *model.Tenant
}

func (s *routerTenantStore) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != id {
		return nil, apperrors.NotFoundf("tenant %s not found", id)
	}
	return s.tenant, nil
}

type routerDedupStore struct {
	seen map[string][]byte
}

func (s *routerDedupStore) Admit(ctx context.Context, p core.AdmitParams) (core.AdmitResult, error) {
	if stored, ok := s.seen[p.DeliveryID]; ok {
		return core.AdmitResult{New: false, StoredResponse: stored}, nil
	}
	if s.seen == nil {
		s.seen = make(map[string][]byte)
	}
	s.seen[p.DeliveryID] = p.Response
	return core.AdmitResult{New: true}, nil
}

func (s *routerDedupStore) Forget(ctx context.Context, tenantID, deliveryID string) error {
	delete(s.seen, deliveryID)
	return nil
}

type routerJobRepo struct {
	jobs map[string]*model.Job
}

func (r *routerJobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, bool, error) {
	job := &model.Job{
		CorrelationID:    req.CorrelationID,
		TenantID:         req.TenantID,
		ExternalTicketID: req.ExternalTicketID,
		Status:           model.JobStatusPending,
	}
	if r.jobs == nil {
		r.jobs = make(map[string]*model.Job)
	}
	r.jobs[job.CorrelationID] = job
	return job, true, nil
}

func (r *routerJobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	return nil, model.ErrNoJobsAvailable
}

func (r *routerJobRepo) Heartbeat(ctx context.Context, correlationID string, leaseSeconds int) (bool, error) {
	return true, nil
}

func (r *routerJobRepo) Complete(ctx context.Context, correlationID string) (bool, error) {
	return true, nil
}

func (r *routerJobRepo) Fail(ctx context.Context, correlationID, message string) (bool, error) {
	return true, nil
}

func (r *routerJobRepo) FailTerminal(ctx context.Context, correlationID, message string) (bool, error) {
	return true, nil
}

func (r *routerJobRepo) Release(ctx context.Context, correlationID string) (bool, error) {
	return true, nil
}

func (r *routerJobRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*model.Job, error) {
	job, ok := r.jobs[correlationID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", correlationID)
	}
	return job, nil
}

func (r *routerJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

type routerHistoryStore struct{}

func (routerHistoryStore) CreatePending(ctx context.Context, tenantID, correlationID string) error {
	return nil
}

func (routerHistoryStore) MarkCompleted(ctx context.Context, tenantID, correlationID string, outcome model.HistoryOutcome) (bool, error) {
	return true, nil
}

func (routerHistoryStore) MarkFailed(ctx context.Context, tenantID, correlationID string, outcome model.HistoryOutcome) (bool, error) {
	return true, nil
}

func (routerHistoryStore) GetByCorrelationID(ctx context.Context, tenantID, correlationID string) (*model.JobHistory, error) {
	return nil, apperrors.NotFound("history not found")
}

func (routerHistoryStore) FindSimilar(ctx context.Context, tenantID string, limit int) ([]model.JobHistory, error) {
	return nil, nil
}

type routerFixture struct {
	handler http.Handler
	tenants *routerTenantStore
	repo    *routerJobRepo
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	tenants := &routerTenantStore{tenant: &model.Tenant{
		ID:            "tenant-1",
		BackendType:   model.BackendTypeREST,
		Active:        true,
		SigningSecret: webhookTestSecret,
		TicketIDExpr:  "ticket.id",
	}}
	repo := &routerJobRepo{}

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		PollInterval: time.Hour,
	})
	t.Cleanup(jobs.StopAll)

	admission, err := service.NewAdmissionService(service.AdmissionOptions{
		Tenants: tenants,
		Dedup:   &routerDedupStore{},
		Jobs:    jobs,
		History: routerHistoryStore{},
	})
	require.NoError(t, err)

	handler := NewRouter(RouterServices{
		Admission:    admission,
		Jobs:         jobs,
		MaxBodyBytes: 1 << 20,
	})
	return &routerFixture{handler: handler, tenants: tenants, repo: repo}
}

func signBody(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (f *routerFixture) post(t *testing.T, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_AcceptedDelivery(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"ticket":{"id":"TCK-42"}}`

	rec := f.post(t, "/webhook/agents/tenant-1", body, map[string]string{
		HeaderSignature:  signBody(body, webhookTestSecret),
		HeaderDeliveryID: "delivery-1",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Status      string `json:"status"`
		ExecutionID string `json:"execution_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.NotEmpty(t, resp.ExecutionID)
}

func TestWebhook_ErrorStatusMapping(t *testing.T) {
	body := `{"ticket":{"id":"TCK-42"}}`

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		mutate     func(f *routerFixture)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown tenant",
			path:       "/webhook/agents/other",
			headers:    map[string]string{HeaderSignature: signBody(body, webhookTestSecret)},
			wantStatus: http.StatusNotFound,
			wantCode:   "unknown_tenant",
		},
		{
			name:       "inactive tenant",
			path:       "/webhook/agents/tenant-1",
			headers:    map[string]string{HeaderSignature: signBody(body, webhookTestSecret)},
			mutate:     func(f *routerFixture) { f.tenants.tenant.Active = false },
			wantStatus: http.StatusForbidden,
			wantCode:   "tenant_forbidden",
		},
		{
			name:       "bad signature",
			path:       "/webhook/agents/tenant-1",
			headers:    map[string]string{HeaderSignature: signBody(body, "wrong-secret")},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_signature",
		},
		{
			name: "stale timestamp",
			path: "/webhook/agents/tenant-1",
			headers: map[string]string{
				HeaderSignature: signBody(body, webhookTestSecret),
				HeaderTimestamp: "1000000000", // 2001
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "replay_detected",
		},
		{
			name:       "missing signature",
			path:       "/webhook/agents/tenant-1",
			headers:    nil,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_signature",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture(t)
			if tc.mutate != nil {
				tc.mutate(f)
			}

			rec := f.post(t, tc.path, body, tc.headers)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantCode, resp.Error)
		})
	}
}

func TestWebhook_InvalidPayload(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"event":"created"}`

	rec := f.post(t, "/webhook/agents/tenant-1", body, map[string]string{
		HeaderSignature: signBody(body, webhookTestSecret),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_payload", resp.Error)
}

func TestJobStatus_KnownAndUnknown(t *testing.T) {
	f := newRouterFixture(t)
	body := `{"ticket":{"id":"TCK-9"}}`

	admitted := f.post(t, "/webhook/agents/tenant-1", body, map[string]string{
		HeaderSignature: signBody(body, webhookTestSecret),
	})
	require.Equal(t, http.StatusAccepted, admitted.Code)

	var resp struct {
		ExecutionID string `json:"execution_id"`
	}
	require.NoError(t, json.Unmarshal(admitted.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+resp.ExecutionID, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status model.JobStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, resp.ExecutionID, status.ExecutionID)
	assert.Equal(t, model.JobStatusPending, status.Status)

	missing := httptest.NewRequest(http.MethodGet, "/jobs/no-such-id", nil)
	missingRec := httptest.NewRecorder()
	f.handler.ServeHTTP(missingRec, missing)
	assert.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestHealthz_Liveness(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_ReadinessDegraded(t *testing.T) {
	admissionless := NewRouter(RouterServices{
		HealthChecks: map[string]func(ctx context.Context) error{
			"postgres": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return apperrors.Infrastructure("redis down") },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	admissionless.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "degraded", decoded["status"])
	checks, ok := decoded["checks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, checks, "redis")
}
