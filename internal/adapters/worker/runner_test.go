package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketwise/enhancer/internal/core"
	"github.com/ticketwise/enhancer/internal/domain/model"
	apperrors "github.com/ticketwise/enhancer/internal/errors"
	"github.com/ticketwise/enhancer/internal/service"
)

// scriptedRepo feeds a fixed set of jobs to the runner and records every
// queue transition.
type scriptedRepo struct {
	mu       sync.Mutex
	queue    []*model.Job
	statuses map[string]model.JobStatus

	completed      []string
	failed         []string
	terminalFailed []string
	released       []string

	// failGoesTerminal controls whether Fail exhausts the retry budget.
	failGoesTerminal bool
}

func newScriptedRepo(jobs ...*model.Job) *scriptedRepo {
	r := &scriptedRepo{statuses: make(map[string]model.JobStatus), failGoesTerminal: true}
	for _, job := range jobs {
		r.queue = append(r.queue, job)
		r.statuses[job.CorrelationID] = model.JobStatusPending
	}
	return r
}

func (r *scriptedRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, bool, error) {
	return nil, false, apperrors.Infrastructure("not used in this test")
}

func (r *scriptedRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	job := r.queue[0]
	r.queue = r.queue[1:]
	r.statuses[job.CorrelationID] = model.JobStatusRunning
	return job, nil
}

func (r *scriptedRepo) Heartbeat(ctx context.Context, correlationID string, leaseSeconds int) (bool, error) {
	return true, nil
}

func (r *scriptedRepo) Complete(ctx context.Context, correlationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, correlationID)
	r.statuses[correlationID] = model.JobStatusCompleted
	return true, nil
}

func (r *scriptedRepo) Fail(ctx context.Context, correlationID, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, correlationID)
	if r.failGoesTerminal {
		r.statuses[correlationID] = model.JobStatusFailed
	} else {
		r.statuses[correlationID] = model.JobStatusPending
	}
	return true, nil
}

func (r *scriptedRepo) FailTerminal(ctx context.Context, correlationID, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminalFailed = append(r.terminalFailed, correlationID)
	r.statuses[correlationID] = model.JobStatusFailed
	return true, nil
}

func (r *scriptedRepo) Release(ctx context.Context, correlationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, correlationID)
	r.statuses[correlationID] = model.JobStatusPending
	return true, nil
}

func (r *scriptedRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[correlationID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", correlationID)
	}
	return &model.Job{CorrelationID: correlationID, Status: status}, nil
}

func (r *scriptedRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

type workerTenantStore struct {
	tenant *model.Tenant
	err    error
}

func (s *workerTenantStore) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tenant, nil
}

// workerHistoryStore records terminal transitions and signals when one lands.
// Terminal transitions upsert: a row missing its admission-time insert is
// still materialized, mirroring the repository contract.
type workerHistoryStore struct {
	mu        sync.Mutex
	rows      map[string]model.JobStatus
	completed []model.HistoryOutcome
	failed    []model.HistoryOutcome
	done      chan struct{}
}

func newWorkerHistoryStore() *workerHistoryStore {
	return &workerHistoryStore{
		rows: make(map[string]model.JobStatus),
		done: make(chan struct{}, 4),
	}
}

func (s *workerHistoryStore) CreatePending(ctx context.Context, tenantID, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[correlationID]; !ok {
		s.rows[correlationID] = model.JobStatusPending
	}
	return nil
}

func (s *workerHistoryStore) MarkCompleted(ctx context.Context, tenantID, correlationID string, outcome model.HistoryOutcome) (bool, error) {
	s.mu.Lock()
	if status, ok := s.rows[correlationID]; ok && status != model.JobStatusPending {
		s.mu.Unlock()
		return false, nil
	}
	s.rows[correlationID] = model.JobStatusCompleted
	s.completed = append(s.completed, outcome)
	s.mu.Unlock()
	s.done <- struct{}{}
	return true, nil
}

func (s *workerHistoryStore) MarkFailed(ctx context.Context, tenantID, correlationID string, outcome model.HistoryOutcome) (bool, error) {
	s.mu.Lock()
	if status, ok := s.rows[correlationID]; ok && status != model.JobStatusPending {
		s.mu.Unlock()
		return false, nil
	}
	s.rows[correlationID] = model.JobStatusFailed
	s.failed = append(s.failed, outcome)
	s.mu.Unlock()
	s.done <- struct{}{}
	return true, nil
}

func (s *workerHistoryStore) GetByCorrelationID(ctx context.Context, tenantID, correlationID string) (*model.JobHistory, error) {
	return nil, apperrors.NotFound("history not found")
}

func (s *workerHistoryStore) FindSimilar(ctx context.Context, tenantID string, limit int) ([]model.JobHistory, error) {
	return nil, nil
}

// scriptedAdapter returns a fixed error per update call.
type scriptedAdapter struct {
	mu    sync.Mutex
	err   error
	block bool
	calls int
}

func (a *scriptedAdapter) Type() model.BackendType { return model.BackendTypeREST }

func (a *scriptedAdapter) UpdateTicket(ctx context.Context, p core.UpdateTicketParams) (core.UpdateResult, error) {
	a.mu.Lock()
	a.calls++
	err := a.err
	block := a.block
	a.mu.Unlock()
	if block {
		<-ctx.Done()
		return core.UpdateResult{}, ctx.Err()
	}
	if err != nil {
		return core.UpdateResult{}, err
	}
	return core.UpdateResult{HTTPStatus: 200}, nil
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type adapterRegistry struct {
	adapter core.TicketBackendAdapter
}

func (r adapterRegistry) Resolve(bt model.BackendType) (core.TicketBackendAdapter, error) {
	return r.adapter, nil
}

type runnerFixture struct {
	runner  *Runner
	jobs    *service.JobService
	repo    *scriptedRepo
	history *workerHistoryStore
	tenants *workerTenantStore
	adapter *scriptedAdapter
}

func testJob(id string) *model.Job {
	return &model.Job{
		CorrelationID:    id,
		TenantID:         "tenant-1",
		ExternalTicketID: "TCK-42",
		RawPayload:       []byte(`{"ticket":{"id":"TCK-42"}}`),
		Status:           model.JobStatusPending,
	}
}

func newRunnerFixture(t *testing.T, repo *scriptedRepo) *runnerFixture {
	return newRunnerFixtureWithTimeout(t, repo, 0)
}

func newRunnerFixtureWithTimeout(t *testing.T, repo *scriptedRepo, overall time.Duration) *runnerFixture {
	t.Helper()

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		PollInterval: time.Hour,
	})
	t.Cleanup(jobs.StopAll)

	tenants := &workerTenantStore{tenant: &model.Tenant{
		ID:          "tenant-1",
		BackendType: model.BackendTypeREST,
		Active:      true,
		Credentials: model.BackendCredentials{BaseURL: "https://tickets.example.com", APIToken: "tok"},
	}}
	history := newWorkerHistoryStore()
	adapter := &scriptedAdapter{}

	updater, err := service.NewUpdater(service.UpdaterOptions{
		Registry: adapterRegistry{adapter: adapter},
		Sleep:    func(ctx context.Context, d time.Duration) error { return nil },
	})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		Jobs:           jobs,
		Tenants:        tenants,
		History:        history,
		Gatherer:       service.NewGatherer(service.GathererOptions{}),
		Synthesizer:    service.NewSynthesizer(service.SynthesizerOptions{}),
		Updater:        updater,
		Lease:          30 * time.Second,
		OverallTimeout: overall,
	})
	require.NoError(t, err)

	return &runnerFixture{
		runner:  runner,
		jobs:    jobs,
		repo:    repo,
		history: history,
		tenants: tenants,
		adapter: adapter,
	}
}

// runUntilFinalized runs the runner until count terminal history transitions
// land, then cancels and waits for shutdown.
func (f *runnerFixture) runUntilFinalized(t *testing.T, count int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- f.runner.Run(ctx) }()

	for range count {
		select {
		case <-f.history.done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for job finalization")
		}
	}
	cancel()

	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunner_ProcessesJobToCompletion(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixture(t, repo)

	f.runUntilFinalized(t, 1)

	assert.Equal(t, []string{"corr-1"}, repo.completed)
	assert.Empty(t, repo.failed)

	require.Len(t, f.history.completed, 1)
	outcome := f.history.completed[0]
	assert.Equal(t, model.SynthesisModeFallback, outcome.SynthesisMode)
	assert.GreaterOrEqual(t, outcome.ProcessingTimeMs, int64(0))
}

func TestRunner_TerminalHistoryWrittenWithoutPendingRow(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixture(t, repo)

	f.runUntilFinalized(t, 1)

	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	assert.Equal(t, model.JobStatusCompleted, f.history.rows["corr-1"],
		"a job whose admission-time history insert was lost still ends with one terminal row")
}

func TestRunner_PermanentUpdateFailureFailsJobWithoutRequeue(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixture(t, repo)
	f.adapter.err = apperrors.PermanentAdapter("backend 400")

	f.runUntilFinalized(t, 1)

	assert.Equal(t, []string{"corr-1"}, repo.terminalFailed)
	assert.Empty(t, repo.failed, "a rejection that cannot change must not re-enter the queue")
	assert.Empty(t, repo.completed)
	assert.Empty(t, repo.released)
	assert.Equal(t, 1, f.adapter.callCount())

	require.Len(t, f.history.failed, 1)
	assert.Contains(t, f.history.failed[0].ErrorMessage, "backend 400")
}

func TestRunner_ExhaustedUpdateRetriesFailTerminally(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixture(t, repo)
	f.adapter.err = apperrors.TransientProvider("backend 503")

	f.runUntilFinalized(t, 1)

	assert.Equal(t, 3, f.adapter.callCount(),
		"transient rejections are retried inside the update, not via the queue")
	assert.Equal(t, []string{"corr-1"}, repo.terminalFailed)
	assert.Empty(t, repo.failed)

	require.Len(t, f.history.failed, 1)
	assert.Contains(t, f.history.failed[0].ErrorMessage, "after 3 attempts")
}

func TestRunner_OverallTimeoutFailsJobTerminally(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixtureWithTimeout(t, repo, 50*time.Millisecond)
	f.adapter.block = true

	f.runUntilFinalized(t, 1)

	assert.Equal(t, []string{"corr-1"}, repo.terminalFailed)
	assert.Empty(t, repo.released)

	require.Len(t, f.history.failed, 1)
	assert.Contains(t, f.history.failed[0].ErrorMessage, "overall_timeout")
}

func TestRunner_RequeuedJobKeepsHistoryPending(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	repo.failGoesTerminal = false // retries remain, Fail requeues
	f := newRunnerFixture(t, repo)
	f.tenants.tenant.Active = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- f.runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.failed) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-runDone

	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	assert.Empty(t, f.history.failed, "requeued jobs must not go terminal in history")
}

func TestRunner_InfrastructureErrorReleasesJob(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixture(t, repo)
	f.tenants.err = apperrors.Infrastructure("db down")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- f.runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.released) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-runDone

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.NotContains(t, repo.failed, "corr-1",
		"infrastructure errors must not consume the retry budget")
}

func TestRunner_DeactivatedTenantFailsJob(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"))
	f := newRunnerFixture(t, repo)
	f.tenants.tenant.Active = false

	f.runUntilFinalized(t, 1)

	assert.Equal(t, []string{"corr-1"}, repo.failed)
	require.Len(t, f.history.failed, 1)
	assert.Contains(t, f.history.failed[0].ErrorMessage, "deactivated")
}

func TestRunner_MultipleJobsDrained(t *testing.T) {
	repo := newScriptedRepo(testJob("corr-1"), testJob("corr-2"), testJob("corr-3"))
	f := newRunnerFixture(t, repo)

	f.runUntilFinalized(t, 3)

	assert.ElementsMatch(t, []string{"corr-1", "corr-2", "corr-3"}, repo.completed)
}
