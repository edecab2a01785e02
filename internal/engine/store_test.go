package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

// memStore is an in-memory Store and DeploymentStore for engine tests
type memStore struct {
	mu        sync.Mutex
	kind      models.JobKind
	nextID    uint
	runs      map[uint]*models.TestRun
	deploys   map[uint]*models.Deployment
	casMisses int
	casErrors int
}

func newMemStore(kind models.JobKind) *memStore {
	return &memStore{
		kind:    kind,
		runs:    make(map[uint]*models.TestRun),
		deploys: make(map[uint]*models.Deployment),
	}
}

func (s *memStore) record(id uint) *models.JobRecord {
	if r, ok := s.runs[id]; ok {
		return &r.JobRecord
	}
	if d, ok := s.deploys[id]; ok {
		return &d.JobRecord
	}
	return nil
}

func (s *memStore) Insert(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	switch v := job.(type) {
	case *models.TestRun:
		v.ID = s.nextID
		c := *v
		s.runs[c.ID] = &c
	case *models.Deployment:
		v.ID = s.nextID
		c := *v
		s.deploys[c.ID] = &c
	default:
		return fmt.Errorf("unsupported job %T", job)
	}
	return nil
}

func (s *memStore) LoadStatus(_ context.Context, id uint) (models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(id)
	if rec == nil {
		return "", &NotFoundError{Resource: s.kind.Noun(), ID: id}
	}
	return rec.Status, nil
}

func (s *memStore) CompareAndSwap(_ context.Context, id uint, from, to models.JobStatus, patch Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casErrors > 0 {
		s.casErrors--
		return false, errors.New("database unavailable")
	}
	if s.casMisses > 0 {
		s.casMisses--
		return false, nil
	}
	rec := s.record(id)
	if rec == nil || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	if patch.ExecutionID != "" {
		rec.ExecutionID = patch.ExecutionID
	}
	if patch.StartedAt != nil {
		rec.StartedAt = patch.StartedAt
	}
	if patch.FinishedAt != nil {
		rec.FinishedAt = patch.FinishedAt
	}
	if patch.Error != "" {
		rec.Error = patch.Error
	}
	rec.Logs += patch.AppendLogs
	if r, ok := s.runs[id]; ok {
		if v, ok := patch.Fields[models.TestRunTotalTestsField].(int); ok {
			r.TotalTests = v
		}
		if v, ok := patch.Fields[models.TestRunPassedTestsField].(int); ok {
			r.PassedTests = v
		}
		if v, ok := patch.Fields[models.TestRunFailedTestsField].(int); ok {
			r.FailedTests = v
		}
		if v, ok := patch.Fields[models.TestRunCoverageField].(float64); ok {
			r.Coverage = &v
		}
	}
	if d, ok := s.deploys[id]; ok {
		if v, ok := patch.Fields[models.DeploymentDeployedAtField].(time.Time); ok {
			d.DeployedAt = &v
		}
	}
	return true, nil
}

func (s *memStore) AppendLogs(_ context.Context, id uint, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(id)
	if rec == nil {
		return &NotFoundError{Resource: s.kind.Noun(), ID: id}
	}
	rec.Logs += text
	return nil
}

func (s *memStore) Get(_ context.Context, id uint) (*models.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deploys[id]
	if !ok {
		return nil, &NotFoundError{Resource: "deployment", ID: id}
	}
	c := *d
	return &c, nil
}

func (s *memStore) FindPredecessor(_ context.Context, target *models.Deployment) (*models.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*models.Deployment
	for _, d := range s.deploys {
		if d.ID == target.ID || d.ProjectID != target.ProjectID || d.Environment != target.Environment {
			continue
		}
		if d.Status != models.JobStatusDeployed || d.DeployedAt == nil || target.DeployedAt == nil {
			continue
		}
		if d.DeployedAt.Before(*target.DeployedAt) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DeployedAt.After(*candidates[j].DeployedAt)
	})
	c := *candidates[0]
	return &c, nil
}

func (s *memStore) CreateRollback(_ context.Context, target, rollback *models.Deployment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.deploys[target.ID]
	if !ok || current.Status != models.JobStatusDeployed {
		return false, nil
	}
	s.nextID++
	rollback.ID = s.nextID
	c := *rollback
	s.deploys[c.ID] = &c
	current.Status = models.JobStatusRolledBack
	id := rollback.ID
	current.RollbackToID = &id
	return true, nil
}

// put stores a job directly, bypassing the state machine
func (s *memStore) put(job models.Job) uint {
	if job.Record().Status == "" {
		job.Record().Status = models.JobStatusPending
	}
	if err := s.Insert(context.Background(), job); err != nil {
		panic(err)
	}
	return job.JobID()
}

func (s *memStore) testRun(id uint) models.TestRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}

func (s *memStore) deployment(id uint) models.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.deploys[id]
}

// recordingObserver collects every transition it is notified of
type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
}

func (o *recordingObserver) Transitioned(_ context.Context, t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) snapshot() []Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Transition(nil), o.transitions...)
}

// countingMetrics counts the engine metrics it receives
type countingMetrics struct {
	mu         sync.Mutex
	dispatched int
	finished   map[models.JobStatus]int
	inFlight   int
	cancels    map[bool]int
	late       int
	rollbacks  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		finished:  make(map[models.JobStatus]int),
		cancels:   make(map[bool]int),
		rollbacks: make(map[string]int),
	}
}

func (m *countingMetrics) JobDispatched(models.JobKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched++
}

func (m *countingMetrics) JobFinished(_ models.JobKind, status models.JobStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[status]++
}

func (m *countingMetrics) ExecutionsInFlightIncr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
}

func (m *countingMetrics) ExecutionsInFlightDecr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func (m *countingMetrics) CancellationRequested(_ models.JobKind, accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[accepted]++
}

func (m *countingMetrics) LateCallbackIgnored(models.JobKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.late++
}

func (m *countingMetrics) RollbackResolved(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks[outcome]++
}

func (m *countingMetrics) lateCallbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.late
}

func (m *countingMetrics) rollbackOutcomes(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks[outcome]
}

func (m *countingMetrics) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// harness wires an engine over in-memory stores
type harness struct {
	runs       *memStore
	deploys    *memStore
	machine    *StateMachine
	registry   *Registry
	dispatcher *Dispatcher
	resolver   *RollbackResolver
	metrics    *countingMetrics
	observer   *recordingObserver
}

func newHarness(runner Runner) *harness {
	h := &harness{
		runs:     newMemStore(models.JobKindTestRun),
		deploys:  newMemStore(models.JobKindDeployment),
		metrics:  newCountingMetrics(),
		observer: &recordingObserver{},
	}
	h.machine = NewStateMachine(map[models.JobKind]Store{
		models.JobKindTestRun:    h.runs,
		models.JobKindDeployment: h.deploys,
	}).Observe(h.observer)
	h.registry = NewRegistry(h.machine).WithMetrics(h.metrics)
	h.dispatcher = NewDispatcher(h.machine, h.registry, runner).WithMetrics(h.metrics)
	h.resolver = NewRollbackResolver(h.deploys, h.machine, h.dispatcher).WithMetrics(h.metrics)
	return h
}

func newTestRun() *models.TestRun {
	return &models.TestRun{
		ProjectID:   1,
		TestSuiteID: 1,
		TriggeredBy: "alice",
		Environment: "staging",
		Branch:      "main",
	}
}

func deployedAt(minutes int) *time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
	return &t
}

func newDeployment(env, version string, status models.JobStatus, at *time.Time) *models.Deployment {
	return &models.Deployment{
		JobRecord: models.JobRecord{
			Status:        status,
			Configuration: map[string]interface{}{"replicas": float64(2)},
		},
		ProjectID:   1,
		Environment: env,
		Version:     version,
		Branch:      "main",
		CommitHash:  "sha-" + version,
		DeployedBy:  "alice",
		DeployedAt:  at,
	}
}

// succeed is a runner that reports success immediately
var succeed = RunnerFunc(func(context.Context, *Execution) (*Result, error) {
	return &Result{Success: true, Output: "ok\n"}, nil
})

func waitDone(h *Handle) bool {
	select {
	case <-h.Done():
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}
