package services

import (
	"context"
	"fmt"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/db/repos"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// TestRun handles test run operations
type TestRun struct {
	repo       *repos.TestRunRepository
	projects   *Project
	suites     *TestSuite
	dispatcher *engine.Dispatcher
	registry   *engine.Registry
}

// NewTestRunService creates a new test run service
func NewTestRunService(
	repo *repos.TestRunRepository,
	projects *Project,
	suites *TestSuite,
	dispatcher *engine.Dispatcher,
	registry *engine.Registry,
) *TestRun {
	return &TestRun{
		repo:       repo,
		projects:   projects,
		suites:     suites,
		dispatcher: dispatcher,
		registry:   registry,
	}
}

// Create records a PENDING test run of the requested suite and dispatches it.
// The returned record reflects the state at dispatch time.
func (s *TestRun) Create(ctx context.Context, actor string, req types.CreateTestRunRequest) (*models.TestRun, error) {
	if _, err := s.projects.Get(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	suite, err := s.suites.Get(ctx, req.TestSuiteID)
	if err != nil {
		return nil, err
	}
	if suite.ProjectID != req.ProjectID {
		return nil, engine.Validationf("test suite %d does not belong to project %d", suite.ID, req.ProjectID)
	}

	configuration := make(map[string]interface{}, len(suite.Configuration)+len(req.Configuration))
	for k, v := range suite.Configuration {
		configuration[k] = v
	}
	for k, v := range req.Configuration {
		configuration[k] = v
	}

	run := &models.TestRun{
		JobRecord:   models.JobRecord{Configuration: configuration},
		ProjectID:   req.ProjectID,
		TestSuiteID: suite.ID,
		TriggeredBy: actor,
		Environment: req.Environment,
		Branch:      req.Branch,
	}

	handle, err := s.dispatcher.Dispatch(ctx, engine.Request{
		Job:     run,
		Spec:    TestRunSpec(run, suite),
		Timeout: suite.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	run.ExecutionID = handle.ExecutionID
	return run, nil
}

// Get retrieves a test run by ID
func (s *TestRun) Get(ctx context.Context, id uint) (*models.TestRun, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves test runs newest first, optionally filtered by project and suite
func (s *TestRun) List(ctx context.Context, projectID, suiteID uint, opts *models.ListOptions) ([]models.TestRun, error) {
	return s.repo.List(ctx, projectID, suiteID, opts)
}

// Cancel moves a pending or running test run to CANCELLED and signals its execution
func (s *TestRun) Cancel(ctx context.Context, id uint, actor, reason string) (*models.TestRun, error) {
	if reason == "" {
		reason = fmt.Sprintf("cancelled by %s", actor)
	}
	ref := engine.Ref{Kind: models.JobKindTestRun, ID: id}
	if err := s.registry.RequestCancel(ctx, ref, reason); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// TestRunSpec builds the runner specification of a test run
func TestRunSpec(run *models.TestRun, suite *models.TestSuite) engine.RunSpec {
	spec := engine.RunSpec{
		Ref:           engine.RefOf(run),
		Environment:   run.Environment,
		Branch:        run.Branch,
		Configuration: run.ConfigurationCopy(),
	}
	if suite != nil {
		spec.Commands = append([]string(nil), suite.Commands...)
	}
	return spec
}
