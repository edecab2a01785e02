package services

import (
	"context"
	"errors"
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/runner"
	"github.com/celestiaorg/shipyard/pkg/types"
)

func (s *ServiceTestSuite) TestProjectCreateRejectsDuplicateName() {
	_, err := s.projects.Create(s.ctx, types.CreateProjectRequest{Name: "payments"})
	s.Require().NoError(err)

	_, err = s.projects.Create(s.ctx, types.CreateProjectRequest{Name: "payments"})
	s.True(errors.Is(err, ErrProjectExists))
}

func (s *ServiceTestSuite) TestProjectUpdateAndDelete() {
	p := s.createProject()

	updated, err := s.projects.Update(s.ctx, p.ID, types.UpdateProjectRequest{
		Description: "billing",
		WebhookURL:  "https://hooks.example.com",
	})
	s.Require().NoError(err)
	s.Equal("billing", updated.Description)

	s.Require().NoError(s.projects.Delete(s.ctx, p.ID))
	_, err = s.projects.Get(s.ctx, p.ID)
	var notFound *engine.NotFoundError
	s.True(errors.As(err, &notFound))
}

func (s *ServiceTestSuite) TestSuiteCreateRequiresProject() {
	_, err := s.suites.Create(s.ctx, 999, types.CreateTestSuiteRequest{Name: "unit", Commands: []string{"make"}})
	var notFound *engine.NotFoundError
	s.Require().True(errors.As(err, &notFound))
	s.Equal("project", notFound.Resource)
}

func (s *ServiceTestSuite) TestCreateTestRunDispatchesSuite() {
	p := s.createProject()
	ts := s.createSuite(p.ID)

	run, err := s.testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{
		ProjectID:     p.ID,
		TestSuiteID:   ts.ID,
		Environment:   "staging",
		Branch:        "feature/login",
		Configuration: map[string]interface{}{"race": false},
	})
	s.Require().NoError(err)
	s.NotZero(run.ID)
	s.Equal(models.JobStatusPending, run.Status)
	s.Equal("alice", run.TriggeredBy)
	s.NotEmpty(run.ExecutionID)

	s.drain()

	stored, err := s.testRuns.Get(s.ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusPassed, stored.Status)
	s.Equal(3, stored.TotalTests)
	s.NotNil(stored.FinishedAt)

	specs := s.runner.ran()
	s.Require().Len(specs, 1)
	s.Equal([]string{"go test ./...", "go vet ./..."}, specs[0].Commands)
	s.Equal("feature/login", specs[0].Branch)
	s.Equal(false, specs[0].Configuration["race"])
	s.Equal(float64(4), specs[0].Configuration["parallel"])
}

func (s *ServiceTestSuite) TestSuiteConfigurationMatchesRequestConfiguration() {
	registry := engine.NewRegistry(s.machine)
	dispatcher := engine.NewDispatcher(s.machine, registry, runner.NewDryRun(0))
	testRuns := NewTestRunService(s.runRepo, s.projects, s.suites, dispatcher, registry)

	p := s.createProject()
	cfg := map[string]interface{}{runner.ConfigTotalTests: float64(4), runner.ConfigFailedTests: float64(1)}
	configured, err := s.suites.Create(s.ctx, p.ID, types.CreateTestSuiteRequest{
		Name: "configured", Commands: []string{"go test ./..."}, Configuration: cfg,
	})
	s.Require().NoError(err)
	plain, err := s.suites.Create(s.ctx, p.ID, types.CreateTestSuiteRequest{
		Name: "plain", Commands: []string{"go test ./..."},
	})
	s.Require().NoError(err)

	fromSuite, err := testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{
		ProjectID: p.ID, TestSuiteID: configured.ID, Environment: "staging",
	})
	s.Require().NoError(err)
	fromRequest, err := testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{
		ProjectID: p.ID, TestSuiteID: plain.ID, Environment: "staging", Configuration: cfg,
	})
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(dispatcher.Wait(ctx))

	for _, id := range []uint{fromSuite.ID, fromRequest.ID} {
		stored, err := s.testRuns.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(models.JobStatusFailed, stored.Status)
		s.Equal(4, stored.TotalTests)
		s.Equal(1, stored.FailedTests)
		s.Equal("1 of 4 tests failed", stored.Error)
	}
}

func (s *ServiceTestSuite) TestCreateTestRunUnknownReferences() {
	p := s.createProject()
	other := s.createProject()
	ts := s.createSuite(other.ID)

	_, err := s.testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{ProjectID: 404, TestSuiteID: ts.ID, Environment: "staging"})
	var notFound *engine.NotFoundError
	s.True(errors.As(err, &notFound))

	_, err = s.testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{ProjectID: p.ID, TestSuiteID: 404, Environment: "staging"})
	s.True(errors.As(err, &notFound))

	_, err = s.testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{ProjectID: p.ID, TestSuiteID: ts.ID, Environment: "staging"})
	var validation *engine.ValidationError
	s.Require().True(errors.As(err, &validation))
	s.Contains(validation.Error(), "does not belong to project")

	runs, err := s.testRuns.List(s.ctx, 0, 0, nil)
	s.Require().NoError(err)
	s.Empty(runs)
}

func (s *ServiceTestSuite) TestCancelRunningTestRun() {
	s.gate()
	p := s.createProject()
	ts := s.createSuite(p.ID)

	run, err := s.testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{ProjectID: p.ID, TestSuiteID: ts.ID, Environment: "staging"})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		stored, err := s.testRuns.Get(s.ctx, run.ID)
		return err == nil && stored.Status == models.JobStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancelled, err := s.testRuns.Cancel(s.ctx, run.ID, "bob", "")
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelled, cancelled.Status)
	s.Equal("cancelled by bob", cancelled.Error)
	s.NotNil(cancelled.FinishedAt)

	s.drain()
	stored, err := s.testRuns.Get(s.ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelled, stored.Status)

	_, err = s.testRuns.Cancel(s.ctx, run.ID, "bob", "again")
	s.EqualError(err, "Cannot cancel test run with status: CANCELLED")
}

func (s *ServiceTestSuite) TestCancelPassedTestRunIsRejected() {
	p := s.createProject()
	ts := s.createSuite(p.ID)
	run, err := s.testRuns.Create(s.ctx, "alice", types.CreateTestRunRequest{ProjectID: p.ID, TestSuiteID: ts.ID, Environment: "staging"})
	s.Require().NoError(err)
	s.drain()

	for i := 0; i < 2; i++ {
		_, err = s.testRuns.Cancel(s.ctx, run.ID, "bob", "")
		var validation *engine.ValidationError
		s.Require().True(errors.As(err, &validation))
		s.Equal("Cannot cancel test run with status: PASSED", validation.Error())
	}
}

func (s *ServiceTestSuite) TestDeploymentLifecycleAndRollback() {
	p := s.createProject()

	first, err := s.deployments.Create(s.ctx, "alice", types.CreateDeploymentRequest{
		ProjectID: p.ID, Environment: "production", Version: "v1.0.0", CommitHash: "aaa",
		Configuration: map[string]interface{}{"replicas": float64(3)},
	})
	s.Require().NoError(err)
	s.drain()

	second, err := s.deployments.Create(s.ctx, "alice", types.CreateDeploymentRequest{
		ProjectID: p.ID, Environment: "production", Version: "v1.1.0", CommitHash: "bbb",
	})
	s.Require().NoError(err)
	s.drain()

	stored, err := s.deployments.Get(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.JobStatusDeployed, stored.Status)
	s.Require().NotNil(stored.DeployedAt)

	rollback, err := s.deployments.Rollback(s.ctx, second.ID, "carol", "error rate spiked")
	s.Require().NoError(err)
	s.Equal("v1.0.0", rollback.Version)
	s.Equal("aaa", rollback.CommitHash)
	s.Equal("carol", rollback.DeployedBy)
	s.Require().NotNil(rollback.RollbackFromID)
	s.Equal(second.ID, *rollback.RollbackFromID)
	s.Equal("error rate spiked", rollback.Configuration[engine.RollbackReasonKey])
	s.Equal(float64(3), rollback.Configuration["replicas"])
	s.drain()

	rolledBack, err := s.deployments.Get(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusRolledBack, rolledBack.Status)
	s.Require().NotNil(rolledBack.RollbackToID)
	s.Equal(rollback.ID, *rolledBack.RollbackToID)

	restored, err := s.deployments.Get(s.ctx, rollback.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusDeployed, restored.Status)

	original, err := s.deployments.Get(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusDeployed, original.Status)
	s.Nil(original.RollbackToID)

	list, err := s.deployments.List(s.ctx, p.ID, "production", nil)
	s.Require().NoError(err)
	s.Len(list, 3)
}

func (s *ServiceTestSuite) TestRollbackRejections() {
	p := s.createProject()
	pending := s.storeDeployment(p.ID, "v2", models.JobStatusPending, nil)
	only := s.storeDeployment(p.ID, "v1", models.JobStatusDeployed, at(0))

	_, err := s.deployments.Rollback(s.ctx, pending.ID, "carol", "bad")
	s.EqualError(err, "Cannot rollback deployment with status: PENDING")

	_, err = s.deployments.Rollback(s.ctx, only.ID, "carol", "bad")
	s.EqualError(err, "No previous deployment found to rollback to")

	_, err = s.deployments.Rollback(s.ctx, 9999, "carol", "bad")
	var notFound *engine.NotFoundError
	s.True(errors.As(err, &notFound))
}

func (s *ServiceTestSuite) TestCancelPendingDeployment() {
	p := s.createProject()
	d := s.storeDeployment(p.ID, "v3", models.JobStatusPending, nil)

	cancelled, err := s.deployments.Cancel(s.ctx, d.ID, "dana", "wrong version")
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelled, cancelled.Status)
	s.Equal("wrong version", cancelled.Error)
}

func (s *ServiceTestSuite) TestCreateDeploymentUnknownProject() {
	_, err := s.deployments.Create(s.ctx, "alice", types.CreateDeploymentRequest{ProjectID: 77, Environment: "production", Version: "v1"})
	var notFound *engine.NotFoundError
	s.True(errors.As(err, &notFound))
}
