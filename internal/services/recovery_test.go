package services

import (
	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

func (s *ServiceTestSuite) TestRecoveryReconcilesLeftoverJobs() {
	p := s.createProject()
	ts := s.createSuite(p.ID)

	running := &models.TestRun{
		JobRecord:   models.JobRecord{Status: models.JobStatusRunning},
		ProjectID:   p.ID,
		TestSuiteID: ts.ID,
		TriggeredBy: "alice",
		Environment: "staging",
	}
	s.Require().NoError(s.runRepo.Create(s.ctx, running))

	pendingRun := &models.TestRun{
		ProjectID:   p.ID,
		TestSuiteID: ts.ID,
		TriggeredBy: "alice",
		Environment: "staging",
	}
	s.Require().NoError(s.runRepo.Create(s.ctx, pendingRun))

	orphan := &models.TestRun{
		ProjectID:   p.ID,
		TestSuiteID: 4242,
		TriggeredBy: "alice",
		Environment: "staging",
	}
	s.Require().NoError(s.runRepo.Create(s.ctx, orphan))

	inProgress := s.storeDeployment(p.ID, "v1", models.JobStatusInProgress, nil)
	pendingDeploy := s.storeDeployment(p.ID, "v2", models.JobStatusPending, nil)
	done := s.storeDeployment(p.ID, "v0", models.JobStatusDeployed, at(0))

	report, err := NewRecovery(s.runRepo, s.deployRepo, s.suiteRepo, s.machine, s.dispatcher).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(RecoveryReport{Failed: 2, Cancelled: 1, Redispatched: 2}, report)
	s.drain()

	got, err := s.runRepo.GetByID(s.ctx, running.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusFailed, got.Status)
	s.Equal(InterruptedError, got.Error)
	s.NotNil(got.FinishedAt)

	got, err = s.runRepo.GetByID(s.ctx, pendingRun.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusPassed, got.Status)

	got, err = s.runRepo.GetByID(s.ctx, orphan.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelled, got.Status)
	s.Contains(got.Error, "test suite 4242 unavailable")

	d, err := s.deployRepo.Get(s.ctx, inProgress.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusFailed, d.Status)

	d, err = s.deployRepo.Get(s.ctx, pendingDeploy.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusDeployed, d.Status)

	var redeployed *engine.RunSpec
	for _, spec := range s.runner.ran() {
		if spec.Ref.Kind == models.JobKindDeployment && spec.Ref.ID == pendingDeploy.ID {
			spec := spec
			redeployed = &spec
		}
	}
	s.Require().NotNil(redeployed)
	s.Equal(float64(2), redeployed.Configuration["replicas"])

	d, err = s.deployRepo.Get(s.ctx, done.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusDeployed, d.Status)
	s.Equal(at(0).Unix(), d.DeployedAt.Unix())
}

func (s *ServiceTestSuite) TestRecoveryWithNothingToDo() {
	report, err := NewRecovery(s.runRepo, s.deployRepo, s.suiteRepo, s.machine, s.dispatcher).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal(RecoveryReport{}, report)
	s.drain()
	s.Empty(s.runner.ran())
}
