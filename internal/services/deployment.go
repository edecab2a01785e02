package services

import (
	"context"
	"fmt"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/db/repos"
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// Deployment handles deployment operations
type Deployment struct {
	repo       *repos.DeploymentRepository
	projects   *Project
	dispatcher *engine.Dispatcher
	registry   *engine.Registry
	resolver   *engine.RollbackResolver
}

// NewDeploymentService creates a new deployment service
func NewDeploymentService(
	repo *repos.DeploymentRepository,
	projects *Project,
	dispatcher *engine.Dispatcher,
	registry *engine.Registry,
	resolver *engine.RollbackResolver,
) *Deployment {
	return &Deployment{
		repo:       repo,
		projects:   projects,
		dispatcher: dispatcher,
		registry:   registry,
		resolver:   resolver,
	}
}

// Create records a PENDING deployment and dispatches it
func (s *Deployment) Create(ctx context.Context, actor string, req types.CreateDeploymentRequest) (*models.Deployment, error) {
	if _, err := s.projects.Get(ctx, req.ProjectID); err != nil {
		return nil, err
	}

	deployment := &models.Deployment{
		JobRecord:   models.JobRecord{Configuration: req.Configuration},
		ProjectID:   req.ProjectID,
		Environment: req.Environment,
		Version:     req.Version,
		Branch:      req.Branch,
		CommitHash:  req.CommitHash,
		DeployedBy:  actor,
	}

	handle, err := s.dispatcher.Dispatch(ctx, engine.Request{
		Job:  deployment,
		Spec: engine.DeploymentSpec(deployment),
	})
	if err != nil {
		return nil, err
	}
	deployment.ExecutionID = handle.ExecutionID
	return deployment, nil
}

// Get retrieves a deployment by ID
func (s *Deployment) Get(ctx context.Context, id uint) (*models.Deployment, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves deployments newest first, optionally filtered by project and environment
func (s *Deployment) List(ctx context.Context, projectID uint, environment string, opts *models.ListOptions) ([]models.Deployment, error) {
	return s.repo.List(ctx, projectID, environment, opts)
}

// Cancel moves a pending or in progress deployment to CANCELLED and signals its execution
func (s *Deployment) Cancel(ctx context.Context, id uint, actor, reason string) (*models.Deployment, error) {
	if reason == "" {
		reason = fmt.Sprintf("cancelled by %s", actor)
	}
	ref := engine.Ref{Kind: models.JobKindDeployment, ID: id}
	if err := s.registry.RequestCancel(ctx, ref, reason); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Rollback reverts a DEPLOYED deployment to the previous deployment of its
// project and environment. It returns the new rollback deployment.
func (s *Deployment) Rollback(ctx context.Context, id uint, actor, reason string) (*models.Deployment, error) {
	return s.resolver.Rollback(ctx, id, reason, actor)
}
