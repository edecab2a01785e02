package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

const deploymentResource = "deployment"

// DeploymentRepository handles database operations for deployments
type DeploymentRepository struct {
	db *gorm.DB
}

var (
	_ engine.Store           = (*DeploymentRepository)(nil)
	_ engine.DeploymentStore = (*DeploymentRepository)(nil)
)

// NewDeploymentRepository creates a new instance of DeploymentRepository
func NewDeploymentRepository(db *gorm.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// Create creates a new deployment in the database
func (r *DeploymentRepository) Create(ctx context.Context, deployment *models.Deployment) error {
	return r.db.WithContext(ctx).Create(deployment).Error
}

// Insert implements engine.Store
func (r *DeploymentRepository) Insert(ctx context.Context, job models.Job) error {
	deployment, ok := job.(*models.Deployment)
	if !ok {
		return fmt.Errorf("expected *models.Deployment, got %T", job)
	}
	return r.Create(ctx, deployment)
}

// Get retrieves a deployment by ID
func (r *DeploymentRepository) Get(ctx context.Context, id uint) (*models.Deployment, error) {
	var deployment models.Deployment
	if err := r.db.WithContext(ctx).First(&deployment, id).Error; err != nil {
		return nil, notFound(deploymentResource, id, err)
	}
	return &deployment, nil
}

// LoadStatus implements engine.Store
func (r *DeploymentRepository) LoadStatus(ctx context.Context, id uint) (models.JobStatus, error) {
	return loadStatus[models.Deployment](ctx, r.db, deploymentResource, id)
}

// CompareAndSwap implements engine.Store
func (r *DeploymentRepository) CompareAndSwap(ctx context.Context, id uint, from, to models.JobStatus, patch engine.Patch) (bool, error) {
	return compareAndSwap[models.Deployment](ctx, r.db, id, from, to, patch)
}

// AppendLogs implements engine.Store
func (r *DeploymentRepository) AppendLogs(ctx context.Context, id uint, text string) error {
	return appendLogs[models.Deployment](ctx, r.db, deploymentResource, id, text)
}

// FindPredecessor returns the latest DEPLOYED deployment of the target's project
// and environment that was deployed before the target, or nil if there is none.
func (r *DeploymentRepository) FindPredecessor(ctx context.Context, target *models.Deployment) (*models.Deployment, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ? AND environment = ?", target.ProjectID, target.Environment).
		Where(models.JobStatusField+" = ?", models.JobStatusDeployed).
		Where("id <> ?", target.ID)
	if target.DeployedAt != nil {
		query = query.Where(models.DeploymentDeployedAtField+" < ?", *target.DeployedAt)
	} else {
		query = query.Where("id < ?", target.ID)
	}

	var previous models.Deployment
	err := query.
		Order(models.DeploymentDeployedAtField + " DESC").
		Order("id DESC").
		First(&previous).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &previous, nil
}

// CreateRollback inserts rollback and moves target from DEPLOYED to ROLLED_BACK
// in one transaction. Nothing is written if target is no longer DEPLOYED.
func (r *DeploymentRepository) CreateRollback(ctx context.Context, target, rollback *models.Deployment) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rollback).Error; err != nil {
			return fmt.Errorf("failed to create rollback deployment: %w", err)
		}
		res := tx.Model(&models.Deployment{}).
			Where("id = ? AND status = ?", target.ID, models.JobStatusDeployed).
			Updates(map[string]interface{}{
				models.JobStatusField:              models.JobStatusRolledBack,
				models.DeploymentRollbackToIDField: rollback.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark deployment %d rolled back: %w", target.ID, res.Error)
		}
		if res.RowsAffected != 1 {
			return errTargetMoved
		}
		return nil
	})
	if errors.Is(err, errTargetMoved) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List retrieves deployments newest first. A zero projectID or empty environment matches any.
func (r *DeploymentRepository) List(ctx context.Context, projectID uint, environment string, opts *models.ListOptions) ([]models.Deployment, error) {
	var deployments []models.Deployment
	query := r.db.WithContext(ctx).Model(&models.Deployment{})
	if projectID != 0 {
		query = query.Where("project_id = ?", projectID)
	}
	if environment != "" {
		query = query.Where("environment = ?", environment)
	}
	err := listQuery(query, opts).Find(&deployments).Error
	return deployments, err
}

// ListByStatus retrieves every deployment in one of the given statuses, oldest first
func (r *DeploymentRepository) ListByStatus(ctx context.Context, statuses ...models.JobStatus) ([]models.Deployment, error) {
	var deployments []models.Deployment
	err := r.db.WithContext(ctx).
		Where(models.JobStatusField+" IN ?", statuses).
		Order("id ASC").
		Find(&deployments).Error
	return deployments, err
}

// CountByStatus returns the number of deployments in the given status
func (r *DeploymentRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int64, error) {
	return countByStatus[models.Deployment](ctx, r.db, status)
}

// MarkWebhookSent records that the terminal notification was delivered
func (r *DeploymentRepository) MarkWebhookSent(ctx context.Context, id uint) error {
	return markWebhookSent[models.Deployment](ctx, r.db, id)
}
