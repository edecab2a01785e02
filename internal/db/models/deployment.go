package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Deployment field names
const (
	// DeploymentDeployedAtField is the database field name for the deployment time
	DeploymentDeployedAtField = "deployed_at"
	// DeploymentRollbackToIDField is the database field name for the superseding deployment
	DeploymentRollbackToIDField = "rollback_to_id"
)

// Deployment is one rollout of a version to a project environment.
//
// RollbackFromID is set on a deployment created as a rollback and points to the
// deployment it reverts. RollbackToID is set on a deployment that was rolled back
// and points to the deployment that superseded it.
type Deployment struct {
	gorm.Model
	JobRecord
	ProjectID      uint       `json:"project_id" gorm:"not null;index:idx_deployment_target"`
	Environment    string     `json:"environment" gorm:"not null;index:idx_deployment_target"`
	Version        string     `json:"version" gorm:"not null"`
	Branch         string     `json:"branch"`
	CommitHash     string     `json:"commit_hash"`
	DeployedBy     string     `json:"deployed_by" gorm:"not null"`
	DeployedAt     *time.Time `json:"deployed_at,omitempty" gorm:"index"`
	RollbackFromID *uint      `json:"rollback_from_id,omitempty" gorm:"index"`
	RollbackToID   *uint      `json:"rollback_to_id,omitempty" gorm:"index"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
}

var _ Job = (*Deployment)(nil)

// JobKind implements Job
func (d *Deployment) JobKind() JobKind { return JobKindDeployment }

// JobID implements Job
func (d *Deployment) JobID() uint { return d.ID }

// Record implements Job
func (d *Deployment) Record() *JobRecord { return &d.JobRecord }

// IsRollback reports whether the deployment was created by a rollback
func (d *Deployment) IsRollback() bool {
	return d.RollbackFromID != nil
}

// Validate ensures that the deployment data is valid
func (d *Deployment) Validate() error {
	if d.ProjectID == 0 {
		return fmt.Errorf("deployment project_id cannot be empty")
	}
	if d.Environment == "" {
		return fmt.Errorf("deployment environment cannot be empty")
	}
	if d.Version == "" {
		return fmt.Errorf("deployment version cannot be empty")
	}
	if d.DeployedBy == "" {
		return fmt.Errorf("deployment deployed_by cannot be empty")
	}
	if d.RollbackFromID != nil && d.RollbackToID != nil {
		return fmt.Errorf("deployment cannot have both rollback_from_id and rollback_to_id")
	}
	if d.ID != 0 && ((d.RollbackFromID != nil && *d.RollbackFromID == d.ID) ||
		(d.RollbackToID != nil && *d.RollbackToID == d.ID)) {
		return fmt.Errorf("deployment cannot roll back to itself")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new deployment
func (d *Deployment) BeforeCreate(_ *gorm.DB) error {
	if d.Status == "" {
		d.Status = JobStatusPending
	}
	return d.Validate()
}
