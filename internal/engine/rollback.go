package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/logger"
)

// RollbackReasonKey is the configuration key annotating a rollback deployment
const RollbackReasonKey = "rollbackReason"

// Rollback outcomes reported to the metrics sink
const (
	RollbackOutcomeCreated  = "created"
	RollbackOutcomeRejected = "rejected"
	RollbackOutcomeError    = "error"
)

// DeploymentStore is the deployment record access the resolver needs
type DeploymentStore interface {
	// Get returns the deployment or a *NotFoundError.
	Get(ctx context.Context, id uint) (*models.Deployment, error)
	// FindPredecessor returns the most recently deployed DEPLOYED deployment of
	// the target's project and environment deployed strictly before it, or nil.
	FindPredecessor(ctx context.Context, target *models.Deployment) (*models.Deployment, error)
	// CreateRollback inserts rollback and, in the same transaction, moves target
	// from DEPLOYED to ROLLED_BACK pointing at it. It returns false without
	// writing anything if target is no longer DEPLOYED.
	CreateRollback(ctx context.Context, target, rollback *models.Deployment) (bool, error)
}

// RollbackResolver reverts a deployment to the previous known-good deployment
// of the same project and environment.
type RollbackResolver struct {
	store      DeploymentStore
	machine    *StateMachine
	dispatcher *Dispatcher
	locks      *keyedMutex
	metrics    MetricsSink
}

// NewRollbackResolver creates a rollback resolver
func NewRollbackResolver(store DeploymentStore, machine *StateMachine, dispatcher *Dispatcher) *RollbackResolver {
	return &RollbackResolver{
		store:      store,
		machine:    machine,
		dispatcher: dispatcher,
		locks:      newKeyedMutex(),
		metrics:    nopMetrics{},
	}
}

// WithMetrics attaches a metrics sink to the resolver
func (r *RollbackResolver) WithMetrics(sink MetricsSink) *RollbackResolver {
	if sink != nil {
		r.metrics = sink
	}
	return r
}

// Rollback creates and dispatches a deployment that reverts deploymentID to its
// predecessor, marking deploymentID ROLLED_BACK. Requests for the same project
// and environment are serialized.
func (r *RollbackResolver) Rollback(ctx context.Context, deploymentID uint, reason, actor string) (*models.Deployment, error) {
	rollback, err := r.rollback(ctx, deploymentID, reason, actor)
	switch {
	case err == nil:
		r.metrics.RollbackResolved(RollbackOutcomeCreated)
	case isValidation(err), isNotFound(err):
		r.metrics.RollbackResolved(RollbackOutcomeRejected)
	default:
		r.metrics.RollbackResolved(RollbackOutcomeError)
	}
	return rollback, err
}

func (r *RollbackResolver) rollback(ctx context.Context, deploymentID uint, reason, actor string) (*models.Deployment, error) {
	target, err := r.store.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if err := checkRollbackTarget(target); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(fmt.Sprintf("%d/%s", target.ProjectID, target.Environment))
	defer unlock()

	// The target may have been rolled back while this request waited.
	target, err = r.store.Get(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if err := checkRollbackTarget(target); err != nil {
		return nil, err
	}

	previous, err := r.store.FindPredecessor(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to look up previous deployment: %w", err)
	}
	if previous == nil {
		return nil, Validationf("No previous deployment found to rollback to")
	}

	configuration := previous.ConfigurationCopy()
	configuration[RollbackReasonKey] = reason

	targetID := target.ID
	rollback := &models.Deployment{
		JobRecord: models.JobRecord{
			Status:        models.JobStatusPending,
			Configuration: configuration,
		},
		ProjectID:      target.ProjectID,
		Environment:    target.Environment,
		Version:        previous.Version,
		Branch:         previous.Branch,
		CommitHash:     previous.CommitHash,
		DeployedBy:     actor,
		RollbackFromID: &targetID,
	}

	_, err = r.machine.ApplyFunc(ctx, RefOf(target), EventRollBack,
		func(ctx context.Context, _, _ models.JobStatus, _ time.Time) (bool, error) {
			rollback.ID = 0
			return r.store.CreateRollback(ctx, target, rollback)
		})
	if err != nil {
		var illegal *IllegalTransitionError
		if errors.As(err, &illegal) {
			return nil, illegal.AsValidation()
		}
		return nil, fmt.Errorf("failed to create rollback deployment: %w", err)
	}

	rolledBackID := rollback.ID
	target.Status = models.JobStatusRolledBack
	target.RollbackToID = &rolledBackID

	logger.InfoWithFields("deployment rolled back", map[string]interface{}{
		"deployment_id":    target.ID,
		"rollback_id":      rollback.ID,
		"restored_id":      previous.ID,
		"project_id":       target.ProjectID,
		"environment":      target.Environment,
		"restored_version": previous.Version,
	})

	h, err := r.dispatcher.Dispatch(ctx, Request{Job: rollback, Spec: DeploymentSpec(rollback)})
	if err != nil {
		// The record stays PENDING and is picked up by startup recovery.
		logger.ErrorWithFields("failed to dispatch rollback deployment", map[string]interface{}{
			"rollback_id": rollback.ID,
			"error":       err.Error(),
		})
		return rollback, nil
	}
	rollback.ExecutionID = h.ExecutionID
	return rollback, nil
}

// checkRollbackTarget validates the rollback event against the state machine
func checkRollbackTarget(target *models.Deployment) error {
	if _, err := Next(models.JobKindDeployment, target.Status, EventRollBack); err != nil {
		var illegal *IllegalTransitionError
		if errors.As(err, &illegal) {
			illegal.Ref = RefOf(target)
			return illegal.AsValidation()
		}
		return err
	}
	if target.IsRollback() {
		return Validationf("Cannot rollback deployment %d: it was created as a rollback of deployment %d",
			target.ID, *target.RollbackFromID)
	}
	return nil
}

// DeploymentSpec builds the runner specification of a deployment
func DeploymentSpec(d *models.Deployment) RunSpec {
	return RunSpec{
		Ref:           RefOf(d),
		Environment:   d.Environment,
		Branch:        d.Branch,
		CommitHash:    d.CommitHash,
		Version:       d.Version,
		Configuration: d.ConfigurationCopy(),
	}
}

func isNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
