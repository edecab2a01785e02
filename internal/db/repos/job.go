package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

// Field names of the lifecycle columns written on every transition
const (
	executionIDField = "execution_id"
	startedAtField   = "started_at"
	errorField       = "error"
	logsField        = "logs"
	webhookSentField = "webhook_sent"
)

// errTargetMoved aborts a transaction whose conditional update matched no row
var errTargetMoved = errors.New("record status changed")

// jobTable is satisfied by every job model stored in its own table
type jobTable interface {
	models.TestRun | models.Deployment
}

// notFound translates gorm's missing record error into the engine's
func notFound(resource string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &engine.NotFoundError{Resource: resource, ID: id, Cause: err}
	}
	return err
}

// appendText concatenates text to a text column in a single statement
func appendText(column, text string) interface{} {
	return gorm.Expr("COALESCE("+column+", '') || ?", text)
}

// jobUpdates builds the column map written together with a status change
func jobUpdates(to models.JobStatus, patch engine.Patch) map[string]interface{} {
	updates := map[string]interface{}{
		models.JobStatusField: to,
	}
	if patch.ExecutionID != "" {
		updates[executionIDField] = patch.ExecutionID
	}
	if patch.StartedAt != nil {
		updates[startedAtField] = *patch.StartedAt
	}
	if patch.FinishedAt != nil {
		updates[models.JobFinishedAtField] = *patch.FinishedAt
	}
	if patch.Error != "" {
		updates[errorField] = patch.Error
	}
	if patch.AppendLogs != "" {
		updates[logsField] = appendText(logsField, patch.AppendLogs)
	}
	for k, v := range patch.Fields {
		updates[k] = v
	}
	return updates
}

func loadStatus[T jobTable](ctx context.Context, db *gorm.DB, resource string, id uint) (models.JobStatus, error) {
	var statuses []models.JobStatus
	err := db.WithContext(ctx).Model(new(T)).
		Where("id = ?", id).
		Limit(1).
		Pluck(models.JobStatusField, &statuses).Error
	if err != nil {
		return "", fmt.Errorf("failed to load %s status: %w", resource, err)
	}
	if len(statuses) == 0 {
		return "", &engine.NotFoundError{Resource: resource, ID: id}
	}
	return statuses[0], nil
}

func compareAndSwap[T jobTable](ctx context.Context, db *gorm.DB, id uint, from, to models.JobStatus, patch engine.Patch) (bool, error) {
	res := db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND status = ?", id, from).
		Updates(jobUpdates(to, patch))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func appendLogs[T jobTable](ctx context.Context, db *gorm.DB, resource string, id uint, text string) error {
	if text == "" {
		return nil
	}
	res := db.WithContext(ctx).Model(new(T)).
		Where("id = ?", id).
		UpdateColumn(logsField, appendText(logsField, text))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &engine.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

func markWebhookSent[T jobTable](ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Model(new(T)).
		Where("id = ?", id).
		UpdateColumn(webhookSentField, true).Error
}

func countByStatus[T jobTable](ctx context.Context, db *gorm.DB, status models.JobStatus) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(new(T)).
		Where(models.JobStatusField+" = ?", status).
		Count(&count).Error
	return count, err
}

// listQuery applies the status filter, newest first ordering and pagination
func listQuery(db *gorm.DB, opts *models.ListOptions) *gorm.DB {
	if opts != nil && opts.Status != nil {
		db = db.Where(models.JobStatusField+" = ?", *opts.Status)
	}
	limit, offset := opts.Page()
	return db.Order(models.JobCreatedAtField + " DESC").Order("id DESC").
		Limit(limit).Offset(offset)
}
