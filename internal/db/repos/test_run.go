package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/engine"
)

const testRunResource = "test run"

// TestRunRepository handles database operations for test runs
type TestRunRepository struct {
	db *gorm.DB
}

var _ engine.Store = (*TestRunRepository)(nil)

// NewTestRunRepository creates a new instance of TestRunRepository
func NewTestRunRepository(db *gorm.DB) *TestRunRepository {
	return &TestRunRepository{db: db}
}

// Create creates a new test run in the database
func (r *TestRunRepository) Create(ctx context.Context, run *models.TestRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Insert implements engine.Store
func (r *TestRunRepository) Insert(ctx context.Context, job models.Job) error {
	run, ok := job.(*models.TestRun)
	if !ok {
		return fmt.Errorf("expected *models.TestRun, got %T", job)
	}
	return r.Create(ctx, run)
}

// GetByID retrieves a test run by ID
func (r *TestRunRepository) GetByID(ctx context.Context, id uint) (*models.TestRun, error) {
	var run models.TestRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, notFound(testRunResource, id, err)
	}
	return &run, nil
}

// LoadStatus implements engine.Store
func (r *TestRunRepository) LoadStatus(ctx context.Context, id uint) (models.JobStatus, error) {
	return loadStatus[models.TestRun](ctx, r.db, testRunResource, id)
}

// CompareAndSwap implements engine.Store
func (r *TestRunRepository) CompareAndSwap(ctx context.Context, id uint, from, to models.JobStatus, patch engine.Patch) (bool, error) {
	return compareAndSwap[models.TestRun](ctx, r.db, id, from, to, patch)
}

// AppendLogs implements engine.Store
func (r *TestRunRepository) AppendLogs(ctx context.Context, id uint, text string) error {
	return appendLogs[models.TestRun](ctx, r.db, testRunResource, id, text)
}

// List retrieves test runs newest first. A zero projectID or suiteID matches any.
func (r *TestRunRepository) List(ctx context.Context, projectID, suiteID uint, opts *models.ListOptions) ([]models.TestRun, error) {
	var runs []models.TestRun
	query := r.db.WithContext(ctx).Model(&models.TestRun{})
	if projectID != 0 {
		query = query.Where("project_id = ?", projectID)
	}
	if suiteID != 0 {
		query = query.Where("test_suite_id = ?", suiteID)
	}
	err := listQuery(query, opts).Find(&runs).Error
	return runs, err
}

// ListByStatus retrieves every test run in one of the given statuses, oldest first
func (r *TestRunRepository) ListByStatus(ctx context.Context, statuses ...models.JobStatus) ([]models.TestRun, error) {
	var runs []models.TestRun
	err := r.db.WithContext(ctx).
		Where(models.JobStatusField+" IN ?", statuses).
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}

// CountByStatus returns the number of test runs in the given status
func (r *TestRunRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int64, error) {
	return countByStatus[models.TestRun](ctx, r.db, status)
}

// MarkWebhookSent records that the terminal notification was delivered
func (r *TestRunRepository) MarkWebhookSent(ctx context.Context, id uint) error {
	return markWebhookSent[models.TestRun](ctx, r.db, id)
}
