package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

const testSuiteResource = "test suite"

// TestSuiteRepository handles database operations for test suites
type TestSuiteRepository struct {
	db *gorm.DB
}

// NewTestSuiteRepository creates a new instance of TestSuiteRepository
func NewTestSuiteRepository(db *gorm.DB) *TestSuiteRepository {
	return &TestSuiteRepository{db: db}
}

// Create creates a new test suite in the database
func (r *TestSuiteRepository) Create(ctx context.Context, suite *models.TestSuite) error {
	return r.db.WithContext(ctx).Create(suite).Error
}

// Get retrieves a test suite by ID
func (r *TestSuiteRepository) Get(ctx context.Context, id uint) (*models.TestSuite, error) {
	var suite models.TestSuite
	if err := r.db.WithContext(ctx).First(&suite, id).Error; err != nil {
		return nil, notFound(testSuiteResource, id, err)
	}
	return &suite, nil
}

// ListByProject retrieves the test suites of a project with pagination
func (r *TestSuiteRepository) ListByProject(ctx context.Context, projectID uint, opts *models.ListOptions) ([]models.TestSuite, error) {
	var suites []models.TestSuite
	limit, offset := opts.Page()
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&suites).Error
	return suites, err
}

// Delete soft deletes a test suite by ID
func (r *TestSuiteRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.TestSuite{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(testSuiteResource, id, gorm.ErrRecordNotFound)
	}
	return nil
}
