package services

import (
	"context"
	"fmt"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/db/repos"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// TestSuite handles test suite operations
type TestSuite struct {
	repo     *repos.TestSuiteRepository
	projects *Project
}

// NewTestSuiteService creates a new test suite service
func NewTestSuiteService(repo *repos.TestSuiteRepository, projects *Project) *TestSuite {
	return &TestSuite{
		repo:     repo,
		projects: projects,
	}
}

// Create adds a test suite to an existing project
func (s *TestSuite) Create(ctx context.Context, projectID uint, req types.CreateTestSuiteRequest) (*models.TestSuite, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	suite := &models.TestSuite{
		ProjectID:      projectID,
		Name:           req.Name,
		Commands:       req.Commands,
		Configuration:  req.Configuration,
		TimeoutSeconds: req.TimeoutSeconds,
	}
	if err := s.repo.Create(ctx, suite); err != nil {
		return nil, fmt.Errorf("failed to create test suite: %w", err)
	}
	return suite, nil
}

// Get retrieves a test suite by ID
func (s *TestSuite) Get(ctx context.Context, id uint) (*models.TestSuite, error) {
	return s.repo.Get(ctx, id)
}

// ListByProject retrieves the test suites of a project
func (s *TestSuite) ListByProject(ctx context.Context, projectID uint, opts *models.ListOptions) ([]models.TestSuite, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID, opts)
}

// Delete deletes a test suite by ID
func (s *TestSuite) Delete(ctx context.Context, id uint) error {
	return s.repo.Delete(ctx, id)
}
