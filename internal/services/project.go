// Package services implements the operations exposed by the API on top of the
// repositories and the job engine.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/celestiaorg/shipyard/internal/db"
	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/internal/db/repos"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// ErrProjectExists is returned when a project name is already taken
var ErrProjectExists = errors.New("project already exists")

// Project handles project-related operations
type Project struct {
	repo *repos.ProjectRepository
}

// NewProjectService creates a new instance of ProjectService
func NewProjectService(repo *repos.ProjectRepository) *Project {
	return &Project{
		repo: repo,
	}
}

// Create creates a new project
func (s *Project) Create(ctx context.Context, req types.CreateProjectRequest) (*models.Project, error) {
	if _, err := s.repo.GetByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, req.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check project name: %w", err)
	}

	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		WebhookURL:  req.WebhookURL,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		if db.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectExists, req.Name)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

// Get retrieves a project by ID
func (s *Project) Get(ctx context.Context, id uint) (*models.Project, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves all projects with pagination
func (s *Project) List(ctx context.Context, opts *models.ListOptions) ([]models.Project, error) {
	return s.repo.List(ctx, opts)
}

// Update changes the description and webhook URL of a project
func (s *Project) Update(ctx context.Context, id uint, req types.UpdateProjectRequest) (*models.Project, error) {
	project, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	project.Description = req.Description
	project.WebhookURL = req.WebhookURL
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return project, nil
}

// Delete deletes a project by ID
func (s *Project) Delete(ctx context.Context, id uint) error {
	return s.repo.Delete(ctx, id)
}
