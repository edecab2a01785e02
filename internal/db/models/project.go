package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project groups test suites and deployments
type Project struct {
	gorm.Model
	Name        string    `json:"name" gorm:"not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	WebhookURL  string    `json:"webhook_url,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// Validate ensures that the project data is valid
func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new project
func (p *Project) BeforeCreate(_ *gorm.DB) error {
	return p.Validate()
}

// TestSuite describes a set of test commands that can be executed as test runs
type TestSuite struct {
	gorm.Model
	ProjectID      uint                        `json:"project_id" gorm:"not null;index"`
	Name           string                      `json:"name" gorm:"not null;index"`
	Commands       datatypes.JSONSlice[string] `json:"commands" gorm:"type:json"`
	Configuration  datatypes.JSONMap           `json:"configuration,omitempty" gorm:"type:json"`
	TimeoutSeconds int                         `json:"timeout_seconds"`
	CreatedAt      time.Time                   `json:"created_at" gorm:"index"`
}

// Timeout returns the suite's execution deadline, zero when unset
func (s *TestSuite) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Validate ensures that the test suite data is valid
func (s *TestSuite) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("test suite name cannot be empty")
	}
	if s.ProjectID == 0 {
		return fmt.Errorf("test suite project_id cannot be empty")
	}
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("test suite timeout_seconds cannot be negative")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new test suite
func (s *TestSuite) BeforeCreate(_ *gorm.DB) error {
	return s.Validate()
}
