package types

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Name validation constants
const (
	maxNameLength        = 100
	maxEnvironmentLength = 63
	maxReasonLength      = 1000
	environmentRegex     = "^[a-z0-9][a-z0-9-]*$"
)

var environmentPattern = regexp.MustCompile(environmentRegex)

// CreateProjectRequest is the body of a project creation request
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	WebhookURL  string `json:"webhook_url,omitempty"`
}

// Validate validates the project creation request
func (r *CreateProjectRequest) Validate() error {
	if err := validateName("project", r.Name); err != nil {
		return err
	}
	if r.WebhookURL != "" {
		return validateWebhookURL(r.WebhookURL)
	}
	return nil
}

// UpdateProjectRequest is the body of a project update request
type UpdateProjectRequest struct {
	Description string `json:"description"`
	WebhookURL  string `json:"webhook_url"`
}

// Validate validates the project update request
func (r *UpdateProjectRequest) Validate() error {
	if r.WebhookURL != "" {
		return validateWebhookURL(r.WebhookURL)
	}
	return nil
}

// CreateTestSuiteRequest is the body of a test suite creation request
type CreateTestSuiteRequest struct {
	Name           string                 `json:"name"`
	Commands       []string               `json:"commands"`
	Configuration  map[string]interface{} `json:"configuration,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

// Validate validates the test suite creation request
func (r *CreateTestSuiteRequest) Validate() error {
	if err := validateName("test suite", r.Name); err != nil {
		return err
	}
	if len(r.Commands) == 0 {
		return fmt.Errorf("test suite must define at least one command")
	}
	for i, cmd := range r.Commands {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("test suite command %d cannot be empty", i)
		}
	}
	if r.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative")
	}
	return nil
}

// CreateTestRunRequest is the body of a test run request
type CreateTestRunRequest struct {
	ProjectID     uint                   `json:"project_id"`
	TestSuiteID   uint                   `json:"test_suite_id"`
	Environment   string                 `json:"environment"`
	Branch        string                 `json:"branch,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// Validate validates the test run request
func (r *CreateTestRunRequest) Validate() error {
	if r.ProjectID == 0 {
		return fmt.Errorf("project_id is required")
	}
	if r.TestSuiteID == 0 {
		return fmt.Errorf("test_suite_id is required")
	}
	return validateEnvironment(r.Environment)
}

// CreateDeploymentRequest is the body of a deployment request
type CreateDeploymentRequest struct {
	ProjectID     uint                   `json:"project_id"`
	Environment   string                 `json:"environment"`
	Version       string                 `json:"version"`
	Branch        string                 `json:"branch,omitempty"`
	CommitHash    string                 `json:"commit_hash,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// Validate validates the deployment request
func (r *CreateDeploymentRequest) Validate() error {
	if r.ProjectID == 0 {
		return fmt.Errorf("project_id is required")
	}
	if err := validateEnvironment(r.Environment); err != nil {
		return err
	}
	if strings.TrimSpace(r.Version) == "" {
		return fmt.Errorf("version is required")
	}
	return nil
}

// CancelRequest is the optional body of a cancellation request
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Validate validates the cancellation request
func (r *CancelRequest) Validate() error {
	return validateReason(r.Reason)
}

// RollbackRequest is the body of a rollback request
type RollbackRequest struct {
	Reason string `json:"reason"`
}

// Validate validates the rollback request
func (r *RollbackRequest) Validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("rollback reason is required")
	}
	return validateReason(r.Reason)
}

func validateName(resource, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s name is required", resource)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%s name must be less than or equal to %d characters", resource, maxNameLength)
	}
	return nil
}

// validateEnvironment checks the environment is a lowercase slug such as "production"
func validateEnvironment(env string) error {
	if env == "" {
		return fmt.Errorf("environment is required")
	}
	if len(env) > maxEnvironmentLength {
		return fmt.Errorf("environment must be less than or equal to %d characters", maxEnvironmentLength)
	}
	if !environmentPattern.MatchString(env) {
		return fmt.Errorf("invalid environment %q: must contain only lowercase letters, numbers, and hyphens", env)
	}
	return nil
}

func validateReason(reason string) error {
	if len(reason) > maxReasonLength {
		return fmt.Errorf("reason must be less than or equal to %d characters", maxReasonLength)
	}
	return nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook_url: scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("invalid webhook_url: host is required")
	}
	return nil
}
