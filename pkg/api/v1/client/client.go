// Package client provides the API client for interacting with the shipyard API
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/auth"
	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/pkg/api/v1/routes"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Client is the interface for API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (types.HealthResponse, error)

	// Project methods
	CreateProject(ctx context.Context, req types.CreateProjectRequest) (models.Project, error)
	GetProject(ctx context.Context, id uint) (models.Project, error)
	ListProjects(ctx context.Context, opts *models.ListOptions) ([]models.Project, error)
	UpdateProject(ctx context.Context, id uint, req types.UpdateProjectRequest) (models.Project, error)
	DeleteProject(ctx context.Context, id uint) error

	// Test suite methods
	CreateTestSuite(ctx context.Context, projectID uint, req types.CreateTestSuiteRequest) (models.TestSuite, error)
	ListTestSuites(ctx context.Context, projectID uint, opts *models.ListOptions) ([]models.TestSuite, error)

	// Test run methods
	CreateTestRun(ctx context.Context, req types.CreateTestRunRequest) (models.TestRun, error)
	GetTestRun(ctx context.Context, id uint) (models.TestRun, error)
	ListTestRuns(ctx context.Context, projectID uint, opts *models.ListOptions) ([]models.TestRun, error)
	CancelTestRun(ctx context.Context, id uint, reason string) (models.TestRun, error)

	// Deployment methods
	CreateDeployment(ctx context.Context, req types.CreateDeploymentRequest) (models.Deployment, error)
	GetDeployment(ctx context.Context, id uint) (models.Deployment, error)
	ListDeployments(ctx context.Context, projectID uint, environment string, opts *models.ListOptions) ([]models.Deployment, error)
	CancelDeployment(ctx context.Context, id uint, reason string) (models.Deployment, error)
	RollbackDeployment(ctx context.Context, id uint, reason string) (models.Deployment, error)
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration

	// Actor and Role identify the caller to the API guard
	Actor string
	Role  string
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
	actor   string
	role    string
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Validate the base URL
	_, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &APIClient{
		baseURL: opts.BaseURL,
		timeout: timeout,
		actor:   opts.Actor,
		role:    opts.Role,
	}, nil
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	// Resolve the endpoint URL
	fullURL := c.baseURL + endpoint

	// Create a new agent based on the HTTP method
	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodPut:
		agent = fiber.Put(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	// Set common headers
	agent.Set("Content-Type", "application/json")
	agent.Set("Accept", "application/json")
	if c.actor != "" {
		agent.Set(auth.ActorHeader, c.actor)
	}
	if c.role != "" {
		agent.Set(auth.RoleHeader, c.role)
	}

	// Add body if provided
	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and decodes the data of the slug response into v
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	// Execute the request
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	// Check for non-success status codes
	if statusCode < 200 || statusCode >= 300 {
		message := string(body)
		var slug types.SlugResponse
		if err := json.Unmarshal(body, &slug); err == nil && slug.Error != "" {
			message = slug.Error
		}
		return &fiber.Error{
			Code:    statusCode,
			Message: message,
		}
	}

	if v == nil || len(body) == 0 {
		return nil
	}

	var slug struct {
		Slug types.Slug      `json:"slug"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &slug); err != nil {
		return fmt.Errorf("error decoding slug response: %w", err)
	}
	if len(slug.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(slug.Data, v); err != nil {
		return fmt.Errorf("error decoding response data: %w", err)
	}
	return nil
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	return c.doRequest(agent, response)
}

// getQueryParams creates url.Values from ListOptions
func getQueryParams(opts *models.ListOptions) url.Values {
	q := url.Values{}
	if opts == nil {
		return q
	}

	// Pagination params
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	// Filtering params
	if opts.Status != nil {
		q.Set("status", opts.Status.String())
	}
	return q
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// HealthCheck checks the health of the API
func (c *APIClient) HealthCheck(ctx context.Context) (types.HealthResponse, error) {
	agent, err := c.createAgent(ctx, http.MethodGet, routes.HealthCheckURL(), nil)
	if err != nil {
		return types.HealthResponse{}, err
	}

	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return types.HealthResponse{}, fmt.Errorf("error sending request: %w", errs[0])
	}
	if statusCode != fiber.StatusOK {
		return types.HealthResponse{}, &fiber.Error{Code: statusCode, Message: string(body)}
	}

	var response types.HealthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return types.HealthResponse{}, fmt.Errorf("error decoding response: %w", err)
	}
	return response, nil
}

// Project methods implementation

// CreateProject creates a new project
func (c *APIClient) CreateProject(ctx context.Context, req types.CreateProjectRequest) (models.Project, error) {
	var project models.Project
	err := c.executeRequest(ctx, http.MethodPost, routes.CreateProjectURL(), req, &project)
	return project, err
}

// GetProject retrieves a project by id
func (c *APIClient) GetProject(ctx context.Context, id uint) (models.Project, error) {
	var project models.Project
	err := c.executeRequest(ctx, http.MethodGet, routes.GetProjectURL(idString(id)), nil, &project)
	return project, err
}

// ListProjects lists projects
func (c *APIClient) ListProjects(ctx context.Context, opts *models.ListOptions) ([]models.Project, error) {
	var response types.ListResponse[models.Project]
	if err := c.executeRequest(ctx, http.MethodGet, routes.GetProjectsURL(getQueryParams(opts)), nil, &response); err != nil {
		return nil, err
	}
	return values(response.Rows), nil
}

// UpdateProject updates the description and webhook of a project
func (c *APIClient) UpdateProject(ctx context.Context, id uint, req types.UpdateProjectRequest) (models.Project, error) {
	var project models.Project
	err := c.executeRequest(ctx, http.MethodPut, routes.UpdateProjectURL(idString(id)), req, &project)
	return project, err
}

// DeleteProject deletes a project
func (c *APIClient) DeleteProject(ctx context.Context, id uint) error {
	return c.executeRequest(ctx, http.MethodDelete, routes.DeleteProjectURL(idString(id)), nil, nil)
}

// Test suite methods implementation

// CreateTestSuite registers a test suite under a project
func (c *APIClient) CreateTestSuite(ctx context.Context, projectID uint, req types.CreateTestSuiteRequest) (models.TestSuite, error) {
	var suite models.TestSuite
	err := c.executeRequest(ctx, http.MethodPost, routes.CreateTestSuiteURL(idString(projectID)), req, &suite)
	return suite, err
}

// ListTestSuites lists the test suites of a project
func (c *APIClient) ListTestSuites(ctx context.Context, projectID uint, opts *models.ListOptions) ([]models.TestSuite, error) {
	var response types.ListResponse[models.TestSuite]
	endpoint := routes.GetTestSuitesURL(idString(projectID), getQueryParams(opts))
	if err := c.executeRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return values(response.Rows), nil
}

// Test run methods implementation

// CreateTestRun starts a test run
func (c *APIClient) CreateTestRun(ctx context.Context, req types.CreateTestRunRequest) (models.TestRun, error) {
	var run models.TestRun
	err := c.executeRequest(ctx, http.MethodPost, routes.CreateTestRunURL(), req, &run)
	return run, err
}

// GetTestRun retrieves a test run by id
func (c *APIClient) GetTestRun(ctx context.Context, id uint) (models.TestRun, error) {
	var run models.TestRun
	err := c.executeRequest(ctx, http.MethodGet, routes.GetTestRunURL(idString(id)), nil, &run)
	return run, err
}

// ListTestRuns lists test runs, filtered by project when projectID is set
func (c *APIClient) ListTestRuns(ctx context.Context, projectID uint, opts *models.ListOptions) ([]models.TestRun, error) {
	q := getQueryParams(opts)
	if projectID != 0 {
		q.Set("project_id", idString(projectID))
	}

	var response types.ListResponse[models.TestRun]
	if err := c.executeRequest(ctx, http.MethodGet, routes.GetTestRunsURL(q), nil, &response); err != nil {
		return nil, err
	}
	return values(response.Rows), nil
}

// CancelTestRun cancels a pending or running test run
func (c *APIClient) CancelTestRun(ctx context.Context, id uint, reason string) (models.TestRun, error) {
	var run models.TestRun
	err := c.executeRequest(ctx, http.MethodPost, routes.CancelTestRunURL(idString(id)), types.CancelRequest{Reason: reason}, &run)
	return run, err
}

// Deployment methods implementation

// CreateDeployment starts a deployment
func (c *APIClient) CreateDeployment(ctx context.Context, req types.CreateDeploymentRequest) (models.Deployment, error) {
	var deployment models.Deployment
	err := c.executeRequest(ctx, http.MethodPost, routes.CreateDeploymentURL(), req, &deployment)
	return deployment, err
}

// GetDeployment retrieves a deployment by id
func (c *APIClient) GetDeployment(ctx context.Context, id uint) (models.Deployment, error) {
	var deployment models.Deployment
	err := c.executeRequest(ctx, http.MethodGet, routes.GetDeploymentURL(idString(id)), nil, &deployment)
	return deployment, err
}

// ListDeployments lists deployments, filtered by project and environment when set
func (c *APIClient) ListDeployments(ctx context.Context, projectID uint, environment string, opts *models.ListOptions) ([]models.Deployment, error) {
	q := getQueryParams(opts)
	if projectID != 0 {
		q.Set("project_id", idString(projectID))
	}
	if environment != "" {
		q.Set("environment", environment)
	}

	var response types.ListResponse[models.Deployment]
	if err := c.executeRequest(ctx, http.MethodGet, routes.GetDeploymentsURL(q), nil, &response); err != nil {
		return nil, err
	}
	return values(response.Rows), nil
}

// CancelDeployment cancels a pending or in progress deployment
func (c *APIClient) CancelDeployment(ctx context.Context, id uint, reason string) (models.Deployment, error) {
	var deployment models.Deployment
	err := c.executeRequest(ctx, http.MethodPost, routes.CancelDeploymentURL(idString(id)), types.CancelRequest{Reason: reason}, &deployment)
	return deployment, err
}

// RollbackDeployment rolls a deployment back to its predecessor and returns
// the new rollback deployment
func (c *APIClient) RollbackDeployment(ctx context.Context, id uint, reason string) (models.Deployment, error) {
	var deployment models.Deployment
	err := c.executeRequest(ctx, http.MethodPost, routes.RollbackDeploymentURL(idString(id)), types.RollbackRequest{Reason: reason}, &deployment)
	return deployment, err
}

func values[T any](rows []*T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
