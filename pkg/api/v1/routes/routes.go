// Package routes defines the API routes and URL structure
package routes

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/celestiaorg/shipyard/internal/auth"
	"github.com/celestiaorg/shipyard/pkg/api/v1/handlers"
)

/*

To keep this file organized, routes should be organized in the following way:

1. Smallest scope first (i.e. project routes before test run routes)
2. For similar scopes, put the endpoints in alphabetical order
3. Order routes in GET, POST, PUT, DELETE order.
	a. Within this ordering, param urls (ie /:id) should go last, otherwise fiber will interpret the route slug as that param.
	b. After param considerations, order alphabetically.
4. For clarity, naming should match the action (i.e. GetDeployment, CancelDeployment)

*/

// API base configuration
const (
	// DefaultPort is the default port for the API
	DefaultPort = "8080"
	// APIv1Prefix is the prefix for all API endpoints
	APIv1Prefix = "/api/v1"
)

// DefaultBaseURL is the default base URL for the API
var DefaultBaseURL = fmt.Sprintf("http://localhost:%s", DefaultPort)

// Route names for lookup
const (
	// Health check and metrics
	HealthCheck = "HealthCheck"
	Metrics     = "Metrics"

	// Project routes
	GetProjects   = "GetProjects"
	GetProject    = "GetProject"
	CreateProject = "CreateProject"
	UpdateProject = "UpdateProject"
	DeleteProject = "DeleteProject"

	// Test suite routes
	GetTestSuites   = "GetTestSuites"
	GetTestSuite    = "GetTestSuite"
	CreateTestSuite = "CreateTestSuite"

	// Test run routes
	GetTestRuns   = "GetTestRuns"
	GetTestRun    = "GetTestRun"
	CreateTestRun = "CreateTestRun"
	CancelTestRun = "CancelTestRun"

	// Deployment routes
	GetDeployments     = "GetDeployments"
	GetDeployment      = "GetDeployment"
	CreateDeployment   = "CreateDeployment"
	CancelDeployment   = "CancelDeployment"
	RollbackDeployment = "RollbackDeployment"
)

// Handlers groups the handlers served by the v1 API
type Handlers struct {
	Project    *handlers.ProjectHandler
	TestRun    *handlers.TestRunHandler
	Deployment *handlers.DeploymentHandler
	Health     *handlers.HealthHandler
	// Metrics is mounted on /metrics when set
	Metrics http.Handler
}

// NewHandlers builds every v1 handler around the shared API handler
func NewHandlers(api *handlers.APIHandler, metrics http.Handler) Handlers {
	return Handlers{
		Project:    handlers.NewProjectHandler(api),
		TestRun:    handlers.NewTestRunHandler(api),
		Deployment: handlers.NewDeploymentHandler(api),
		Health:     handlers.NewHealthHandler(api),
		Metrics:    metrics,
	}
}

// routeCache stores extracted routes for use prior to compilation
var (
	routeCache     map[string]string
	routeCacheMu   sync.RWMutex
	routeCacheInit sync.Once
)

// RegisterRoutes configures all the v1 routes
//
// NOTE: route ordering is important because routes will try and match in the order they are registered.
func RegisterRoutes(app *fiber.App, guard *auth.Guard, h Handlers) {
	// Health check
	app.Get("/health", h.Health.HealthCheck).Name(HealthCheck)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics)).Name(Metrics)
	}

	// API v1 routes
	v1 := app.Group(APIv1Prefix)

	// ---------------------------
	// Project endpoints
	projects := v1.Group("/projects")
	projects.Get("/", guard.Require(auth.PermJobRead), h.Project.ListProjects).Name(GetProjects)
	projects.Get("/:id/suites", guard.Require(auth.PermJobRead), h.Project.ListTestSuites).Name(GetTestSuites)
	projects.Get("/:id/suites/:suiteID", guard.Require(auth.PermJobRead), h.Project.GetTestSuite).Name(GetTestSuite)
	projects.Get("/:id", guard.Require(auth.PermJobRead), h.Project.GetProject).Name(GetProject)
	projects.Post("/", guard.Require(auth.PermProjectManage), h.Project.CreateProject).Name(CreateProject)
	projects.Post("/:id/suites", guard.Require(auth.PermProjectManage), h.Project.CreateTestSuite).Name(CreateTestSuite)
	projects.Put("/:id", guard.Require(auth.PermProjectManage), h.Project.UpdateProject).Name(UpdateProject)
	projects.Delete("/:id", guard.Require(auth.PermProjectManage), h.Project.DeleteProject).Name(DeleteProject)

	// ---------------------------
	// Test run endpoints
	testRuns := v1.Group("/test-runs")
	testRuns.Get("/", guard.Require(auth.PermJobRead), h.TestRun.ListTestRuns).Name(GetTestRuns)
	testRuns.Get("/:id", guard.Require(auth.PermJobRead), h.TestRun.GetTestRun).Name(GetTestRun)
	testRuns.Post("/", guard.Require(auth.PermTestRun), h.TestRun.CreateTestRun).Name(CreateTestRun)
	testRuns.Post("/:id/cancel", guard.Require(auth.PermTestCancel), h.TestRun.CancelTestRun).Name(CancelTestRun)

	// ---------------------------
	// Deployment endpoints
	deployments := v1.Group("/deployments")
	deployments.Get("/", guard.Require(auth.PermJobRead), h.Deployment.ListDeployments).Name(GetDeployments)
	deployments.Get("/:id", guard.Require(auth.PermJobRead), h.Deployment.GetDeployment).Name(GetDeployment)
	deployments.Post("/", guard.Require(auth.PermDeployCreate), h.Deployment.CreateDeployment).Name(CreateDeployment)
	deployments.Post("/:id/cancel", guard.Require(auth.PermDeployCancel), h.Deployment.CancelDeployment).Name(CancelDeployment)
	deployments.Post("/:id/rollback", guard.Require(auth.PermDeployRollback), h.Deployment.RollbackDeployment).Name(RollbackDeployment)
}

// initRouteCache initializes the route cache by creating a mock app and extracting routes
func initRouteCache() {
	routeCacheInit.Do(func() {
		routeCache = make(map[string]string)

		// Create a mock app
		app := fiber.New()

		// Register routes with empty handlers
		mock := NewHandlers(&handlers.APIHandler{}, http.NotFoundHandler())
		RegisterRoutes(app, auth.NewGuard(false), mock)

		// Extract routes from the app
		for _, route := range app.GetRoutes() {
			if route.Name != "" {
				routeCache[route.Name] = route.Path
			}
		}
	})
}

// GetRoute returns the route pattern for the given route name
func GetRoute(name string) string {
	initRouteCache()

	routeCacheMu.RLock()
	defer routeCacheMu.RUnlock()
	return routeCache[name]
}

// BuildURL builds a URL for the given route name and parameters
func BuildURL(routeName string, params map[string]string, queryParams url.Values) string {
	route := GetRoute(routeName)
	if route == "" {
		return ""
	}

	// Replace parameters in the route
	for param, value := range params {
		route = strings.ReplaceAll(route, ":"+param, value)
	}

	// Remove trailing slash if it's a base endpoint with no parameters
	if strings.HasSuffix(route, "/") && !strings.Contains(route, ":") && route != "/" {
		route = strings.TrimSuffix(route, "/")
	}

	// Add query parameters if any
	if len(queryParams) > 0 {
		route = fmt.Sprintf("%s?%s", route, queryParams.Encode())
	}

	return route
}

// Health check route helpers

// HealthCheckURL returns the URL for the health check endpoint
func HealthCheckURL() string {
	return BuildURL(HealthCheck, nil, nil)
}

// MetricsURL returns the URL for the metrics endpoint
func MetricsURL() string {
	return BuildURL(Metrics, nil, nil)
}

// Project route helpers

// GetProjectsURL returns the URL for listing projects
func GetProjectsURL(queryParams url.Values) string {
	return BuildURL(GetProjects, nil, queryParams)
}

// GetProjectURL returns the URL for getting a project by ID
func GetProjectURL(id string) string {
	return BuildURL(GetProject, map[string]string{"id": id}, nil)
}

// CreateProjectURL returns the URL for creating a project
func CreateProjectURL() string {
	return BuildURL(CreateProject, nil, nil)
}

// UpdateProjectURL returns the URL for updating a project
func UpdateProjectURL(id string) string {
	return BuildURL(UpdateProject, map[string]string{"id": id}, nil)
}

// DeleteProjectURL returns the URL for deleting a project
func DeleteProjectURL(id string) string {
	return BuildURL(DeleteProject, map[string]string{"id": id}, nil)
}

// Test suite route helpers

// GetTestSuitesURL returns the URL for listing the test suites of a project
func GetTestSuitesURL(projectID string, queryParams url.Values) string {
	return BuildURL(GetTestSuites, map[string]string{"id": projectID}, queryParams)
}

// GetTestSuiteURL returns the URL for getting a test suite
func GetTestSuiteURL(projectID, suiteID string) string {
	return BuildURL(GetTestSuite, map[string]string{"id": projectID, "suiteID": suiteID}, nil)
}

// CreateTestSuiteURL returns the URL for creating a test suite
func CreateTestSuiteURL(projectID string) string {
	return BuildURL(CreateTestSuite, map[string]string{"id": projectID}, nil)
}

// Test run route helpers

// GetTestRunsURL returns the URL for listing test runs
func GetTestRunsURL(queryParams url.Values) string {
	return BuildURL(GetTestRuns, nil, queryParams)
}

// GetTestRunURL returns the URL for getting a test run by ID
func GetTestRunURL(id string) string {
	return BuildURL(GetTestRun, map[string]string{"id": id}, nil)
}

// CreateTestRunURL returns the URL for starting a test run
func CreateTestRunURL() string {
	return BuildURL(CreateTestRun, nil, nil)
}

// CancelTestRunURL returns the URL for cancelling a test run
func CancelTestRunURL(id string) string {
	return BuildURL(CancelTestRun, map[string]string{"id": id}, nil)
}

// Deployment route helpers

// GetDeploymentsURL returns the URL for listing deployments
func GetDeploymentsURL(queryParams url.Values) string {
	return BuildURL(GetDeployments, nil, queryParams)
}

// GetDeploymentURL returns the URL for getting a deployment by ID
func GetDeploymentURL(id string) string {
	return BuildURL(GetDeployment, map[string]string{"id": id}, nil)
}

// CreateDeploymentURL returns the URL for starting a deployment
func CreateDeploymentURL() string {
	return BuildURL(CreateDeployment, nil, nil)
}

// CancelDeploymentURL returns the URL for cancelling a deployment
func CancelDeploymentURL(id string) string {
	return BuildURL(CancelDeployment, map[string]string{"id": id}, nil)
}

// RollbackDeploymentURL returns the URL for rolling back a deployment
func RollbackDeploymentURL(id string) string {
	return BuildURL(RollbackDeployment, map[string]string{"id": id}, nil)
}
