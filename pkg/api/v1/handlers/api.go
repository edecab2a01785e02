package handlers

import (
	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/services"
)

// APIHandler holds the services shared by every handler
type APIHandler struct {
	project    *services.Project
	testSuite  *services.TestSuite
	testRun    *services.TestRun
	deployment *services.Deployment
	registry   *engine.Registry
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	project *services.Project,
	testSuite *services.TestSuite,
	testRun *services.TestRun,
	deployment *services.Deployment,
	registry *engine.Registry,
) *APIHandler {
	return &APIHandler{
		project:    project,
		testSuite:  testSuite,
		testRun:    testRun,
		deployment: deployment,
		registry:   registry,
	}
}
