// Package handlers provides HTTP request handling
package handlers

import (
	"errors"
	"fmt"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/engine"
	"github.com/celestiaorg/shipyard/internal/logger"
	"github.com/celestiaorg/shipyard/internal/services"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// Common error messages
const (
	ErrMsgInvalidID        = "id must be a positive integer"
	ErrMsgInvalidReqBody   = "Invalid request body"
	ErrMsgInvalidQuery     = "Invalid query parameters"
	ErrMsgInvalidJobStatus = "Invalid job status"
)

// Project error messages
const (
	ErrMsgProjCreateFailed = "Failed to create project"
	ErrMsgProjListFailed   = "Failed to list projects"
	ErrMsgProjGetFailed    = "Failed to get project"
	ErrMsgProjUpdateFailed = "Failed to update project"
	ErrMsgProjDeleteFailed = "Failed to delete project"
)

// Test suite error messages
const (
	ErrMsgSuiteCreateFailed = "Failed to create test suite"
	ErrMsgSuiteListFailed   = "Failed to list test suites"
	ErrMsgSuiteGetFailed    = "Failed to get test suite"
)

// Job error messages
const (
	ErrMsgTestRunCreateFailed    = "Failed to start test run"
	ErrMsgTestRunGetFailed       = "Failed to get test run"
	ErrMsgTestRunListFailed      = "Failed to list test runs"
	ErrMsgTestRunCancelFailed    = "Failed to cancel test run"
	ErrMsgDeploymentCreateFailed = "Failed to start deployment"
	ErrMsgDeploymentGetFailed    = "Failed to get deployment"
	ErrMsgDeploymentListFailed   = "Failed to list deployments"
	ErrMsgDeploymentCancelFailed = "Failed to cancel deployment"
	ErrMsgRollbackFailed         = "Failed to roll back deployment"
)

// StatusFor maps a service or engine error to its HTTP status code
func StatusFor(err error) int {
	var (
		validation *engine.ValidationError
		illegal    *engine.IllegalTransitionError
		notFound   *engine.NotFoundError
		running    *engine.AlreadyRunningError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &illegal):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &running), errors.Is(err, services.ErrProjectExists):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondWithError writes the slug response matching err. msg prefixes
// unexpected errors only; caller facing errors are returned as they are.
func respondWithError(c *fiber.Ctx, err error, msg string) error {
	status := StatusFor(err)
	switch status {
	case fiber.StatusBadRequest:
		var illegal *engine.IllegalTransitionError
		if errors.As(err, &illegal) {
			return c.Status(status).JSON(types.ErrInvalidInput(illegal.Message()))
		}
		return c.Status(status).JSON(types.ErrInvalidInput(err.Error()))
	case fiber.StatusNotFound:
		return c.Status(status).JSON(types.ErrNotFound(err.Error()))
	case fiber.StatusConflict:
		return c.Status(status).JSON(types.ErrConflict(err.Error()))
	}

	logger.ErrorWithFields(msg, map[string]interface{}{
		"path":  c.Path(),
		"error": err.Error(),
	})
	return c.Status(status).JSON(types.ErrServer(fmt.Sprintf("%s: %v", msg, err)))
}

// badRequest writes an invalid input slug response
func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(msg))
}
