package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/auth"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// TestRunHandler handles HTTP requests for test runs
type TestRunHandler struct {
	*APIHandler
}

// NewTestRunHandler creates a new instance of TestRunHandler
func NewTestRunHandler(api *APIHandler) *TestRunHandler {
	return &TestRunHandler{APIHandler: api}
}

// CreateTestRun records a test run and starts executing it. The response is
// sent once the run is persisted, before it finishes.
func (h *TestRunHandler) CreateTestRun(c *fiber.Ctx) error {
	var req types.CreateTestRunRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrMsgInvalidReqBody)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.testRun.Create(c.Context(), auth.ActorFrom(c).Name, req)
	if err != nil {
		return respondWithError(c, err, ErrMsgTestRunCreateFailed)
	}
	return c.Status(fiber.StatusAccepted).JSON(types.Success(run))
}

// ListTestRuns handles retrieving test runs, optionally filtered by project,
// suite and status
func (h *TestRunHandler) ListTestRuns(c *fiber.Ctx) error {
	opts, err := getListOptions(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	projectID, err := queryID(c, "project_id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	suiteID, err := queryID(c, "test_suite_id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	runs, err := h.testRun.List(c.Context(), projectID, suiteID, opts)
	if err != nil {
		return respondWithError(c, err, ErrMsgTestRunListFailed)
	}
	return c.JSON(types.Success(types.NewListResponse(rowPointers(runs), opts.Limit, opts.Offset)))
}

// GetTestRun handles retrieving a test run by id
func (h *TestRunHandler) GetTestRun(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.testRun.Get(c.Context(), id)
	if err != nil {
		return respondWithError(c, err, ErrMsgTestRunGetFailed)
	}
	return c.JSON(types.Success(run))
}

// CancelTestRun handles cancelling a pending or running test run
func (h *TestRunHandler) CancelTestRun(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req types.CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, ErrMsgInvalidReqBody)
		}
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.testRun.Cancel(c.Context(), id, auth.ActorFrom(c).Name, req.Reason)
	if err != nil {
		return respondWithError(c, err, ErrMsgTestRunCancelFailed)
	}
	return c.JSON(types.Success(run))
}
