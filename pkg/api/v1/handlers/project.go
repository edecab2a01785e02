package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/pkg/types"
)

// ProjectHandler handles HTTP requests for projects and their test suites
type ProjectHandler struct {
	*APIHandler
}

// NewProjectHandler creates a new instance of ProjectHandler
func NewProjectHandler(api *APIHandler) *ProjectHandler {
	return &ProjectHandler{APIHandler: api}
}

// CreateProject handles the creation of a new project
func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	var req types.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrMsgInvalidReqBody)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	project, err := h.project.Create(c.Context(), req)
	if err != nil {
		return respondWithError(c, err, ErrMsgProjCreateFailed)
	}
	return c.Status(fiber.StatusCreated).JSON(types.Success(project))
}

// ListProjects handles retrieving projects with pagination
func (h *ProjectHandler) ListProjects(c *fiber.Ctx) error {
	opts, err := getListOptions(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	projects, err := h.project.List(c.Context(), opts)
	if err != nil {
		return respondWithError(c, err, ErrMsgProjListFailed)
	}
	return c.JSON(types.Success(types.NewListResponse(rowPointers(projects), opts.Limit, opts.Offset)))
}

// GetProject handles retrieving a project by id
func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	project, err := h.project.Get(c.Context(), id)
	if err != nil {
		return respondWithError(c, err, ErrMsgProjGetFailed)
	}
	return c.JSON(types.Success(project))
}

// UpdateProject handles updating the mutable fields of a project
func (h *ProjectHandler) UpdateProject(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req types.UpdateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrMsgInvalidReqBody)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	project, err := h.project.Update(c.Context(), id, req)
	if err != nil {
		return respondWithError(c, err, ErrMsgProjUpdateFailed)
	}
	return c.JSON(types.Success(project))
}

// DeleteProject handles deleting a project by id
func (h *ProjectHandler) DeleteProject(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.project.Delete(c.Context(), id); err != nil {
		return respondWithError(c, err, ErrMsgProjDeleteFailed)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateTestSuite handles registering a test suite under a project
func (h *ProjectHandler) CreateTestSuite(c *fiber.Ctx) error {
	projectID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req types.CreateTestSuiteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrMsgInvalidReqBody)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	suite, err := h.testSuite.Create(c.Context(), projectID, req)
	if err != nil {
		return respondWithError(c, err, ErrMsgSuiteCreateFailed)
	}
	return c.Status(fiber.StatusCreated).JSON(types.Success(suite))
}

// ListTestSuites handles retrieving the test suites of a project
func (h *ProjectHandler) ListTestSuites(c *fiber.Ctx) error {
	projectID, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	opts, err := getListOptions(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	suites, err := h.testSuite.ListByProject(c.Context(), projectID, opts)
	if err != nil {
		return respondWithError(c, err, ErrMsgSuiteListFailed)
	}
	return c.JSON(types.Success(types.NewListResponse(rowPointers(suites), opts.Limit, opts.Offset)))
}

// GetTestSuite handles retrieving a test suite by id
func (h *ProjectHandler) GetTestSuite(c *fiber.Ctx) error {
	id, err := paramID(c, "suiteID")
	if err != nil {
		return badRequest(c, err.Error())
	}

	suite, err := h.testSuite.Get(c.Context(), id)
	if err != nil {
		return respondWithError(c, err, ErrMsgSuiteGetFailed)
	}
	return c.JSON(types.Success(suite))
}
