package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/auth"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// DeploymentHandler handles HTTP requests for deployments
type DeploymentHandler struct {
	*APIHandler
}

// NewDeploymentHandler creates a new instance of DeploymentHandler
func NewDeploymentHandler(api *APIHandler) *DeploymentHandler {
	return &DeploymentHandler{APIHandler: api}
}

// CreateDeployment records a deployment and starts executing it
func (h *DeploymentHandler) CreateDeployment(c *fiber.Ctx) error {
	var req types.CreateDeploymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrMsgInvalidReqBody)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	deployment, err := h.deployment.Create(c.Context(), auth.ActorFrom(c).Name, req)
	if err != nil {
		return respondWithError(c, err, ErrMsgDeploymentCreateFailed)
	}
	return c.Status(fiber.StatusAccepted).JSON(types.Success(deployment))
}

// ListDeployments handles retrieving deployments, optionally filtered by
// project, environment and status
func (h *DeploymentHandler) ListDeployments(c *fiber.Ctx) error {
	opts, err := getListOptions(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	projectID, err := queryID(c, "project_id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	deployments, err := h.deployment.List(c.Context(), projectID, c.Query("environment"), opts)
	if err != nil {
		return respondWithError(c, err, ErrMsgDeploymentListFailed)
	}
	return c.JSON(types.Success(types.NewListResponse(rowPointers(deployments), opts.Limit, opts.Offset)))
}

// GetDeployment handles retrieving a deployment by id
func (h *DeploymentHandler) GetDeployment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	deployment, err := h.deployment.Get(c.Context(), id)
	if err != nil {
		return respondWithError(c, err, ErrMsgDeploymentGetFailed)
	}
	return c.JSON(types.Success(deployment))
}

// CancelDeployment handles cancelling a pending or in progress deployment
func (h *DeploymentHandler) CancelDeployment(c *fiber.Ctx) error {
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

	deployment, err := h.deployment.Cancel(c.Context(), id, auth.ActorFrom(c).Name, req.Reason)
	if err != nil {
		return respondWithError(c, err, ErrMsgDeploymentCancelFailed)
	}
	return c.JSON(types.Success(deployment))
}

// RollbackDeployment restores the deployment preceding the given one. The
// response carries the new rollback deployment.
func (h *DeploymentHandler) RollbackDeployment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req types.RollbackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrMsgInvalidReqBody)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	rollback, err := h.deployment.Rollback(c.Context(), id, auth.ActorFrom(c).Name, req.Reason)
	if err != nil {
		return respondWithError(c, err, ErrMsgRollbackFailed)
	}
	return c.Status(fiber.StatusAccepted).JSON(types.Success(rollback))
}
