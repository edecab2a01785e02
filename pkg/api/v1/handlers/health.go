package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/pkg/types"
)

// HealthHandler reports the liveness of the service
type HealthHandler struct {
	*APIHandler
}

// NewHealthHandler creates a new instance of HealthHandler
func NewHealthHandler(api *APIHandler) *HealthHandler {
	return &HealthHandler{APIHandler: api}
}

// HealthCheck returns the service status and the number of executions in flight
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	resp := types.HealthResponse{Status: "healthy"}
	if h.APIHandler != nil && h.registry != nil {
		resp.ActiveExecutions = h.registry.Len()
	}
	return c.JSON(resp)
}
