package auth

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/shipyard/internal/logger"
	"github.com/celestiaorg/shipyard/pkg/types"
)

// Headers carrying the caller identity
const (
	ActorHeader = "X-Shipyard-Actor"
	RoleHeader  = "X-Shipyard-Role"
)

const actorLocalsKey = "shipyard.actor"

// Require returns a middleware that rejects requests whose actor lacks perm and
// stores the authorized actor for the handler.
func (g *Guard) Require(perm Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := g.Authorize(c.Get(ActorHeader), c.Get(RoleHeader), perm)
		if err != nil {
			logger.DebugWithFields("request denied", map[string]interface{}{
				"actor":      actor.Name,
				"permission": perm,
				"path":       c.Path(),
				"error":      err.Error(),
			})
			if errors.Is(err, ErrForbidden) {
				return c.Status(fiber.StatusForbidden).JSON(types.ErrForbidden(err.Error()))
			}
			return c.Status(fiber.StatusUnauthorized).JSON(types.ErrUnauthorized(err.Error()))
		}
		c.Locals(actorLocalsKey, actor)
		return c.Next()
	}
}

// ActorFrom returns the actor stored by Require, or the anonymous actor
func ActorFrom(c *fiber.Ctx) Actor {
	if actor, ok := c.Locals(actorLocalsKey).(Actor); ok {
		return actor
	}
	return anonymous
}
