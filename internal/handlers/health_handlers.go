package handlers

import (
	"github.com/gofiber/fiber/v2"

	"fileforge/internal/utils"
)

// Health reports liveness, including a database ping when a handle is
// wired.
func (h *Handler) Health(c *fiber.Ctx) error {
	if h.DB != nil {
		if err := h.DB.PingContext(c.Context()); err != nil {
			h.Log.WithError(err).Error("health check database ping failed")
			return utils.RespondWithError(c, fiber.StatusServiceUnavailable, "Database unreachable")
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"message": "FileForge API is healthy",
	})
}
