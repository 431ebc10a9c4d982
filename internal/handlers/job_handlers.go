package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fileforge/internal/utils"
)

// GetJob returns the full job record.
func (h *Handler) GetJob(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("jobId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid job ID format")
	}

	job, err := h.Jobs.Get(c.Context(), jobID, ctxOwner(c))
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, job)
}

// GetJobStatus returns the polling projection of a job.
func (h *Handler) GetJobStatus(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("jobId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid job ID format")
	}

	info, err := h.Jobs.Status(c.Context(), jobID, ctxOwner(c))
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, info)
}

// CancelJob cancels a pending or processing job.
func (h *Handler) CancelJob(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("jobId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid job ID format")
	}

	ok, err := h.Jobs.Cancel(c.Context(), jobID, ctxOwner(c))
	if err != nil {
		return h.respondServiceError(c, err)
	}
	if !ok {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Job cannot be cancelled")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"message": "Job cancelled successfully",
	})
}

// JobHistory returns one page of the caller's jobs, newest first.
func (h *Handler) JobHistory(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 0)

	history, err := h.Jobs.History(c.Context(), ctxOwner(c), page, pageSize)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, history)
}
