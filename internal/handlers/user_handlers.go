package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"fileforge/internal/middleware"
	"fileforge/internal/utils"
)

// UpdateProfileRequest is the JSON body for profile edits. Absent
// fields stay unchanged.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
}

// Dashboard returns the account activity summary.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	userID, ok := middleware.CtxUserID(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}

	d, err := h.Users.GetDashboard(c.Context(), userID)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, d)
}

// GetProfile returns the account record.
func (h *Handler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.CtxUserID(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}

	u, err := h.Users.GetProfile(c.Context(), userID)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, u)
}

// UpdateProfile applies partial profile changes.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.CtxUserID(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}

	payload := new(UpdateProfileRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse JSON body")
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), ", "))
	}

	u, err := h.Users.UpdateProfile(c.Context(), userID, payload.FullName, payload.Username)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, u)
}

// DeleteAccount deactivates the account. Files and jobs age out via
// the retention sweep.
func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	userID, ok := middleware.CtxUserID(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}

	if err := h.Users.Deactivate(c.Context(), userID); err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"message": "Account deactivated successfully",
	})
}
