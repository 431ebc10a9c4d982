package handlers

import (
	"errors"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"

	"fileforge/internal/middleware"
	"fileforge/internal/utils"
)

// guestTokenLifetime is advisory only; guest tokens are not stored and
// their files age out through the normal retention sweep.
const guestTokenLifetime = 86400

// RegisterRequest is the JSON body for account creation.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Password string  `json:"password" validate:"required"`
	FullName *string `json:"full_name"`
}

// LoginRequest is the JSON body for credential login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the JSON body for token renewal.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return errors.New("Password must be at least 8 characters")
	}
	var hasDigit, hasUpper bool
	for _, r := range pw {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit {
		return errors.New("Password must contain at least one digit")
	}
	if !hasUpper {
		return errors.New("Password must contain at least one uppercase letter")
	}
	return nil
}

// Register creates an account and returns it with a fresh token pair.
func (h *Handler) Register(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse JSON body")
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), ", "))
	}
	if err := validatePassword(payload.Password); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
	}

	user, tokens, err := h.Auth.Register(c.Context(), payload.Email, payload.Username, payload.Password, payload.FullName)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusCreated, fiber.Map{
		"user":   user,
		"tokens": tokens,
	})
}

// Login exchanges credentials for a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse JSON body")
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), ", "))
	}

	user, tokens, err := h.Auth.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"user":   user,
		"tokens": tokens,
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	payload := new(RefreshRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse JSON body")
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), ", "))
	}

	tokens, err := h.Auth.Refresh(c.Context(), payload.RefreshToken)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, tokens)
}

// Me returns the authenticated account.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, ok := middleware.CtxUserID(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}
	user, err := h.Auth.Me(c.Context(), userID)
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, user)
}

// Logout acknowledges a logout. Tokens are stateless; the client drops
// them.
func (h *Handler) Logout(c *fiber.Ctx) error {
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"message": "Logged out successfully",
	})
}

// GuestToken mints an anonymous session token.
func (h *Handler) GuestToken(c *fiber.Ctx) error {
	token, err := h.Auth.GuestToken()
	if err != nil {
		return h.respondServiceError(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"guest_token": token,
		"expires_in":  guestTokenLifetime,
	})
}
