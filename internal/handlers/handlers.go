// Package handlers wires the HTTP surface: request parsing, calls into
// the services and rendering of the response envelope.
package handlers

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fileforge/internal/middleware"
	"fileforge/internal/models"
	"fileforge/internal/services"
	"fileforge/internal/utils"
)

var validate = validator.New()

// Handler holds the shared dependencies for all HTTP handlers.
type Handler struct {
	Log   *logrus.Logger
	Auth  *services.Auth
	Users *services.Users
	Files *services.Files
	Jobs  *services.Jobs
	DB    *sql.DB // health check ping
}

// New creates a Handler with the given dependencies.
func New(log *logrus.Logger, authSvc *services.Auth, users *services.Users, files *services.Files, jobs *services.Jobs, db *sql.DB) *Handler {
	return &Handler{
		Log:   log,
		Auth:  authSvc,
		Users: users,
		Files: files,
		Jobs:  jobs,
		DB:    db,
	}
}

// ErrorHandler renders errors that escape the handlers with the
// standard envelope. Wire it into fiber.Config.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An unexpected error occurred"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return utils.RespondWithError(c, code, message)
}

// respondServiceError maps the service sentinels onto HTTP statuses.
func (h *Handler) respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return utils.RespondWithError(c, fiber.StatusNotFound, "Resource not found")
	case errors.Is(err, services.ErrUnauthorized):
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid or expired credentials")
	case errors.Is(err, services.ErrDuplicate):
		return utils.RespondWithError(c, fiber.StatusConflict, err.Error())
	default:
		h.Log.WithError(err).Error("request failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "An unexpected error occurred")
	}
}

// ctxOwner pulls the owner resolved by the Authenticate middleware. On
// routes without it the zero Owner comes back and the services reject
// the call.
func ctxOwner(c *fiber.Ctx) models.Owner {
	owner, _ := middleware.CtxOwner(c)
	return owner
}

// parseFileIDs turns the wire form of input file references into uuids.
func parseFileIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid file id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
