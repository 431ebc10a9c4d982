package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fileforge/internal/auth"
	"fileforge/internal/models"
	"fileforge/internal/utils"
)

// Authenticate resolves the caller identity from the Authorization
// header. Registered users present a JWT access token, guests present
// the opaque token minted by the guest-token endpoint. Handlers behind
// this middleware read the models.Owner from c.Locals(OwnerKey).
func Authenticate(tokens *auth.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing or malformed Authorization header")
		}

		if auth.IsGuestToken(raw) {
			c.Locals(OwnerKey, models.GuestOwner(raw))
			return c.Next()
		}

		userID, err := tokens.Parse(raw, auth.TokenTypeAccess)
		if err != nil {
			return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}
		c.Locals(OwnerKey, models.UserOwner(userID))
		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// RequireUser rejects guest sessions. It must run after Authenticate.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals(UserIDKey).(uuid.UUID); !ok {
			return utils.RespondWithError(c, fiber.StatusForbidden, "This endpoint requires a registered account")
		}
		return c.Next()
	}
}

// CtxOwner returns the owner resolved by Authenticate.
func CtxOwner(c *fiber.Ctx) (models.Owner, bool) {
	owner, ok := c.Locals(OwnerKey).(models.Owner)
	return owner, ok
}

// CtxUserID returns the registered user id, if the caller is one.
func CtxUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(UserIDKey).(uuid.UUID)
	return id, ok
}

func bearerToken(c *fiber.Ctx) string {
	const prefix = "Bearer "
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
