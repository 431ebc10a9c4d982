package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileforge/internal/auth"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func probeApp(tokens *auth.Manager) *fiber.App {
	app := fiber.New()
	app.Use(Authenticate(tokens))
	app.Get("/probe", func(c *fiber.Ctx) error {
		owner, ok := CtxOwner(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.JSON(fiber.Map{"owner": owner.String()})
	})
	app.Get("/users-only", RequireUser(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthenticateUserToken(t *testing.T) {
	tokens := auth.NewManager("secret", time.Hour, 24*time.Hour)
	app := probeApp(tokens)

	userID := uuid.New()
	pair, err := tokens.NewPair(userID)
	require.NoError(t, err)

	resp := get(t, app, "/probe", pair.AccessToken)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "user:"+userID.String(), body["owner"])
}

func TestAuthenticateGuestToken(t *testing.T) {
	tokens := auth.NewManager("secret", time.Hour, 24*time.Hour)
	app := probeApp(tokens)

	guest, err := auth.NewGuestToken()
	require.NoError(t, err)

	resp := get(t, app, "/probe", guest)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthenticateRejections(t *testing.T) {
	tokens := auth.NewManager("secret", time.Hour, 24*time.Hour)
	app := probeApp(tokens)

	// No header.
	resp := get(t, app, "/probe", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Garbage.
	resp = get(t, app, "/probe", "not-a-real-token")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// A refresh token is not an access token.
	pair, err := tokens.NewPair(uuid.New())
	require.NoError(t, err)
	resp = get(t, app, "/probe", pair.RefreshToken)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Signed by someone else.
	foreign := auth.NewManager("other-secret", time.Hour, 24*time.Hour)
	pair, err = foreign.NewPair(uuid.New())
	require.NoError(t, err)
	resp = get(t, app, "/probe", pair.AccessToken)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireUser(t *testing.T) {
	tokens := auth.NewManager("secret", time.Hour, 24*time.Hour)
	app := probeApp(tokens)

	pair, err := tokens.NewPair(uuid.New())
	require.NoError(t, err)
	resp := get(t, app, "/users-only", pair.AccessToken)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	guest, err := auth.NewGuestToken()
	require.NoError(t, err)
	resp = get(t, app, "/users-only", guest)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(discardLogger(), nil, 60))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < 100; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	app := fiber.New()
	app.Use(RequestLogger(discardLogger()))
	app.Get("/", func(c *fiber.Ctx) error {
		assert.NotEmpty(t, c.Locals(RequestIDKey))
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
