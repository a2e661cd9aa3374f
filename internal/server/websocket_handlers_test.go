package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"inkwell/internal/featureflags"
	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeFeedGate(t *testing.T) {
	user := &models.User{ID: 42, Username: "vi"}

	gated := func(t *testing.T, flags string) *fiber.App {
		t.Helper()
		s, app := newTestServer(t, func(s *Server) {
			s.featureFlags = featureflags.NewManager(flags)
		})
		app.Get("/api/ws", fakeAuth(user), s.RealtimeFeedGate(), func(c *fiber.Ctx) error {
			return c.SendString("upgraded")
		})
		return app
	}

	t.Run("Disabled Flag Hides The Route", func(t *testing.T) {
		app := gated(t, featureflags.RealtimeFeed+"=off")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Equal(t, "Resource not found", env.Message)
	})

	t.Run("Missing Flag Hides The Route", func(t *testing.T) {
		app := gated(t, "")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Enabled Flag Lets The Request Through", func(t *testing.T) {
		app := gated(t, featureflags.RealtimeFeed+"=on")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Nil Manager Hides The Route", func(t *testing.T) {
		s, app := newTestServer(t, nil)
		app.Get("/api/ws", fakeAuth(user), s.RealtimeFeedGate(), func(c *fiber.Ctx) error {
			return c.SendString("upgraded")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// Percentage rollouts admit users by stable bucket, so the same user
// keeps their access across requests and restarts.
func TestRealtimeFeedGatePartialRollout(t *testing.T) {
	flags := featureflags.NewManager(featureflags.RealtimeFeed + "=50%")

	insideID := uint(0)
	outsideID := uint(0)
	for id := uint(1); id <= 200 && (insideID == 0 || outsideID == 0); id++ {
		if flags.Enabled(featureflags.RealtimeFeed, id) {
			if insideID == 0 {
				insideID = id
			}
		} else if outsideID == 0 {
			outsideID = id
		}
	}
	require.NotZero(t, insideID)
	require.NotZero(t, outsideID)

	check := func(userID uint, wantStatus int) {
		t.Helper()
		s, app := newTestServer(t, func(s *Server) {
			s.featureFlags = flags
		})
		app.Get("/api/ws", fakeAuth(&models.User{ID: userID, Username: "u"}), s.RealtimeFeedGate(), func(c *fiber.Ctx) error {
			return c.SendString("upgraded")
		})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ws", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, wantStatus, resp.StatusCode)
	}

	check(insideID, http.StatusOK)
	check(outsideID, http.StatusNotFound)
}
