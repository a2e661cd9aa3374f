package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gateSecret = "test-secret-key-12345678901234567890123456789012"

// gateApp builds a minimal app with the gate in front of a handler that
// echoes the resolved identity, plus an error handler that honors
// AppError statuses the way the real server does.
func gateApp(deps AuthDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return models.RespondWithError(c, appErr.Status, appErr)
			}
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		},
	})
	app.Get("/test", AuthGate(deps), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"userID":   c.Locals("userID"),
			"username": c.Locals("username"),
		})
	})
	return app
}

func activeUserResolver(t *testing.T) func(ctx context.Context, userID uint) (*models.User, error) {
	t.Helper()
	return func(_ context.Context, userID uint) (*models.User, error) {
		return &models.User{ID: userID, Username: "ada", IsActive: true}, nil
	}
}

func TestAuthGate(t *testing.T) {
	tokens := token.NewService(gateSecret)
	expiredTokens := token.NewServiceWithTTL(gateSecret, -time.Minute)

	validToken, err := tokens.Issue(123, "ada")
	require.NoError(t, err)
	expiredToken, err := expiredTokens.Issue(123, "ada")
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		deps           AuthDeps
		expectedStatus int
		expectedMsg    string
		expectedUserID uint
	}{
		{
			name:       "Happy Path",
			authHeader: "Bearer " + validToken,
			deps: AuthDeps{
				Tokens:      tokens,
				ResolveUser: activeUserResolver(t),
			},
			expectedStatus: http.StatusOK,
			expectedUserID: 123,
		},
		{
			name:           "Missing Header",
			authHeader:     "",
			deps:           AuthDeps{Tokens: tokens, ResolveUser: activeUserResolver(t)},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgNoToken,
		},
		{
			name:           "Invalid Scheme",
			authHeader:     "Basic dXNlcjpwYXNz",
			deps:           AuthDeps{Tokens: tokens, ResolveUser: activeUserResolver(t)},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgInvalidToken,
		},
		{
			name:           "Malformed Token",
			authHeader:     "Bearer malformed.token.here",
			deps:           AuthDeps{Tokens: tokens, ResolveUser: activeUserResolver(t)},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgInvalidToken,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + expiredToken,
			deps:           AuthDeps{Tokens: tokens, ResolveUser: activeUserResolver(t)},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgInvalidToken,
		},
		{
			name:       "Revoked Token",
			authHeader: "Bearer " + validToken,
			deps: AuthDeps{
				Tokens:      tokens,
				ResolveUser: activeUserResolver(t),
				IsRevoked: func(_ context.Context, _ string) (bool, error) {
					return true, nil
				},
			},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgInvalidToken,
		},
		{
			name:       "Revocation Store Down Fails Open",
			authHeader: "Bearer " + validToken,
			deps: AuthDeps{
				Tokens:      tokens,
				ResolveUser: activeUserResolver(t),
				IsRevoked: func(_ context.Context, _ string) (bool, error) {
					return false, errors.New("redis: connection refused")
				},
			},
			expectedStatus: http.StatusOK,
			expectedUserID: 123,
		},
		{
			name:       "Deactivated User",
			authHeader: "Bearer " + validToken,
			deps: AuthDeps{
				Tokens: tokens,
				ResolveUser: func(_ context.Context, userID uint) (*models.User, error) {
					return &models.User{ID: userID, IsActive: false}, nil
				},
			},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgInvalidToken,
		},
		{
			name:       "Deleted User",
			authHeader: "Bearer " + validToken,
			deps: AuthDeps{
				Tokens: tokens,
				ResolveUser: func(_ context.Context, _ uint) (*models.User, error) {
					return nil, errors.New("record not found")
				},
			},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    MsgInvalidToken,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			app := gateApp(tt.deps)
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(tt.expectedUserID), body["userID"])
			} else {
				var body models.Envelope
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "error", body.Status)
				assert.Equal(t, tt.expectedMsg, body.Message)
			}
		})
	}
}

func TestAuthGateQueryToken(t *testing.T) {
	tokens := token.NewService(gateSecret)
	tok, err := tokens.Issue(7, "ws-user")
	require.NoError(t, err)

	tests := []struct {
		name           string
		allowQuery     bool
		tokenParam     string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "Token via Query Param",
			allowQuery:     true,
			tokenParam:     tok,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Token via Header",
			allowQuery:     true,
			authHeader:     "Bearer " + tok,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Missing Token",
			allowQuery:     true,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Query Token",
			allowQuery:     true,
			tokenParam:     "invalid-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Query Token Ignored Without Opt-In",
			allowQuery:     false,
			tokenParam:     tok,
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			app := gateApp(AuthDeps{
				Tokens:          tokens,
				ResolveUser:     activeUserResolver(t),
				AllowQueryToken: tt.allowQuery,
			})

			path := "/test"
			if tt.tokenParam != "" {
				path += "?token=" + tt.tokenParam
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestAuthGateStepOrder(t *testing.T) {
	steps := AuthGateSteps(AuthDeps{Tokens: token.NewService(gateSecret)})
	require.Len(t, steps, 4)
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"extract_token", "verify_token", "check_revocation", "resolve_user"}, names)
}

func TestTokenExpiry(t *testing.T) {
	app := fiber.New()
	want := time.Now().Add(time.Hour).Truncate(time.Second)

	app.Get("/set", func(c *fiber.Ctx) error {
		c.Locals("tokenExpiry", want)
		assert.Equal(t, want, TokenExpiry(c))
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/unset", func(c *fiber.Ctx) error {
		assert.True(t, TokenExpiry(c).IsZero())
		return c.SendStatus(fiber.StatusOK)
	})

	for _, path := range []string{"/set", "/unset"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}
}
