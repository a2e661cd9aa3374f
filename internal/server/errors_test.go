package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkwell/internal/models"
	"inkwell/internal/token"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "Malformed ID Reads As Missing",
			err:         fmt.Errorf("%w: id=%q", models.ErrMalformedID, "abc"),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Resource not found",
		},
		{
			name:        "Classified Duplicate Keeps Its Message",
			err:         models.NewDuplicateError("User with this email or username already exists"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "User with this email or username already exists",
		},
		{
			name:        "Gorm Duplicate Key",
			err:         gorm.ErrDuplicatedKey,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Duplicate field value entered",
		},
		{
			name:        "Postgres Unique Violation",
			err:         &pgconn.PgError{Code: "23505"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Duplicate field value entered",
		},
		{
			name:        "SQLite Unique Violation String",
			err:         errors.New("UNIQUE constraint failed: users.email"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Duplicate field value entered",
		},
		{
			name:        "Validation Carries Field Messages",
			err:         models.NewValidationError("title is required, content is required"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "title is required, content is required",
		},
		{
			name:        "Invalid Token Sentinel",
			err:         fmt.Errorf("verify: %w", token.ErrInvalid),
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid token",
		},
		{
			name:        "Expired Token Sentinel",
			err:         fmt.Errorf("verify: %w", token.ErrExpired),
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Token expired",
		},
		{
			name:        "Rate Limited",
			err:         models.NewRateLimitError(""),
			wantStatus:  http.StatusTooManyRequests,
			wantMessage: "Too many requests. Please try again later.",
		},
		{
			name:        "Classified Unavailable",
			err:         models.NewUnavailableError(errors.New("dial tcp: connection refused")),
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Service temporarily unavailable",
		},
		{
			name:        "Postgres Connection Failure",
			err:         &pgconn.PgError{Code: "08006"},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Service temporarily unavailable",
		},
		{
			name:        "Network Dial Failure",
			err:         &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Service temporarily unavailable",
		},
		{
			name:        "Not Found Keeps Status",
			err:         models.NewNotFoundError("Post", 42),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Post with ID 42 not found",
		},
		{
			name:        "Forbidden Keeps Status",
			err:         models.NewForbiddenError("Not authorized to update this post"),
			wantStatus:  http.StatusForbidden,
			wantMessage: "Not authorized to update this post",
		},
		{
			name:        "Fiber Error Passes Through",
			err:         fiber.NewError(fiber.StatusNotFound, "Resource not found"),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Resource not found",
		},
		{
			name:        "Unclassified Is Internal",
			err:         errors.New("some backend explosion"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "some backend explosion",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			status, message := normalizeError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

// A validation AppError whose text happens to mention a unique
// constraint must not be reclassified as a duplicate.
func TestNormalizeErrorPrecedence(t *testing.T) {
	status, message := normalizeError(
		models.NewValidationError("tags must form a unique constraint friendly set"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "tags must form a unique constraint friendly set", message)
}

func TestHandleErrorEnvelope(t *testing.T) {
	t.Run("Includes Stack Outside Production", func(t *testing.T) {
		_, app := newTestServer(t, nil)
		app.Get("/boom", func(c *fiber.Ctx) error {
			return errors.New("backend exploded")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, "backend exploded", env.Message)
		assert.NotEmpty(t, env.Stack)
	})

	t.Run("Omits Stack In Production", func(t *testing.T) {
		_, app := newTestServer(t, func(s *Server) {
			s.config.Env = "production"
		})
		app.Get("/boom", func(c *fiber.Ctx) error {
			return errors.New("backend exploded")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Equal(t, "error", env.Status)
		assert.Empty(t, env.Stack)
	})

	t.Run("Handler Returned AppError Becomes Envelope", func(t *testing.T) {
		_, app := newTestServer(t, nil)
		app.Get("/forbidden", func(c *fiber.Ctx) error {
			return models.NewForbiddenError("Admin access required")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/forbidden", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, "Admin access required", env.Message)
	})
}
