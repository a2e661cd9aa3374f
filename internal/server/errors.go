package server

import (
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/token"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// normalizeError maps any failure raised during request handling to an
// HTTP status and public message. First match wins; the order is part of
// the API contract.
func normalizeError(err error) (int, string) {
	// 1. Malformed resource identifiers read as missing resources.
	if errors.Is(err, models.ErrMalformedID) {
		return fiber.StatusNotFound, "Resource not found"
	}

	// 2. Uniqueness conflicts, whether classified by a repository or
	// raw from the driver.
	if dup, msg := duplicateViolation(err); dup {
		return fiber.StatusBadRequest, msg
	}

	var appErr *models.AppError
	classified := errors.As(err, &appErr)

	// 3. Validation failures carry their joined field messages.
	if classified && appErr.Code == "VALIDATION_ERROR" {
		return fiber.StatusBadRequest, appErr.Message
	}

	// 4, 5. Token sentinels that escaped the auth gate, for example from
	// direct Verify calls. The gate itself wraps these before they get here.
	if errors.Is(err, token.ErrInvalid) {
		return fiber.StatusUnauthorized, "Invalid token"
	}
	if errors.Is(err, token.ErrExpired) {
		return fiber.StatusUnauthorized, "Token expired"
	}

	// 6. Rate-limit marker.
	if classified && appErr.Code == "RATE_LIMITED" {
		return fiber.StatusTooManyRequests, appErr.Message
	}

	// 7. Unreachable dependencies.
	if connectivityFailure(err) {
		return fiber.StatusServiceUnavailable, "Service temporarily unavailable"
	}

	// 8. Classified errors keep their status; everything else is a 500.
	if classified {
		status := appErr.Status
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		message := appErr.Message
		if message == "" {
			message = "Server Error"
		}
		return status, message
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}
	message := err.Error()
	if message == "" {
		message = "Server Error"
	}
	return fiber.StatusInternalServerError, message
}

// duplicateViolation reports uniqueness conflicts and picks the most
// specific message available. A repository that already classified the
// conflict keeps its message; raw driver errors get the canonical one.
func duplicateViolation(err error) (bool, string) {
	msg := "Duplicate field value entered"

	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == "DUPLICATE_FIELD" {
		if appErr.Message != "" {
			msg = appErr.Message
		}
		return true, msg
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true, msg
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true, msg
	}
	// SQLite (test profile) reports constraint failures as plain strings.
	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "unique constraint") || strings.Contains(lowered, "duplicate key") {
		return true, msg
	}
	return false, msg
}

// connectivityFailure reports a DB or Redis transport failure. Postgres
// class 08 covers broken and refused connections; net.OpError covers the
// dial path for both stores.
func connectivityFailure(err error) bool {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == "SERVICE_UNAVAILABLE" {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return true
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr *net.OpError
	return errors.As(err, &netErr)
}

// handleError is the single normalization point for request failures.
// Handlers return their errors instead of writing responses; Fiber
// routes them here. The stack always reaches the structured log and only
// leaves the process outside production.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, message := normalizeError(err)

	stack := err.Error()
	if status >= fiber.StatusInternalServerError {
		stack = fmt.Sprintf("%v\n%s", err, debug.Stack())
	}

	ctx := c.UserContext()
	observability.RecordErrorInContext(ctx, err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(ctx, "request failed",
			"status", status, "message", message, "stack", stack)
	} else {
		middleware.Logger.WarnContext(ctx, "request rejected",
			"status", status, "message", message, "stack", stack)
	}

	env := models.Envelope{Status: "error", Message: message}
	if s.config == nil || !s.config.IsProduction() {
		env.Stack = stack
	}
	return c.Status(status).JSON(env)
}
