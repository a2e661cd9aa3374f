package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Envelope is the uniform response body: {status, message?, data?}.
// Status is "success" or "error". Stack is only populated for error
// responses outside production.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Stack   string      `json:"stack,omitempty"`
}

// ErrMalformedID marks a resource identifier that could not be parsed.
// The error normalizer maps it to 404, mirroring how unknown ids behave.
var ErrMalformedID = errors.New("malformed resource identifier")

// AppError represents a classified application error. Status carries the
// HTTP status the error normalizer should emit for it.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
		Status:  fiber.StatusNotFound,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Status:  fiber.StatusBadRequest,
	}
}

// NewDuplicateError reports a uniqueness-constraint conflict. These
// surface as 400 alongside validation failures.
func NewDuplicateError(message string) *AppError {
	if message == "" {
		message = "Duplicate field value entered"
	}
	return &AppError{
		Code:    "DUPLICATE_FIELD",
		Message: message,
		Status:  fiber.StatusBadRequest,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: message,
		Status:  fiber.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  fiber.StatusForbidden,
	}
}

func NewRateLimitError(message string) *AppError {
	if message == "" {
		message = "Too many requests. Please try again later."
	}
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: message,
		Status:  fiber.StatusTooManyRequests,
	}
}

// NewUnavailableError reports a downstream dependency (database, Redis)
// that could not be reached.
func NewUnavailableError(err error) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: "Service temporarily unavailable",
		Status:  fiber.StatusServiceUnavailable,
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Server Error",
		Status:  fiber.StatusInternalServerError,
		Err:     err,
	}
}

// RespondWithError writes the error envelope for an already-classified
// failure. The optional stack is included verbatim; callers gate it on
// environment.
func RespondWithError(c *fiber.Ctx, status int, err error, stack ...string) error {
	env := Envelope{Status: "error"}

	var appErr *AppError
	if errors.As(err, &appErr) {
		env.Message = appErr.Message
	} else {
		env.Message = err.Error()
	}
	if env.Message == "" {
		env.Message = "Server Error"
	}
	if len(stack) > 0 {
		env.Stack = stack[0]
	}

	return c.Status(status).JSON(env)
}
