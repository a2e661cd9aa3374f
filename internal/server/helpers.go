package server

import (
	"context"
	"fmt"

	"inkwell/internal/middleware"
	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
)

// success writes the uniform success envelope around data.
func success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(models.Envelope{Status: "success", Data: data})
}

// successMessage writes a success envelope that carries only a message.
func successMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(models.Envelope{Status: "success", Message: message})
}

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPaginationLimit = 100

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// Malformed values wrap models.ErrMalformedID so the error normalizer
// answers with the same 404 an unknown resource gets; the response never
// confirms whether an id was well-formed.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", models.ErrMalformedID, param, c.Params(param))
	}
	return uint(id), nil
}

// currentUserID reads the authenticated user's id placed in locals by the
// auth gate.
func currentUserID(c *fiber.Ctx) (uint, error) {
	id, ok := c.Locals("userID").(uint)
	if !ok || id == 0 {
		return 0, models.NewUnauthorizedError(middleware.MsgNoToken)
	}
	return id, nil
}

// isAdminByUserID reports whether the user holds the admin role. It reads
// the database directly rather than the cached user so a demotion takes
// effect on the next request.
func (s *Server) isAdminByUserID(ctx context.Context, userID uint) (bool, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("is_admin").First(&user, userID).Error; err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}
