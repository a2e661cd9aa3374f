package server

import (
	"context"
	"strings"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetAllUsers handles GET /api/users
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} models.Envelope{data=[]models.User}
// @Router /users [get]
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	page := parsePagination(c, 100)

	users, err := s.userSvc().ListUsers(ctx, page.Limit, page.Offset)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, users)
}

// SearchUsers handles GET /api/users/search?q=...
// @Summary Search users by username or name
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search query"
// @Success 200 {object} models.Envelope{data=[]models.User}
// @Router /users/search [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	q := strings.TrimSpace(c.Query("q"))
	page := parsePagination(c, 20)

	users, err := s.userSvc().SearchUsers(ctx, q, page.Limit, page.Offset)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, users)
}

// GetUserProfile handles GET /api/users/:id
// @Summary User profile with recent posts
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.Envelope{data=models.User}
// @Failure 404 {object} models.Envelope
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	user, err := s.userSvc().GetUserWithPosts(c.UserContext(), id, 10)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, user)
}

// UpdateUser handles PUT /api/users/:id
// @Summary Update a user profile
// @Description Owners update themselves; admins may update anyone
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body object{username=string,email=string,first_name=string,last_name=string,avatar=string} true "Fields to update"
// @Success 200 {object} models.Envelope{data=models.User}
// @Failure 403 {object} models.Envelope
// @Router /users/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	currentID, err := currentUserID(c)
	if err != nil {
		return err
	}
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Username  string  `json:"username"`
		Email     string  `json:"email"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Avatar    string  `json:"avatar"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}

	user, err := s.userSvc().UpdateUser(c.UserContext(), service.UpdateUserInput{
		CurrentUserID: currentID,
		TargetID:      targetID,
		Username:      req.Username,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Avatar:        req.Avatar,
	})
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, user)
}

// ChangePassword handles PUT /api/users/:id/password
// @Summary Change own password
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body object{current_password=string,new_password=string} true "Password change request"
// @Success 200 {object} models.Envelope
// @Failure 401 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /users/{id}/password [put]
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	currentID, err := currentUserID(c)
	if err != nil {
		return err
	}
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}

	if err := s.userSvc().ChangePassword(c.UserContext(), service.ChangePasswordInput{
		CurrentUserID:   currentID,
		TargetID:        targetID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}); err != nil {
		return err
	}

	return successMessage(c, fiber.StatusOK, "Password updated successfully")
}

// DeleteUser handles DELETE /api/users/:id
// @Summary Delete a user account
// @Description Owners delete themselves; admins may delete anyone
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /users/{id} [delete]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	currentID, err := currentUserID(c)
	if err != nil {
		return err
	}
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := s.userSvc().DeleteUser(c.UserContext(), service.DeleteUserInput{
		CurrentUserID: currentID,
		TargetID:      targetID,
	}); err != nil {
		return err
	}

	return successMessage(c, fiber.StatusOK, "User deleted successfully")
}

// PromoteToAdmin handles POST /api/users/:id/promote-admin (admin only)
// Admin check is enforced by AdminRequired middleware on the route.
func (s *Server) PromoteToAdmin(c *fiber.Ctx) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	target, err := s.userSvc().SetAdmin(c.UserContext(), targetID, true)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, fiber.Map{
		"message": "User promoted to admin",
		"user":    target,
	})
}

// DemoteFromAdmin handles POST /api/users/:id/demote-admin (admin only)
// Admin check is enforced by AdminRequired middleware on the route.
func (s *Server) DemoteFromAdmin(c *fiber.Ctx) error {
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	// The development seed grants user 1 admin; losing it would lock
	// every admin route until a reseed.
	if strings.EqualFold(s.config.Env, "development") && targetID == 1 {
		return models.NewValidationError("Cannot demote protected development root admin user")
	}

	target, err := s.userSvc().SetAdmin(c.UserContext(), targetID, false)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, fiber.Map{
		"message": "User demoted from admin",
		"user":    target,
	})
}

func (s *Server) userSvc() *service.UserService {
	if s.userService == nil {
		s.userService = service.NewUserService(s.userRepo, s.isAdminByUserID)
	}
	return s.userService
}
