package server

import (
	"io"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadAvatar handles POST /api/users/:id/avatar
// @Summary Upload a profile avatar
// @Description Accepts a multipart image, normalizes it to 256px WebP and stores it under /media
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param avatar formData file true "Avatar image (JPEG, PNG or WebP)"
// @Success 200 {object} models.Envelope{data=models.User}
// @Failure 400 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Router /users/{id}/avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	currentID, err := currentUserID(c)
	if err != nil {
		return err
	}
	targetID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return models.NewValidationError("No file uploaded")
	}

	src, err := file.Open()
	if err != nil {
		return models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.NewValidationError("Unable to read uploaded file")
	}

	user, err := s.avatarSvc().Upload(c.UserContext(), service.UploadAvatarInput{
		CurrentUserID: currentID,
		TargetID:      targetID,
		Filename:      file.Filename,
		Content:       content,
	})
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, user)
}

func (s *Server) avatarSvc() *service.AvatarService {
	if s.avatarService == nil {
		s.avatarService = service.NewAvatarService(s.userRepo, s.config)
	}
	return s.avatarService
}
