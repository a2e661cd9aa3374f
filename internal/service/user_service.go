package service

import (
	"context"
	"strings"

	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type UpdateUserInput struct {
	CurrentUserID uint
	TargetID      uint
	Username      string
	Email         string
	FirstName     *string
	LastName      *string
	Avatar        string
}

type ChangePasswordInput struct {
	CurrentUserID   uint
	TargetID        uint
	CurrentPassword string
	NewPassword     string
}

type DeleteUserInput struct {
	CurrentUserID uint
	TargetID      uint
}

func NewUserService(
	userRepo repository.UserRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *UserService {
	return &UserService{userRepo: userRepo, isAdmin: isAdmin}
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) SearchUsers(ctx context.Context, query string, limit, offset int) ([]models.User, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	return s.userRepo.Search(ctx, query, limit, offset)
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetUserWithPosts returns the profile together with the user's most
// recent posts, for the profile page.
func (s *UserService) GetUserWithPosts(ctx context.Context, id uint, postsLimit int) (*models.User, error) {
	return s.userRepo.GetByIDWithPosts(ctx, id, postsLimit)
}

// canModerate reports whether actor may act on a resource owned by
// someone else. Without an isAdmin hook nobody can.
func (s *UserService) canModerate(ctx context.Context, actorID uint) (bool, error) {
	if s.isAdmin == nil {
		return false, nil
	}
	return s.isAdmin(ctx, actorID)
}

func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*models.User, error) {
	if in.TargetID != in.CurrentUserID {
		admin, err := s.canModerate(ctx, in.CurrentUserID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, models.NewForbiddenError("Not authorized to update this user")
		}
	}

	user, err := s.userRepo.GetByID(ctx, in.TargetID)
	if err != nil {
		return nil, err
	}

	if in.Username != "" {
		if err := validation.ValidateUsername(in.Username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = in.Username
	}
	if in.Email != "" {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Email = email
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword is strictly owner-only. Admins cannot change another
// user's password through this path because it requires the current one.
func (s *UserService) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	if in.TargetID != in.CurrentUserID {
		return models.NewForbiddenError("Not authorized to update this user")
	}

	if in.CurrentPassword == "" || in.NewPassword == "" {
		return models.NewValidationError("Current and new password are required")
	}

	user, err := s.userRepo.GetByID(ctx, in.TargetID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)); err != nil {
		return models.NewUnauthorizedError("Current password is incorrect")
	}

	if err := validation.ValidatePassword(in.NewPassword); err != nil {
		return models.NewValidationError(err.Error())
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}

	user.Password = string(hashed)
	return s.userRepo.Update(ctx, user)
}

func (s *UserService) DeleteUser(ctx context.Context, in DeleteUserInput) error {
	if in.TargetID != in.CurrentUserID {
		admin, err := s.canModerate(ctx, in.CurrentUserID)
		if err != nil {
			return err
		}
		if !admin {
			return models.NewForbiddenError("Not authorized to delete this user")
		}
	}

	if _, err := s.userRepo.GetByID(ctx, in.TargetID); err != nil {
		return err
	}
	return s.userRepo.Delete(ctx, in.TargetID)
}

// SetAdmin flips the admin flag on an account. Callers gate access; the
// admin routes and the operator CLI both land here.
func (s *UserService) SetAdmin(ctx context.Context, targetID uint, isAdmin bool) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	user.IsAdmin = isAdmin
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
