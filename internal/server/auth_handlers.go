package server

import (
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/validation"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// Register handles POST /api/auth/register
// @Summary Register a new account
// @Description Create a user account and return a signed token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string,first_name=string,last_name=string} true "Registration request"
// @Success 201 {object} models.Envelope{data=object{token=string,user=models.User}}
// @Failure 400 {object} models.Envelope
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return models.NewValidationError(err.Error())
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}

	user := &models.User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hashed),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	// Uniqueness lives in the database; the repository reports conflicts
	// on email or username as one duplicate error.
	if err := s.userRepo.Create(c.UserContext(), user); err != nil {
		return err
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return models.NewInternalError(err)
	}

	return success(c, fiber.StatusCreated, fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate with email and password, returns a signed token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} models.Envelope{data=object{token=string,user=models.User}}
// @Failure 401 {object} models.Envelope
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return models.NewValidationError("Email and password are required")
	}

	// Unknown email and wrong password answer identically so the
	// endpoint cannot be used to probe which emails exist.
	user, err := s.userRepo.GetByEmail(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewUnauthorizedError("Invalid credentials")
	}

	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); cmpErr != nil {
		return models.NewUnauthorizedError("Invalid credentials")
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return models.NewInternalError(err)
	}

	return success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Description Return the account belonging to the presented token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Envelope{data=models.User}
// @Failure 401 {object} models.Envelope
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return models.NewUnauthorizedError(middleware.MsgNoToken)
	}
	return success(c, fiber.StatusOK, user)
}

// Logout handles POST /api/auth/logout
// @Summary Log out
// @Description Revoke the presented token for the remainder of its lifetime
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Envelope
// @Failure 401 {object} models.Envelope
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	jti, _ := c.Locals("tokenJTI").(string)

	// Without Redis there is no blacklist; the token simply runs out its
	// expiry. Logout still succeeds so clients behave the same.
	if s.redis != nil && jti != "" {
		ttl := time.Until(middleware.TokenExpiry(c))
		if ttl > 0 {
			if err := cache.RevokeToken(c.UserContext(), jti, ttl); err != nil {
				return models.NewUnavailableError(err)
			}
		}
	}

	return successMessage(c, fiber.StatusOK, "Logged out successfully")
}
