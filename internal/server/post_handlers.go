package server

import (
	"time"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{title=string,content=string,tags=[]string,published=bool} true "Post"
// @Success 201 {object} models.Envelope{data=models.Post}
// @Failure 400 {object} models.Envelope
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req struct {
		Title     string   `json:"title"`
		Content   string   `json:"content"`
		Tags      []string `json:"tags"`
		Published *bool    `json:"published"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}

	post, err := s.postSvc().CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:    userID,
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		Published: req.Published,
	})
	if err != nil {
		return err
	}

	// Drafts stay invisible until published; announcing them would leak
	// their existence.
	if post.Published {
		s.publishBroadcastEvent(EventPostCreated, map[string]interface{}{
			"post_id":    post.ID,
			"author_id":  post.UserID,
			"title":      post.Title,
			"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}

	return success(c, fiber.StatusCreated, post)
}

// GetPosts handles GET /api/posts
// @Summary List published posts
// @Tags posts
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Param sort query string false "Sort order: newest (default) or popular"
// @Success 200 {object} models.Envelope{data=[]models.Post}
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	userID, _ := s.optionalUserID(c)

	posts, err := s.postSvc().ListPosts(c.UserContext(), service.ListPostsInput{
		Limit:         page.Limit,
		Offset:        page.Offset,
		CurrentUserID: userID,
		Sort:          c.Query("sort"),
	})
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, posts)
}

// SearchPosts handles GET /api/posts/search?q=...
// @Summary Search posts by title, content or tag
// @Tags posts
// @Produce json
// @Param q query string true "Search query"
// @Success 200 {object} models.Envelope{data=[]models.Post}
// @Failure 400 {object} models.Envelope
// @Router /posts/search [get]
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	q := c.Query("q")
	page := parsePagination(c, 10)
	userID, _ := s.optionalUserID(c)

	posts, err := s.postSvc().SearchPosts(c.UserContext(), q, page.Limit, page.Offset, userID)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, posts)
}

// GetPost handles GET /api/posts/:id
// @Summary Get a single post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Envelope{data=models.Post}
// @Failure 404 {object} models.Envelope
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := s.optionalUserID(c)

	post, err := s.postSvc().GetPost(c.UserContext(), id, userID)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, post)
}

// GetUserPosts handles GET /api/users/:id/posts
// @Summary List a user's posts
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.Envelope{data=[]models.Post}
// @Router /users/{id}/posts [get]
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	authorID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	page := parsePagination(c, 20)
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	posts, err := s.postSvc().GetUserPosts(c.UserContext(), authorID, page.Limit, page.Offset, userID)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, posts)
}

// UpdatePost handles PUT /api/posts/:id
// @Summary Update a post
// @Description Only the author may update; authorship never changes
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{title=string,content=string,tags=[]string,published=bool} true "Fields to update"
// @Success 200 {object} models.Envelope{data=models.Post}
// @Failure 403 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Title     string   `json:"title"`
		Content   string   `json:"content"`
		Tags      []string `json:"tags"`
		Published *bool    `json:"published"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}

	post, err := s.postSvc().UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID:    userID,
		PostID:    postID,
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		Published: req.Published,
	})
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete a post
// @Description Authors delete their own posts; admins may delete any
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := s.postSvc().DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: userID,
		PostID: postID,
	}); err != nil {
		return err
	}

	return successMessage(c, fiber.StatusOK, "Post deleted successfully")
}

// LikePost handles POST /api/posts/:id/like
// The endpoint toggles: liking an already-liked post removes the like.
// @Summary Toggle a like
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} models.Envelope{data=models.Post}
// @Failure 404 {object} models.Envelope
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	post, err := s.postSvc().ToggleLike(c.UserContext(), userID, postID)
	if err != nil {
		return err
	}

	s.publishReactionEvent(post)

	return success(c, fiber.StatusOK, post)
}

// UnlikePost handles DELETE /api/posts/:id/like
// Removing a like that does not exist succeeds without changing counts.
// @Summary Remove a like
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} models.Envelope{data=models.Post}
// @Failure 404 {object} models.Envelope
// @Router /posts/{id}/like [delete]
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	post, err := s.postSvc().UnlikePost(c.UserContext(), userID, postID)
	if err != nil {
		return err
	}

	s.publishReactionEvent(post)

	return success(c, fiber.StatusOK, post)
}

// GetPostLikes handles GET /api/posts/:id/likes
// @Summary List users who liked a post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Envelope{data=[]models.Like}
// @Failure 404 {object} models.Envelope
// @Router /posts/{id}/likes [get]
func (s *Server) GetPostLikes(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := s.optionalUserID(c)

	likes, err := s.postSvc().ListLikes(c.UserContext(), postID, userID)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, likes)
}

func (s *Server) publishReactionEvent(post *models.Post) {
	s.publishBroadcastEvent(EventPostReactionUpdated, map[string]interface{}{
		"post_id":        post.ID,
		"likes_count":    post.LikesCount,
		"comments_count": post.CommentsCount,
		"updated_at":     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) postSvc() *service.PostService {
	if s.postService == nil {
		s.postService = service.NewPostService(s.postRepo, s.isAdminByUserID)
	}
	return s.postService
}
