package server

import (
	"time"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateComment handles POST /api/posts/:id/comments
// @Summary Comment on a post
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{content=string} true "Comment"
// @Success 201 {object} models.Envelope{data=models.Comment}
// @Failure 400 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("Invalid request body")
	}

	created, err := s.commentSvc().CreateComment(ctx, service.CreateCommentInput{
		UserID:  userID,
		PostID:  postID,
		Content: req.Content,
	})
	if err != nil {
		return err
	}

	commentsCount := 0
	authorID := uint(0)
	if post, postErr := s.postRepo.GetByID(ctx, postID, userID); postErr == nil {
		commentsCount = post.CommentsCount
		authorID = post.UserID
	}

	s.publishBroadcastEvent(EventCommentCreated, map[string]interface{}{
		"post_id":        postID,
		"comment":        created,
		"comments_count": commentsCount,
		"updated_at":     time.Now().UTC().Format(time.RFC3339Nano),
	})

	// The author also gets a direct notification, unless they commented
	// on their own post.
	if authorID != 0 && authorID != userID {
		s.publishUserEvent(authorID, EventCommentCreated, map[string]interface{}{
			"post_id":      postID,
			"comment_id":   created.ID,
			"commenter_id": userID,
		})
	}

	return success(c, fiber.StatusCreated, created)
}

// GetComments handles GET /api/posts/:id/comments
// @Summary List comments on a post
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Envelope{data=[]models.Comment}
// @Failure 404 {object} models.Envelope
// @Router /posts/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := s.optionalUserID(c)

	comments, err := s.commentSvc().ListComments(c.UserContext(), postID, userID)
	if err != nil {
		return err
	}

	return success(c, fiber.StatusOK, comments)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
// @Summary Delete a comment
// @Description Comment authors delete their own; admins may delete any
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param commentId path int true "Comment ID"
// @Success 200 {object} models.Envelope
// @Failure 403 {object} models.Envelope
// @Failure 404 {object} models.Envelope
// @Router /posts/{id}/comments/{commentId} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	commentID, err := parseID(c, "commentId")
	if err != nil {
		return err
	}

	if _, err := s.commentSvc().DeleteComment(c.UserContext(), service.DeleteCommentInput{
		UserID:    userID,
		CommentID: commentID,
	}); err != nil {
		return err
	}

	return successMessage(c, fiber.StatusOK, "Comment deleted successfully")
}

func (s *Server) commentSvc() *service.CommentService {
	if s.commentService == nil {
		s.commentService = service.NewCommentService(s.commentRepo, s.postRepo, s.isAdminByUserID)
	}
	return s.commentService
}
