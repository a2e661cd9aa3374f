package service

import (
	"context"
	"strings"

	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/validation"
)

type PostService struct {
	postRepo repository.PostRepository
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type CreatePostInput struct {
	UserID    uint
	Title     string
	Content   string
	Tags      []string
	Published *bool
}

type ListPostsInput struct {
	Limit         int
	Offset        int
	CurrentUserID uint
	Sort          string
}

type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Title   string
	Content string
	Tags    []string
	// Published toggles draft state when non-nil.
	Published *bool
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(
	postRepo repository.PostRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *PostService {
	return &PostService{postRepo: postRepo, isAdmin: isAdmin}
}

// validatePostFields collects every field failure so the response reports
// them all at once, joined with ", ".
func validatePostFields(title, content string, tags []string) error {
	var failures []string
	if err := validation.ValidatePostTitle(title); err != nil {
		failures = append(failures, err.Error())
	}
	if err := validation.ValidatePostContent(content); err != nil {
		failures = append(failures, err.Error())
	}
	if err := validation.ValidateTags(tags); err != nil {
		failures = append(failures, err.Error())
	}
	if len(failures) > 0 {
		return models.NewValidationError(strings.Join(failures, ", "))
	}
	return nil
}

func normalizeRange(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validatePostFields(in.Title, in.Content, in.Tags); err != nil {
		return nil, err
	}

	published := true
	if in.Published != nil {
		published = *in.Published
	}

	post := &models.Post{
		Title:     in.Title,
		Content:   in.Content,
		Tags:      in.Tags,
		Published: published,
		UserID:    in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	return s.postRepo.GetByID(ctx, post.ID, in.UserID)
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	limit, offset := normalizeRange(in.Limit, in.Offset)
	return s.postRepo.List(ctx, limit, offset, in.CurrentUserID, in.Sort)
}

func (s *PostService) SearchPosts(ctx context.Context, query string, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	limit, offset = normalizeRange(limit, offset)
	return s.postRepo.Search(ctx, query, limit, offset, currentUserID)
}

// visiblePost loads a post and applies draft visibility: unpublished
// posts exist only for their author. Everyone else gets the same
// not-found as for an id that never existed.
func (s *PostService) visiblePost(ctx context.Context, postID, currentUserID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID, currentUserID)
	if err != nil {
		return nil, err
	}
	if !post.Published && post.UserID != currentUserID {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	return s.visiblePost(ctx, id, currentUserID)
}

func (s *PostService) GetUserPosts(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	limit, offset = normalizeRange(limit, offset)
	return s.postRepo.GetByUserID(ctx, userID, limit, offset, currentUserID)
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}

	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("Not authorized to update this post")
	}

	if in.Title != "" {
		if err := validation.ValidatePostTitle(in.Title); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		post.Title = in.Title
	}
	if in.Content != "" {
		if err := validation.ValidatePostContent(in.Content); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		post.Content = in.Content
	}
	if in.Tags != nil {
		if err := validation.ValidateTags(in.Tags); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		post.Tags = in.Tags
	}
	if in.Published != nil {
		post.Published = *in.Published
	}

	// UserID is never touched here; authorship is fixed at creation.
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID, in.UserID)
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return err
	}

	if post.UserID != in.UserID {
		if s.isAdmin == nil {
			return models.NewForbiddenError("Not authorized to delete this post")
		}
		admin, err := s.isAdmin(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !admin {
			return models.NewForbiddenError("Not authorized to delete this post")
		}
	}

	return s.postRepo.Delete(ctx, in.PostID)
}

// ToggleLike flips the caller's like and returns the post with the
// count and liked state the toggle transaction observed, so the
// response stays consistent even when toggles race.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (*models.Post, error) {
	if _, err := s.visiblePost(ctx, postID, userID); err != nil {
		return nil, err
	}

	liked, count, err := s.postRepo.ToggleLike(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	post.Liked = liked
	post.LikesCount = int(count)
	return post, nil
}

// UnlikePost removes the caller's like if present. Unliking a post that
// was never liked succeeds and leaves the count unchanged.
func (s *PostService) UnlikePost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	if _, err := s.visiblePost(ctx, postID, userID); err != nil {
		return nil, err
	}

	count, err := s.postRepo.Unlike(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	post.Liked = false
	post.LikesCount = int(count)
	return post, nil
}

func (s *PostService) ListLikes(ctx context.Context, postID, currentUserID uint) ([]*models.Like, error) {
	if _, err := s.visiblePost(ctx, postID, currentUserID); err != nil {
		return nil, err
	}
	return s.postRepo.ListLikes(ctx, postID)
}
