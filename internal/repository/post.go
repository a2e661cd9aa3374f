package repository

import (
	"context"
	"errors"
	"strings"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error)
	GetByUserID(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error)
	List(ctx context.Context, limit, offset int, currentUserID uint, sort string) ([]*models.Post, error)
	Search(ctx context.Context, query string, limit, offset int, currentUserID uint) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	ToggleLike(ctx context.Context, userID, postID uint) (liked bool, likesCount int64, err error)
	Unlike(ctx context.Context, userID, postID uint) (likesCount int64, err error)
	ListLikes(ctx context.Context, postID uint) ([]*models.Like, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db      *gorm.DB
	monitor *observability.Monitor
	log     *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB, monitor *observability.Monitor) PostRepository {
	return &postRepository{
		db:      db,
		monitor: monitor,
		log:     observability.NewRepoLogger("posts"),
	}
}

func (r *postRepository) track(operation string) func() {
	if r.monitor == nil {
		return func() {}
	}
	return r.monitor.TrackQuery(operation, "posts")
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer r.track("create")()

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"post_id": post.ID, "user_id": post.UserID})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint, currentUserID uint) (*models.Post, error) {
	defer r.track("get_by_id")()

	var post models.Post
	fetch := func() error {
		if err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
			Preload("User").
			First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Post", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	}

	var err error
	if currentUserID == 0 {
		// The anonymous projection is identical for everyone, so it is safe to cache.
		err = cache.CacheAside(ctx, cache.PostKey(id), &post, cache.PostTTL, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID uint, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	defer r.track("get_by_user_id")()

	var posts []*models.Post
	q := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		Where("user_id = ?", userID)
	if currentUserID != userID {
		// Drafts stay private to their author.
		q = q.Where("published = ?", true)
	}
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int, currentUserID uint, sort string) ([]*models.Post, error) {
	defer r.track("list")()

	var posts []*models.Post
	base := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		Where("published = ?", true)
	err := r.applySort(base, sort).
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// applySort appends the ORDER BY clause for the requested sort type.
// likes_count is a SELECT alias from applyPostDetails; both PostgreSQL and
// SQLite allow referencing it in ORDER BY within the same query level.
func (r *postRepository) applySort(db *gorm.DB, sort string) *gorm.DB {
	switch sort {
	case "top":
		return db.Order("likes_count DESC, created_at DESC")
	default: // "new" and anything unrecognized
		return db.Order("created_at DESC")
	}
}

func (r *postRepository) Search(ctx context.Context, query string, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	defer r.track("search")()
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "search", "posts")
	defer span.End()

	var posts []*models.Post
	like := "%" + strings.ToLower(query) + "%"
	err := r.applyPostDetails(r.db.WithContext(ctx), currentUserID).
		Preload("User").
		Where("published = ?", true).
		Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", like, like).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		span.RecordError(err)
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// applyPostDetails adds subqueries to fetch counts and liked status in a single query.
func (r *postRepository) applyPostDetails(db *gorm.DB, currentUserID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.deleted_at IS NULL) AS comments_count, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS likes_count"

	if currentUserID != 0 {
		return db.Select(selectQuery+", EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS liked", currentUserID)
	}

	return db.Select(selectQuery + ", FALSE AS liked")
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	defer r.track("update")()

	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		r.log.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, post.ID)
	r.log.LogUpdate(ctx, map[string]interface{}{"post_id": post.ID})
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	defer r.track("delete")()

	if err := r.db.WithContext(ctx).Delete(&models.Post{}, id).Error; err != nil {
		r.log.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, id)
	r.log.LogDelete(ctx, map[string]interface{}{"post_id": id})
	return nil
}

// ToggleLike flips the like state for (userID, postID) inside one
// transaction and returns the resulting state and count. The unique index
// on (user_id, post_id) plus ON CONFLICT DO NOTHING keeps concurrent
// toggles from ever producing duplicate rows.
func (r *postRepository) ToggleLike(ctx context.Context, userID, postID uint) (bool, int64, error) {
	defer r.track("toggle_like")()
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "toggle_like", "likes")
	defer span.End()

	var liked bool
	var count int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			like := models.Like{UserID: userID, PostID: postID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			liked = true
		}

		return tx.Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		span.RecordError(err)
		r.log.LogError(ctx, err, "toggle_like")
		return false, 0, models.NewInternalError(err)
	}

	cache.InvalidatePost(ctx, postID)
	return liked, count, nil
}

// Unlike removes the caller's like if present. Removing a like that does
// not exist is a no-op, so the operation is idempotent.
func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) (int64, error) {
	defer r.track("unlike")()

	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "unlike")
		return 0, models.NewInternalError(err)
	}

	cache.InvalidatePost(ctx, postID)
	return count, nil
}

func (r *postRepository) ListLikes(ctx context.Context, postID uint) ([]*models.Like, error) {
	defer r.track("list_likes")()

	var likes []*models.Like
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&likes).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return likes, nil
}
