package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"inkwell/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Post content kinds understood by BuildPostWithTemplate.
const (
	PostKindStory    = "story"
	PostKindNote     = "note"
	PostKindListicle = "listicle"
	PostKindQuestion = "question"
)

// maxTitleLen mirrors the posts.title column width.
const maxTitleLen = 100

var postTags = []string{
	"writing", "craft", "golang", "backend", "travel", "books", "music",
	"food", "review", "howto", "opinion", "notes", "life", "work",
}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the seeder, presets and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	r    *rand.Rand
	// synthetic ID counter for DryRun mode, doubles as a username
	// uniqueness suffix
	nextID uint

	hashOnce     sync.Once
	passwordHash string
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	// seed gofakeit for richer content
	gofakeit.Seed(time.Now().UnixNano())
	//nolint:gosec // Weak random number generator is fine for seeding
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Factory{db: db, opts: opts, r: r, nextID: 1000}
}

// password returns the shared seed password, hashed once per factory
// unless SkipBcrypt asks for plain text.
func (f *Factory) password() string {
	if f.opts.SkipBcrypt {
		return "password123"
	}
	f.hashOnce.Do(func() {
		hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		f.passwordHash = string(hashed)
	})
	return f.passwordHash
}

func clampTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxTitleLen {
		s = strings.TrimSpace(s[:maxTitleLen-3]) + "..."
	}
	return s
}

func (f *Factory) pickTags() []string {
	n := f.r.Intn(4) // 0 to 3 tags
	if n == 0 {
		return nil
	}
	tags := make([]string, 0, n)
	for _, i := range f.r.Perm(len(postTags))[:n] {
		tags = append(tags, postTags[i])
	}
	return tags
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	f.nextID++

	// Suffix keeps generated usernames unique within a run and under
	// the 20 character column limit.
	base := strings.ToLower(gofakeit.Username())
	if len(base) > 14 {
		base = base[:14]
	}
	username := fmt.Sprintf("%s%03d", base, f.nextID%1000)

	user := &models.User{
		Username:  username,
		Email:     fmt.Sprintf("%s@example.com", username),
		Password:  f.password(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Avatar:    fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s", user.Username)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPostWithTemplate constructs a post of the given content kind
// without persisting it. Useful for batching.
func (f *Factory) BuildPostWithTemplate(user *models.User, kind string, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		Title:     clampTitle(gofakeit.Sentence(5)),
		Content:   gofakeit.Paragraph(2, 4, 8, "\n\n"),
		UserID:    user.ID,
		Published: true,
		Tags:      f.pickTags(),
	}

	// realistic created_at spread
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	daysBack := f.r.Intn(maxDays)
	hoursBack := f.r.Intn(24)
	minsBack := f.r.Intn(60)
	post.CreatedAt = time.Now().Add(-time.Duration(daysBack)*24*time.Hour - time.Duration(hoursBack)*time.Hour - time.Duration(minsBack)*time.Minute)

	switch kind {
	case PostKindNote:
		post.Content = gofakeit.Sentence(12)
	case PostKindListicle:
		n := 3 + f.r.Intn(5)
		lines := make([]string, 0, n+1)
		lines = append(lines, gofakeit.Sentence(8))
		for i := 0; i < n; i++ {
			lines = append(lines, "- "+gofakeit.Sentence(4))
		}
		post.Title = clampTitle(fmt.Sprintf("%d notes on %s", n, gofakeit.Noun()))
		post.Content = strings.Join(lines, "\n")
	case PostKindQuestion:
		q := gofakeit.Question()
		if len(q) > maxTitleLen {
			q = strings.TrimRight(q[:maxTitleLen-1], " ,") + "?"
		}
		post.Title = q
		post.Content = gofakeit.Paragraph(1, 2, 8, "\n")
	}

	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePostsBatch persists multiple posts, chunked by BatchSize.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			f.nextID++
			p.ID = f.nextID
		}
		log.Printf("[dry-run] CreatePostsBatch: %d posts (no DB write)", len(posts))
		return nil
	}
	batch := f.opts.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return f.db.CreateInBatches(posts, batch).Error
}

// CreatePost constructs and persists a story-kind `models.Post` for the
// given user.
func (f *Factory) CreatePost(user *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	return f.CreatePostWithTemplate(user, PostKindStory, overrides...)
}

// CreatePostWithTemplate creates a post for the given user of a
// specific content kind (story, note, listicle, question).
func (f *Factory) CreatePostWithTemplate(user *models.User, kind string, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPostWithTemplate(user, kind, overrides...)

	if f.opts.DryRun {
		f.nextID++
		post.ID = f.nextID
		log.Printf("[dry-run] CreatePost: kind=%s user=%d title=%q", kind, post.UserID, post.Title)
		return post, nil
	}

	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment constructs and persists a sample `models.Comment` on the
// provided post authored by the provided user.
func (f *Factory) CreateComment(user *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		Content: gofakeit.Sentence(8),
		UserID:  user.ID,
		PostID:  post.ID,
	}

	for _, override := range overrides {
		override(comment)
	}

	if f.opts.DryRun {
		f.nextID++
		comment.ID = f.nextID
		return comment, nil
	}

	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLike persists a like from `user` on `post`. The unique index on
// (user_id, post_id) rejects repeats, so callers pick distinct users
// per post.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	if f.opts.DryRun {
		return nil
	}
	like := &models.Like{
		UserID: user.ID,
		PostID: post.ID,
	}
	return f.db.Create(like).Error
}
