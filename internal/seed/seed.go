// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
	// SkipBcrypt stores seed passwords as plain text. Dev fast mode only.
	SkipBcrypt bool
	// DryRun builds entities without touching the database.
	DryRun bool
	// MaxDays bounds how far back generated content is dated.
	MaxDays int
	// BatchSize caps rows per insert when batching posts.
	BatchSize int
}

// distribution describes how generated posts split across content kinds,
// in percentage weights that sum to 100.
type distribution struct {
	Story    int
	Note     int
	Listicle int
	Question int
}

var defaultDistribution = distribution{Story: 50, Note: 30, Listicle: 10, Question: 10}

// CategoryDistributions are the named post-kind mixes selectable from the
// seeder CLI.
var CategoryDistributions = map[string]distribution{
	"qa-heavy": {Story: 30, Note: 30, Listicle: 0, Question: 40},
	"longform": {Story: 60, Note: 20, Listicle: 20, Question: 0},
}

// computeCounts splits total across the distribution's kinds. Rounding
// remainders land in the story bucket.
func computeCounts(total int, d distribution) (story, note, listicle, question int) {
	story = total * d.Story / 100
	note = total * d.Note / 100
	listicle = total * d.Listicle / 100
	question = total * d.Question / 100
	if rem := total - (story + note + listicle + question); rem > 0 {
		story += rem
	}
	return story, note, listicle, question
}

func kindSequence(total int, d distribution) []string {
	story, note, listicle, question := computeCounts(total, d)
	kinds := make([]string, 0, total)
	for _, kc := range []struct {
		kind string
		n    int
	}{
		{PostKindStory, story},
		{PostKindNote, note},
		{PostKindListicle, listicle},
		{PostKindQuestion, question},
	} {
		for i := 0; i < kc.n; i++ {
			kinds = append(kinds, kc.kind)
		}
	}
	return kinds
}

// baseUsernames are fixed development logins present in every seeded
// database, ahead of the generated fill.
var baseUsernames = []string{"iris", "wells", "test"}

// Seeder populates the database with generated users, posts, comments
// and likes.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// Seed populates the database with test data
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("🌱 Starting database seeding with %d users and %d posts...", opts.NumUsers, opts.NumPosts)

	s := NewSeeder(db, opts)

	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			log.Println("⚠️  Warning: Could not clear all existing data, but continuing anyway...")
		}
	}

	users, err := s.SeedSocialMesh(opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d test users created", len(users))

	posts, err := s.SeedEngagement(users, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("✓ %d posts created", len(posts))

	log.Println("🎉 Database seeding completed successfully!")
	return nil
}

// ClearAll removes previously seeded rows. Postgres gets a single
// TRUNCATE; other dialects fall back to ordered deletes.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing existing data...")
	if s.db.Dialector.Name() == "postgres" {
		return s.db.Exec(`TRUNCATE TABLE comments, likes, posts, users RESTART IDENTITY CASCADE;`).Error
	}
	for _, table := range []string{"comments", "likes", "posts", "users"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedSocialMesh creates count users: the fixed base logins for
// predictable sign-in during development plus generated fill. Every
// seed user shares the password password123.
func (s *Seeder) SeedSocialMesh(count int) ([]models.User, error) {
	users := make([]models.User, 0, count)

	if count >= len(baseUsernames) {
		for _, name := range baseUsernames {
			user, err := s.factory.CreateUser(func(u *models.User) {
				u.Username = name
				u.Email = fmt.Sprintf("%s@example.com", name)
			})
			if err != nil {
				log.Printf("Failed to create base user %s: %v", name, err)
				continue
			}
			users = append(users, *user)
		}
	}

	for i := len(users); i < count; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			log.Printf("Failed to create user: %v", err)
			continue
		}
		users = append(users, *user)

		if i > 0 && i%100 == 0 {
			log.Printf("Created %d users...", i)
		}
	}

	return users, nil
}

// SeedEngagement creates numPosts posts spread across users following
// the default kind distribution, then threads comments and likes
// through the published ones. Roughly one post in six stays a draft.
func (s *Seeder) SeedEngagement(users []models.User, numPosts int) ([]models.Post, error) {
	if len(users) == 0 || numPosts <= 0 {
		return nil, nil
	}

	posts := make([]*models.Post, 0, numPosts)
	for i, kind := range kindSequence(numPosts, defaultDistribution) {
		author := users[i%len(users)]
		post := s.factory.BuildPostWithTemplate(&author, kind)
		if i%6 == 5 {
			post.Published = false
		}
		posts = append(posts, post)
	}
	if err := s.factory.CreatePostsBatch(posts); err != nil {
		return nil, err
	}

	var comments, likes int
	for i, post := range posts {
		// Drafts are invisible to everyone but their author and
		// collect no engagement.
		if !post.Published {
			continue
		}

		for j := 0; j < i%4; j++ {
			commenter := users[(i+j+1)%len(users)]
			if _, err := s.factory.CreateComment(&commenter, post); err != nil {
				return nil, err
			}
			comments++
		}

		// Likers must be distinct per post: the unique index on
		// (user_id, post_id) rejects repeats.
		numLikes := i % 6
		if numLikes > len(users) {
			numLikes = len(users)
		}
		for j := 0; j < numLikes; j++ {
			liker := users[(i+j)%len(users)]
			if err := s.factory.CreateLike(&liker, post); err != nil {
				return nil, err
			}
			likes++
		}
	}
	log.Printf("✓ %d comments and %d likes threaded", comments, likes)

	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, *p)
	}
	return out, nil
}

// SeedPostsWithDistribution creates perUser posts for every user using
// the named kind mix from CategoryDistributions.
func (s *Seeder) SeedPostsWithDistribution(users []models.User, perUser int, category string) error {
	d, ok := CategoryDistributions[category]
	if !ok {
		return fmt.Errorf("unknown distribution category %q", category)
	}

	posts := make([]*models.Post, 0, perUser*len(users))
	for ui := range users {
		for i, kind := range kindSequence(perUser, d) {
			post := s.factory.BuildPostWithTemplate(&users[ui], kind)
			if (ui+i)%6 == 5 {
				post.Published = false
			}
			posts = append(posts, post)
		}
	}
	return s.factory.CreatePostsBatch(posts)
}
