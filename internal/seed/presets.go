package seed

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"

	"inkwell/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed presets/*.yml
var presetFS embed.FS

// Preset is a curated dataset shipped with the binary as a YAML
// document under presets/. Applying the same preset twice leaves the
// database unchanged.
type Preset struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Users       []PresetUser `yaml:"users"`
	Posts       []PresetPost `yaml:"posts"`
}

// PresetUser declares an account to upsert. An empty password means the
// shared development password password123.
type PresetUser struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Admin     bool   `yaml:"admin"`
}

// PresetPost declares a post owned by Author, a username from the same
// preset. Published defaults to true when omitted.
type PresetPost struct {
	Author    string          `yaml:"author"`
	Title     string          `yaml:"title"`
	Content   string          `yaml:"content"`
	Tags      []string        `yaml:"tags"`
	Published *bool           `yaml:"published"`
	Comments  []PresetComment `yaml:"comments"`
	LikedBy   []string        `yaml:"liked_by"`
}

// PresetComment declares a comment by Author on the enclosing post.
type PresetComment struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

// Presets lists the names of all embedded presets.
func Presets() []string {
	entries, err := fs.ReadDir(presetFS, "presets")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yml"))
	}
	sort.Strings(names)
	return names
}

// LoadPreset parses the embedded preset with the given name.
func LoadPreset(name string) (*Preset, error) {
	raw, err := presetFS.ReadFile("presets/" + name + ".yml")
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q (have: %s)", name, strings.Join(Presets(), ", "))
	}
	var p Preset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse preset %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// ApplyPreset loads the named embedded preset and applies it.
func ApplyPreset(db *gorm.DB, name string) error {
	p, err := LoadPreset(name)
	if err != nil {
		return err
	}
	return Apply(db, p)
}

// ApplyPreset applies a named preset through this seeder's database handle.
func (s *Seeder) ApplyPreset(name string) error {
	return ApplyPreset(s.db, name)
}

// Apply upserts the preset's users, then its posts with their comments
// and likes.
func Apply(db *gorm.DB, p *Preset) error {
	byName := make(map[string]models.User, len(p.Users))

	for _, item := range p.Users {
		err := db.Transaction(func(tx *gorm.DB) error {
			password := item.Password
			if password == "" {
				password = "password123"
			}
			hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			user := models.User{
				Username:  item.Username,
				Email:     item.Email,
				Password:  string(hashed),
				FirstName: item.FirstName,
				LastName:  item.LastName,
				IsAdmin:   item.Admin,
			}
			// Re-applying must not clobber a password the user changed,
			// so it stays out of the conflict assignments.
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "username"}},
				DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "is_admin", "updated_at"}),
			}).Create(&user).Error; err != nil {
				return err
			}
			if user.ID == 0 {
				if err := tx.Where("username = ?", item.Username).First(&user).Error; err != nil {
					return err
				}
			}
			byName[item.Username] = user
			return nil
		})
		if err != nil {
			return fmt.Errorf("preset %s: user %s: %w", p.Name, item.Username, err)
		}
	}

	for _, item := range p.Posts {
		author, ok := byName[item.Author]
		if !ok {
			return fmt.Errorf("preset %s: post %q: unknown author %q", p.Name, item.Title, item.Author)
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			published := true
			if item.Published != nil {
				published = *item.Published
			}

			var post models.Post
			findErr := tx.Where("user_id = ? AND title = ?", author.ID, item.Title).First(&post).Error
			switch {
			case errors.Is(findErr, gorm.ErrRecordNotFound):
				post = models.Post{
					Title:     item.Title,
					Content:   item.Content,
					Tags:      item.Tags,
					Published: published,
					UserID:    author.ID,
				}
				if err := tx.Create(&post).Error; err != nil {
					return err
				}
			case findErr != nil:
				return findErr
			}

			for _, c := range item.Comments {
				commenter, ok := byName[c.Author]
				if !ok {
					return fmt.Errorf("unknown comment author %q", c.Author)
				}
				var existing models.Comment
				findErr := tx.Where("post_id = ? AND user_id = ? AND content = ?", post.ID, commenter.ID, c.Content).
					First(&existing).Error
				switch {
				case errors.Is(findErr, gorm.ErrRecordNotFound):
					comment := models.Comment{
						Content: c.Content,
						UserID:  commenter.ID,
						PostID:  post.ID,
					}
					if err := tx.Create(&comment).Error; err != nil {
						return err
					}
				case findErr != nil:
					return findErr
				}
			}

			for _, likerName := range item.LikedBy {
				liker, ok := byName[likerName]
				if !ok {
					return fmt.Errorf("unknown liker %q", likerName)
				}
				like := models.Like{
					UserID: liker.ID,
					PostID: post.ID,
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
					return err
				}
			}

			return nil
		})
		if err != nil {
			return fmt.Errorf("preset %s: post %q: %w", p.Name, item.Title, err)
		}
	}

	log.Printf("preset %s applied: %d users, %d posts", p.Name, len(p.Users), len(p.Posts))
	return nil
}
