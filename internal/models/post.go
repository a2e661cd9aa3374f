package models

import (
	"time"

	"gorm.io/gorm"
)

// Post represents a post in the Inkwell application.
type Post struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Title     string   `gorm:"not null;size:100" json:"title"`
	Content   string   `gorm:"type:text;not null" json:"content"`
	Tags      []string `gorm:"serializer:json" json:"tags"`
	// Published carries no gorm default tag: false must reach the
	// insert for drafts, and a default would drop the zero value.
	Published bool `gorm:"not null" json:"published"`
	UserID    uint     `gorm:"not null;index" json:"user_id"`
	User      User     `gorm:"foreignKey:UserID" json:"user"`
	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"->;-:migration" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int `gorm:"->;-:migration" json:"comments_count"`
	// Liked indicates whether the current requesting user liked this post (computed)
	Liked     bool           `gorm:"->;-:migration" json:"liked"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
