package models

import "time"

// Post represents a post on the board. MemberID becomes nil when the author
// row is removed; the post itself is kept.
type Post struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	MemberID     *uint   `gorm:"index" json:"member_id,omitempty"`
	Member       *Member `gorm:"foreignKey:MemberID" json:"-"`
	Title        string  `gorm:"size:255;not null" json:"title"`
	Content      string  `gorm:"type:text;not null" json:"content"`
	ViewCount    int     `gorm:"not null;default:0" json:"view_count"`
	CommentCount int     `gorm:"not null;default:0" json:"comment_count"`
	// LikeCount is not persisted; filled from the likes table on read.
	LikeCount int `gorm:"-" json:"like_count"`
	SoftDelete
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
