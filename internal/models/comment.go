package models

import "time"

// Comment represents a comment or reply on a post. ParentCommentID is not a
// declared foreign key: stored data may reference parents that were purged or
// that live on another post, and readers must tolerate that.
type Comment struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	PostID          uint    `gorm:"not null;index" json:"post_id"`
	MemberID        *uint   `gorm:"index" json:"member_id,omitempty"`
	Member          *Member `gorm:"foreignKey:MemberID" json:"-"`
	ParentCommentID *uint   `gorm:"index" json:"parent_comment_id,omitempty"`
	Content         string  `gorm:"type:text;not null" json:"content"`
	SoftDelete
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
