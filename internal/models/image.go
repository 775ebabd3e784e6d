package models

import "time"

// Image is a picture attached to a post. OrderIndex is unique among the live
// images of a post; the store does not enforce it.
type Image struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PostID     uint   `gorm:"not null;index" json:"post_id"`
	MemberID   *uint  `gorm:"index" json:"member_id,omitempty"`
	URL        string `gorm:"size:512;not null" json:"url"`
	ObjectKey  string `gorm:"size:255" json:"-"`
	OrderIndex int    `gorm:"not null" json:"order_index"`
	SoftDelete
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
