package models

import "time"

// LikeDeletionReason records why a like was tombstoned.
type LikeDeletionReason string

const (
	// LikeDeletionNone is the reason of a live like.
	LikeDeletionNone LikeDeletionReason = "none"
	// LikeDeletionMemberAction marks a like withdrawn by its member; restorable.
	LikeDeletionMemberAction LikeDeletionReason = "member-action"
	// LikeDeletionPostDeletion marks a like removed with its post; terminal.
	LikeDeletionPostDeletion LikeDeletionReason = "post-deletion"
)

// Like represents a member's like on a post.
// The (PostID, MemberID) pair is unique regardless of deletion state: toggling
// reuses the row.
type Like struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	PostID   uint `gorm:"not null;uniqueIndex:idx_like_post_member" json:"post_id"`
	MemberID uint `gorm:"not null;uniqueIndex:idx_like_post_member" json:"member_id"`
	SoftDelete
	DeletionReason LikeDeletionReason `gorm:"type:varchar(20);not null;default:'none'" json:"deletion_reason"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
