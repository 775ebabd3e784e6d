package models

import "time"

// Member represents a registered account on the board.
type Member struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Email           string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Nickname        string `gorm:"size:64;uniqueIndex;not null" json:"nickname"`
	PasswordHash    string `gorm:"size:512;not null" json:"-"`
	ProfileImageURL string `gorm:"size:512" json:"profile_image_url"`
	Active          bool   `gorm:"not null" json:"active"`
	SoftDelete
	// Anonymized marks the terminal, one-way identity rewrite.
	Anonymized bool `gorm:"not null;default:false;index" json:"-"`
	// OriginalEmail and OriginalNickname hold the identity captured at
	// withdrawal so restoration never has to parse tagged strings.
	OriginalEmail    string    `gorm:"size:255;index" json:"-"`
	OriginalNickname string    `gorm:"size:64" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
