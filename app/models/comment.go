package models

import "time"

// Comment is a lesson comment. Replies reference their parent; only one
// level of threading is rendered.
type Comment struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	LessonID         uint      `gorm:"not null;index" json:"lesson_id"`
	ParentID         *uint     `gorm:"default:null;index" json:"parent_id,omitempty"`
	Content          string    `gorm:"type:text;not null" json:"content" validate:"required,max=5000"`
	TimestampSeconds *uint     `gorm:"default:null" json:"timestamp_seconds,omitempty"`
	IsEdited         bool      `gorm:"default:false" json:"is_edited"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User    *User     `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Replies []Comment `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"replies,omitempty"`
}
