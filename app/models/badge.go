package models

import "time"

const (
	BadgeCategoryStarter    = "starter"
	BadgeCategoryCompletion = "completion"
	BadgeCategoryEngagement = "engagement"
	BadgeCategoryWatchTime  = "watch_time"
	BadgeCategorySpeed      = "speed"
	BadgeCategoryStreak     = "streak"
)

// Names of the singleton completion badges.
const (
	BadgeNameCourseComplete = "Course Complete"
	BadgeNameCompletionist  = "Completionist"
)

type Badge struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"uniqueIndex;type:varchar(100);not null" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	Icon             string    `gorm:"type:varchar(50)" json:"icon"`
	Category         string    `gorm:"type:varchar(50);not null;index" json:"category"`
	RequirementValue *int64    `gorm:"default:null" json:"requirement_value,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserBadge records a granted badge. Grants are at-most-once per (user,
// badge) and are never revoked.
type UserBadge struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   uint      `gorm:"not null;uniqueIndex:ux_user_badges,priority:1" json:"user_id"`
	BadgeID  uint      `gorm:"not null;uniqueIndex:ux_user_badges,priority:2" json:"badge_id"`
	EarnedAt time.Time `gorm:"autoCreateTime" json:"earned_at"`

	Badge *Badge `json:"badge,omitempty"`
}
