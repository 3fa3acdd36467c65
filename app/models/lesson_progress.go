package models

import "time"

// LessonProgress tracks a user's watch state for a single lesson. Rows are
// upserted on watch-time and mark-complete calls and never deleted.
type LessonProgress struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UserID              uint       `gorm:"not null;uniqueIndex:ux_progress_user_lesson,priority:1" json:"user_id"`
	LessonID            uint       `gorm:"not null;uniqueIndex:ux_progress_user_lesson,priority:2;index" json:"lesson_id"`
	IsCompleted         bool       `gorm:"default:false;index" json:"is_completed"`
	CompletedAt         *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	WatchTimeSeconds    uint       `gorm:"default:0" json:"watch_time_seconds"`
	LastPositionSeconds uint       `gorm:"default:0" json:"last_position_seconds"`
	LastWatchedAt       time.Time  `gorm:"autoUpdateTime" json:"last_watched_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// LessonUnlock is an admin-created override that bypasses a lesson's drip
// unlock date for one specific user.
type LessonUnlock struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:ux_unlocks_user_lesson,priority:1" json:"user_id"`
	LessonID   uint      `gorm:"not null;uniqueIndex:ux_unlocks_user_lesson,priority:2" json:"lesson_id"`
	UnlockedAt time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}
