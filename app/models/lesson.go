package models

import "time"

type Lesson struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CourseID        uint       `gorm:"not null;index;uniqueIndex:ux_lessons_course_order,priority:1" json:"course_id"`
	Title           string     `gorm:"type:varchar(255);not null" json:"title" validate:"required,max=255"`
	Description     string     `gorm:"type:text" json:"description"`
	VideoURL        string     `gorm:"type:varchar(500);default:null" json:"video_url,omitempty"`
	MuxAssetID      string     `gorm:"type:varchar(255);default:null" json:"-"`
	MuxPlaybackID   string     `gorm:"type:varchar(255);default:null" json:"-"`
	DurationMinutes uint       `gorm:"default:0" json:"duration_minutes"`
	Order           uint       `gorm:"column:lesson_order;default:0;uniqueIndex:ux_lessons_course_order,priority:2" json:"order"`
	IsFreePreview   bool       `gorm:"default:false" json:"is_free_preview"`
	UnlockDate      *time.Time `gorm:"type:timestamp;default:null" json:"unlock_date,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Course *Course `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// HasVideo reports whether a playable video is attached to this lesson.
func (l *Lesson) HasVideo() bool {
	return l.MuxPlaybackID != "" || l.VideoURL != ""
}

// IsDripLocked reports whether the lesson's scheduled unlock date is still in
// the future at the given time. Manual unlocks are checked separately.
func (l *Lesson) IsDripLocked(now time.Time) bool {
	return l.UnlockDate != nil && l.UnlockDate.After(now)
}
