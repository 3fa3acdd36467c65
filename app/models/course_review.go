package models

import "time"

// CourseReview is a student rating for a course. A user may review a course
// once, and only after completing at least half of its lessons.
type CourseReview struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CourseID   uint      `gorm:"not null;uniqueIndex:ux_reviews_user_course,priority:2;index" json:"course_id"`
	UserID     uint      `gorm:"not null;uniqueIndex:ux_reviews_user_course,priority:1" json:"user_id"`
	Rating     uint      `gorm:"not null" json:"rating" validate:"required,min=1,max=5"`
	ReviewText string    `gorm:"type:text" json:"review_text" validate:"max=2000"`
	IsEdited   bool      `gorm:"default:false" json:"is_edited"`
	IsHidden   bool      `gorm:"default:false;index" json:"-"`
	IsFeatured bool      `gorm:"default:false" json:"is_featured"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// CourseResource is a downloadable file attached to a course (training
// plans, guides). Access follows the course subscription.
type CourseResource struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CourseID    uint      `gorm:"not null;index:idx_resources_course_order,priority:1" json:"course_id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,max=200"`
	Description string    `gorm:"type:text" json:"description"`
	FileURL     string    `gorm:"type:varchar(500);not null" json:"file_url"`
	FileSize    int64     `gorm:"default:0" json:"file_size_bytes"`
	Order       uint      `gorm:"column:resource_order;default:0;index:idx_resources_course_order,priority:2" json:"order"`
	UploadedAt  time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}
