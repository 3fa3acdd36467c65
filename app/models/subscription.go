package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription represents a user's paid subscription to a single course.
// Subscriptions are per-course; holding one course never entitles another.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex:ux_subscriptions_user_course,priority:1" json:"user_id"`
	CourseID             uint       `gorm:"not null;uniqueIndex:ux_subscriptions_user_course,priority:2;index:idx_subscriptions_course_status,priority:1" json:"course_id"`
	Status               string     `gorm:"type:varchar(20);default:'active';index:idx_subscriptions_course_status,priority:2" json:"status"`
	StripeSubscriptionID string     `gorm:"type:varchar(255);default:null;index" json:"-"`
	StartDate            time.Time  `gorm:"not null" json:"start_date"`
	EndDate              *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	User   *User   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Course *Course `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// IsActive reports whether the subscription currently entitles content access.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}
