// Package analytics computes the admin dashboard numbers straight from the
// database. Results are point-in-time reads; the overview is cached briefly
// because it joins the widest.
package analytics

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/internal/pkg/cache"
)

const (
	cacheKeyOverview = "analytics:overview"
	cacheExpiration  = 5 * time.Minute

	activeLearnerWindow = 30 * 24 * time.Hour
	growthWindowDays    = 30
)

// Service answers admin analytics queries.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates an analytics service from a GORM DB handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// SetClock overrides the service clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Overview is the headline dashboard block.
type Overview struct {
	TotalUsers          int64   `json:"total_users"`
	TotalCourses        int64   `json:"total_courses"`
	TotalLessons        int64   `json:"total_lessons"`
	ActiveSubscriptions int64   `json:"active_subscriptions"`
	MRR                 float64 `json:"mrr"`
	ARPU                float64 `json:"arpu"`
}

// Overview computes sitewide totals and revenue. Monthly recurring revenue
// sums the price of every course an active or trialing subscription points
// at; ARPU divides that over paying users.
func (s *Service) Overview() (*Overview, error) {
	if cached, err := cache.Get(cacheKeyOverview); err == nil && cached != "" {
		var o Overview
		if err := json.Unmarshal([]byte(cached), &o); err == nil {
			return &o, nil
		}
	}

	var o Overview
	if err := s.db.Model(&models.User{}).Count(&o.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Course{}).Count(&o.TotalCourses).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Lesson{}).Count(&o.TotalLessons).Error; err != nil {
		return nil, err
	}

	entitling := []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}
	if err := s.db.Model(&models.Subscription{}).
		Where("status IN ?", entitling).
		Count(&o.ActiveSubscriptions).Error; err != nil {
		return nil, err
	}

	var mrr *float64
	if err := s.db.Model(&models.Subscription{}).
		Select("SUM(courses.price)").
		Joins("JOIN courses ON courses.id = subscriptions.course_id").
		Where("subscriptions.status IN ?", entitling).
		Scan(&mrr).Error; err != nil {
		return nil, err
	}
	if mrr != nil {
		o.MRR = *mrr
	}

	var payingUsers int64
	if err := s.db.Model(&models.Subscription{}).
		Where("status IN ?", entitling).
		Distinct("user_id").
		Count(&payingUsers).Error; err != nil {
		return nil, err
	}
	if payingUsers > 0 {
		o.ARPU = o.MRR / float64(payingUsers)
	}

	if raw, err := json.Marshal(&o); err == nil {
		if err := cache.Set(cacheKeyOverview, string(raw), cacheExpiration); err != nil {
			log.Printf("analytics: caching overview failed: %v", err)
		}
	}
	return &o, nil
}

// CourseStats is one course's row in the per-course breakdown.
type CourseStats struct {
	CourseID       uint     `json:"course_id"`
	Title          string   `json:"title"`
	Subscribers    int64    `json:"subscribers"`
	LessonCount    int64    `json:"lesson_count"`
	CompletionRate float64  `json:"completion_rate"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	TotalReviews   uint     `json:"total_reviews"`
}

// Courses breaks engagement down per published course. Completion rate is
// completed progress rows over (subscribers * lessons), as a percentage.
func (s *Service) Courses() ([]CourseStats, error) {
	var courses []models.Course
	if err := s.db.Where("is_published = ?", true).Order("title ASC").Find(&courses).Error; err != nil {
		return nil, err
	}

	entitling := []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}
	out := make([]CourseStats, 0, len(courses))
	for _, course := range courses {
		stats := CourseStats{
			CourseID:      course.ID,
			Title:         course.Title,
			AverageRating: course.AverageRating,
			TotalReviews:  course.TotalReviews,
		}
		if err := s.db.Model(&models.Subscription{}).
			Where("course_id = ? AND status IN ?", course.ID, entitling).
			Count(&stats.Subscribers).Error; err != nil {
			return nil, err
		}
		if err := s.db.Model(&models.Lesson{}).
			Where("course_id = ?", course.ID).
			Count(&stats.LessonCount).Error; err != nil {
			return nil, err
		}

		var completed int64
		if err := s.db.Model(&models.LessonProgress{}).
			Joins("JOIN lessons ON lessons.id = lesson_progresses.lesson_id").
			Where("lessons.course_id = ? AND lesson_progresses.is_completed = ?", course.ID, true).
			Count(&completed).Error; err != nil {
			return nil, err
		}
		denom := stats.Subscribers * stats.LessonCount
		if denom > 0 {
			stats.CompletionRate = float64(completed) / float64(denom) * 100
		}
		out = append(out, stats)
	}
	return out, nil
}

// LessonStats is one lesson's row in the course detail drill-down.
type LessonStats struct {
	LessonID    uint   `json:"lesson_id"`
	Title       string `json:"title"`
	Order       uint   `json:"order"`
	Started     int64  `json:"started"`
	Completed   int64  `json:"completed"`
	AvgWatchSec int64  `json:"avg_watch_seconds"`
}

// CourseDetail drills one course down to per-lesson completion and watch
// time, to show where students drop off.
func (s *Service) CourseDetail(courseID uint) ([]LessonStats, error) {
	var lessons []models.Lesson
	if err := s.db.Where("course_id = ?", courseID).
		Order("lesson_order ASC").Find(&lessons).Error; err != nil {
		return nil, err
	}

	out := make([]LessonStats, 0, len(lessons))
	for _, lesson := range lessons {
		stats := LessonStats{LessonID: lesson.ID, Title: lesson.Title, Order: lesson.Order}
		if err := s.db.Model(&models.LessonProgress{}).
			Where("lesson_id = ?", lesson.ID).
			Count(&stats.Started).Error; err != nil {
			return nil, err
		}
		if err := s.db.Model(&models.LessonProgress{}).
			Where("lesson_id = ? AND is_completed = ?", lesson.ID, true).
			Count(&stats.Completed).Error; err != nil {
			return nil, err
		}
		var avg *float64
		if err := s.db.Model(&models.LessonProgress{}).
			Select("AVG(watch_time_seconds)").
			Where("lesson_id = ?", lesson.ID).
			Scan(&avg).Error; err != nil {
			return nil, err
		}
		if avg != nil {
			stats.AvgWatchSec = int64(*avg)
		}
		out = append(out, stats)
	}
	return out, nil
}

// Engagement is the activity block.
type Engagement struct {
	TotalComments    int64 `json:"total_comments"`
	TotalReviews     int64 `json:"total_reviews"`
	CompletedLessons int64 `json:"completed_lessons"`
	ActiveLearners   int64 `json:"active_learners"`
}

// Engagement counts interaction volume; active learners touched a lesson in
// the last 30 days.
func (s *Service) Engagement() (*Engagement, error) {
	var e Engagement
	if err := s.db.Model(&models.Comment{}).Count(&e.TotalComments).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.CourseReview{}).Count(&e.TotalReviews).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.LessonProgress{}).
		Where("is_completed = ?", true).
		Count(&e.CompletedLessons).Error; err != nil {
		return nil, err
	}
	since := s.now().Add(-activeLearnerWindow)
	if err := s.db.Model(&models.LessonProgress{}).
		Where("last_watched_at >= ?", since).
		Distinct("user_id").
		Count(&e.ActiveLearners).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GrowthPoint is one day's signup count.
type GrowthPoint struct {
	Date    string `json:"date"`
	Signups int64  `json:"signups"`
}

// UserGrowth returns daily signups for the last 30 days, zero-filled so
// charts have a point for every day.
func (s *Service) UserGrowth() ([]GrowthPoint, error) {
	since := s.now().AddDate(0, 0, -(growthWindowDays - 1)).Truncate(24 * time.Hour)

	type row struct {
		Day   string
		Count int64
	}
	var rows []row
	err := s.db.Model(&models.User{}).
		Select("DATE(created_at) AS day, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]int64, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r.Count
	}

	points := make([]GrowthPoint, 0, growthWindowDays)
	for i := 0; i < growthWindowDays; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		points = append(points, GrowthPoint{Date: day, Signups: byDay[day]})
	}
	return points, nil
}

// MaskEmail redacts the local part of an address for display in admin
// listings: "someone@example.com" becomes "s*****e@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + domain
}
