package repository

import (
	"time"

	"github.com/dieselnoi/academy/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Update(user *models.User) error
	Count() (int64, error)
	CountCreatedSince(since time.Time) (int64, error)
}

// CourseRepository defines the interface for course-related database operations
type CourseRepository interface {
	GetByID(id uint) (*models.Course, error)
	GetBySlug(slug string) (*models.Course, error)
	ListPublished() ([]models.Course, error)
	LessonCount(courseID uint) (int64, error)
	Lessons(courseID uint) ([]models.Lesson, error)
	Resources(courseID uint) ([]models.CourseResource, error)
	Save(course *models.Course) error
}

// LessonRepository defines the interface for lesson-related database operations
type LessonRepository interface {
	GetByID(id uint) (*models.Lesson, error)
	SetMuxAsset(lessonID uint, assetID, playbackID string, durationMinutes uint) error
}

// SubscriptionRepository defines the interface for subscription operations
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByUserAndCourse(userID, courseID uint) (*models.Subscription, error)
	GetByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	Update(sub *models.Subscription) error
}

// CommentRepository defines the interface for lesson comment operations
type CommentRepository interface {
	Create(comment *models.Comment) error
	GetByID(id uint) (*models.Comment, error)
	ListByLesson(lessonID uint) ([]models.Comment, error)
	CountByUser(userID uint) (int64, error)
	Update(comment *models.Comment) error
	Delete(id uint) error
}

// ReviewRepository defines the interface for course review operations
type ReviewRepository interface {
	Create(review *models.CourseReview) error
	GetByID(id uint) (*models.CourseReview, error)
	GetByUserAndCourse(userID, courseID uint) (*models.CourseReview, error)
	ListVisibleByCourse(courseID uint) ([]models.CourseReview, error)
	Update(review *models.CourseReview) error
	Delete(id uint) error
}
