package repository

import "gorm.io/gorm"

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Course       CourseRepository
	Lesson       LessonRepository
	Subscription SubscriptionRepository
	Comment      CommentRepository
	Review       ReviewRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Course:       NewCourseRepository(db),
		Lesson:       NewLessonRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Comment:      NewCommentRepository(db),
		Review:       NewReviewRepository(db),
	}
}
