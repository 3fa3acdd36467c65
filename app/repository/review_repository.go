package repository

import (
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a review repository backed by GORM
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(review *models.CourseReview) error {
	return r.db.Create(review).Error
}

func (r *reviewRepository) GetByID(id uint) (*models.CourseReview, error) {
	var review models.CourseReview
	if err := r.db.First(&review, id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) GetByUserAndCourse(userID, courseID uint) (*models.CourseReview, error) {
	var review models.CourseReview
	err := r.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) ListVisibleByCourse(courseID uint) ([]models.CourseReview, error) {
	var reviews []models.CourseReview
	err := r.db.Preload("User").
		Where("course_id = ? AND is_hidden = ?", courseID, false).
		Order("is_featured DESC, created_at DESC").
		Find(&reviews).Error
	return reviews, err
}

func (r *reviewRepository) Update(review *models.CourseReview) error {
	return r.db.Save(review).Error
}

func (r *reviewRepository) Delete(id uint) error {
	return r.db.Delete(&models.CourseReview{}, id).Error
}
