package repository

import (
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a comment repository backed by GORM
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(comment *models.Comment) error {
	return r.db.Create(comment).Error
}

func (r *commentRepository) GetByID(id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListByLesson(lessonID uint) ([]models.Comment, error) {
	// Top-level comments with one level of replies preloaded
	var comments []models.Comment
	err := r.db.Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Replies.User").
		Where("lesson_id = ? AND parent_id IS NULL", lessonID).
		Order("created_at DESC").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Comment{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *commentRepository) Update(comment *models.Comment) error {
	return r.db.Save(comment).Error
}

func (r *commentRepository) Delete(id uint) error {
	return r.db.Delete(&models.Comment{}, id).Error
}
