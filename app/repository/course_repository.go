package repository

import (
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository creates a course repository backed by GORM
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(id uint) (*models.Course, error) {
	var course models.Course
	if err := r.db.First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *courseRepository) GetBySlug(slug string) (*models.Course, error) {
	var course models.Course
	err := r.db.Preload("Lessons", func(db *gorm.DB) *gorm.DB {
		return db.Order("lesson_order ASC")
	}).Where("slug = ?", slug).First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *courseRepository) ListPublished() ([]models.Course, error) {
	var courses []models.Course
	err := r.db.Where("is_published = ?", true).
		Order("difficulty ASC, title ASC").
		Find(&courses).Error
	return courses, err
}

func (r *courseRepository) LessonCount(courseID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, err
}

func (r *courseRepository) Lessons(courseID uint) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := r.db.Where("course_id = ?", courseID).Order("lesson_order ASC").Find(&lessons).Error
	return lessons, err
}

func (r *courseRepository) Resources(courseID uint) ([]models.CourseResource, error) {
	var resources []models.CourseResource
	err := r.db.Where("course_id = ?", courseID).
		Order("resource_order ASC, title ASC").
		Find(&resources).Error
	return resources, err
}

func (r *courseRepository) Save(course *models.Course) error {
	return r.db.Save(course).Error
}
