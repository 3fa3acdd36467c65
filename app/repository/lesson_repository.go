package repository

import (
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

type lessonRepository struct {
	db *gorm.DB
}

// NewLessonRepository creates a lesson repository backed by GORM
func NewLessonRepository(db *gorm.DB) LessonRepository {
	return &lessonRepository{db: db}
}

func (r *lessonRepository) GetByID(id uint) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := r.db.Preload("Course").First(&lesson, id).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *lessonRepository) SetMuxAsset(lessonID uint, assetID, playbackID string, durationMinutes uint) error {
	return r.db.Model(&models.Lesson{}).Where("id = ?", lessonID).
		Updates(map[string]interface{}{
			"mux_asset_id":     assetID,
			"mux_playback_id":  playbackID,
			"duration_minutes": durationMinutes,
		}).Error
}
