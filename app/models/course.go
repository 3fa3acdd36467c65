package models

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

type Course struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Title        string  `gorm:"type:varchar(255);not null" json:"title" validate:"required,max=255"`
	Description  string  `gorm:"type:text" json:"description"`
	Slug         string  `gorm:"uniqueIndex;type:varchar(255)" json:"slug"`
	Difficulty   string  `gorm:"type:varchar(20);default:'beginner'" json:"difficulty" validate:"oneof=beginner intermediate advanced"`
	Price        float64 `gorm:"type:decimal(10,2);not null" json:"price"`
	ThumbnailURL string  `gorm:"type:varchar(500);default:null" json:"thumbnail_url"`
	IsPublished  bool    `gorm:"default:false;index" json:"is_published"`

	// Cached rating data, refreshed whenever a review changes
	AverageRating *float64 `gorm:"type:decimal(3,2);default:null" json:"average_rating"`
	TotalReviews  uint     `gorm:"default:0" json:"total_reviews"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Lessons []Lesson `gorm:"constraint:OnDelete:CASCADE" json:"lessons,omitempty"`
}

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title to a URL-safe slug.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStripRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// BeforeSave derives the slug from the title when none is set.
func (c *Course) BeforeSave(tx *gorm.DB) error {
	if c.Slug == "" {
		c.Slug = Slugify(c.Title)
	}
	return nil
}

// UpdateRatingCache recalculates average rating and total reviews from all
// non-hidden reviews and persists the result.
func (c *Course) UpdateRatingCache(db *gorm.DB) error {
	var count int64
	if err := db.Model(&CourseReview{}).
		Where("course_id = ? AND is_hidden = ?", c.ID, false).
		Count(&count).Error; err != nil {
		return err
	}

	c.TotalReviews = uint(count)
	if count > 0 {
		var avg float64
		if err := db.Model(&CourseReview{}).
			Where("course_id = ? AND is_hidden = ?", c.ID, false).
			Select("AVG(rating)").Scan(&avg).Error; err != nil {
			return err
		}
		c.AverageRating = &avg
	} else {
		c.AverageRating = nil
	}

	return db.Model(&Course{}).Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"average_rating": c.AverageRating,
			"total_reviews":  c.TotalReviews,
		}).Error
}
