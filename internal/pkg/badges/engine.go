// Package badges awards achievement badges from a user's learning
// activity. Awards are monotonic: a badge once earned is never revoked,
// and re-checking is always safe.
package badges

import (
	"log"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dieselnoi/academy/app/models"
)

// Repository abstracts the queries the badge engine runs.
type Repository interface {
	CompletedLessonCount(userID uint) (int64, error)
	CompletedCourseCount(userID uint) (int64, error)
	PublishedCourseCount() (int64, error)
	CommentCount(userID uint) (int64, error)

	ListBadgesByCategory(category string) ([]models.Badge, error)
	GetBadgeByName(name string) (*models.Badge, error)
	ListUserBadges(userID uint) ([]models.UserBadge, error)

	// AwardBadge grants at most once; the boolean reports whether this
	// call created the grant.
	AwardBadge(userID, badgeID uint) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed badge repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CompletedLessonCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.LessonProgress{}).
		Where("user_id = ? AND is_completed = ?", userID, true).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CompletedCourseCount(userID uint) (int64, error) {
	// A course counts when every one of its lessons has a completed
	// progress row for the user. Courses without lessons never count.
	var count int64
	err := r.db.Raw(`
		SELECT COUNT(*) FROM courses c
		WHERE c.is_published = 1
		  AND EXISTS (SELECT 1 FROM lessons l WHERE l.course_id = c.id)
		  AND NOT EXISTS (
			SELECT 1 FROM lessons l
			LEFT JOIN lesson_progresses lp
			  ON lp.lesson_id = l.id AND lp.user_id = ? AND lp.is_completed = 1
			WHERE l.course_id = c.id AND lp.id IS NULL
		  )`, userID).Scan(&count).Error
	return count, err
}

func (r *gormRepository) PublishedCourseCount() (int64, error) {
	var count int64
	err := r.db.Model(&models.Course{}).
		Where("is_published = ?", true).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CommentCount(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Comment{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) ListBadgesByCategory(category string) ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Where("category = ?", category).
		Order("requirement_value ASC").Find(&badges).Error
	return badges, err
}

func (r *gormRepository) GetBadgeByName(name string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.Where("name = ?", name).First(&badge).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

func (r *gormRepository) ListUserBadges(userID uint) ([]models.UserBadge, error) {
	var grants []models.UserBadge
	err := r.db.Preload("Badge").Where("user_id = ?", userID).
		Order("earned_at DESC").Find(&grants).Error
	return grants, err
}

func (r *gormRepository) AwardBadge(userID, badgeID uint) (bool, error) {
	grant := models.UserBadge{UserID: userID, BadgeID: badgeID}
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Engine evaluates badge criteria and grants what a user has earned.
type Engine struct {
	repo Repository
}

// NewEngine creates a badge engine from an injected repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// NewEngineFromDB creates a badge engine from a GORM DB handle.
func NewEngineFromDB(db *gorm.DB) *Engine {
	return NewEngine(NewRepository(db))
}

// CheckAndAward evaluates every badge category for the user and returns the
// badges granted by this call.
func (e *Engine) CheckAndAward(userID uint) ([]models.Badge, error) {
	var awarded []models.Badge

	granted, err := e.checkThresholdCategory(userID, models.BadgeCategoryStarter, e.repo.CompletedLessonCount)
	if err != nil {
		return awarded, err
	}
	awarded = append(awarded, granted...)

	granted, err = e.checkCompletionBadges(userID)
	if err != nil {
		return awarded, err
	}
	awarded = append(awarded, granted...)

	granted, err = e.checkThresholdCategory(userID, models.BadgeCategoryEngagement, e.repo.CommentCount)
	if err != nil {
		return awarded, err
	}
	awarded = append(awarded, granted...)

	return awarded, nil
}

func (e *Engine) checkThresholdCategory(userID uint, category string, metric func(uint) (int64, error)) ([]models.Badge, error) {
	value, err := metric(userID)
	if err != nil {
		return nil, err
	}

	badges, err := e.repo.ListBadgesByCategory(category)
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge
	for _, badge := range badges {
		if badge.RequirementValue == nil || value < *badge.RequirementValue {
			continue
		}
		created, err := e.repo.AwardBadge(userID, badge.ID)
		if err != nil {
			return awarded, err
		}
		if created {
			log.Printf("badges: user %d earned %q", userID, badge.Name)
			awarded = append(awarded, badge)
		}
	}
	return awarded, nil
}

func (e *Engine) checkCompletionBadges(userID uint) ([]models.Badge, error) {
	completed, err := e.repo.CompletedCourseCount(userID)
	if err != nil {
		return nil, err
	}
	if completed == 0 {
		return nil, nil
	}

	var awarded []models.Badge

	granted, err := e.awardNamed(userID, models.BadgeNameCourseComplete)
	if err != nil {
		return awarded, err
	}
	if granted != nil {
		awarded = append(awarded, *granted)
	}

	published, err := e.repo.PublishedCourseCount()
	if err != nil {
		return awarded, err
	}
	if published > 0 && completed >= published {
		granted, err := e.awardNamed(userID, models.BadgeNameCompletionist)
		if err != nil {
			return awarded, err
		}
		if granted != nil {
			awarded = append(awarded, *granted)
		}
	}
	return awarded, nil
}

func (e *Engine) awardNamed(userID uint, name string) (*models.Badge, error) {
	badge, err := e.repo.GetBadgeByName(name)
	if err != nil {
		// Badge catalog not seeded; skip rather than fail the caller.
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	created, err := e.repo.AwardBadge(userID, badge.ID)
	if err != nil || !created {
		return nil, err
	}
	log.Printf("badges: user %d earned %q", userID, badge.Name)
	return badge, nil
}

// BadgeProgress describes how far a user is toward one badge.
type BadgeProgress struct {
	Badge      models.Badge `json:"badge"`
	Earned     bool         `json:"earned"`
	EarnedAt   *time.Time   `json:"earned_at,omitempty"`
	Current    int64        `json:"current"`
	Target     int64        `json:"target"`
	Percentage float64      `json:"percentage"`
}

// Progress reports the user's standing on every threshold badge. Current is
// clamped to the target so earned badges always display as complete.
func (e *Engine) Progress(userID uint) ([]BadgeProgress, error) {
	grants, err := e.repo.ListUserBadges(userID)
	if err != nil {
		return nil, err
	}
	earnedAt := make(map[uint]time.Time, len(grants))
	for _, g := range grants {
		earnedAt[g.BadgeID] = g.EarnedAt
	}

	categories := []struct {
		name   string
		metric func(uint) (int64, error)
	}{
		{models.BadgeCategoryStarter, e.repo.CompletedLessonCount},
		{models.BadgeCategoryEngagement, e.repo.CommentCount},
	}

	var out []BadgeProgress
	for _, cat := range categories {
		value, err := cat.metric(userID)
		if err != nil {
			return nil, err
		}
		badges, err := e.repo.ListBadgesByCategory(cat.name)
		if err != nil {
			return nil, err
		}
		for _, badge := range badges {
			if badge.RequirementValue == nil {
				continue
			}
			target := *badge.RequirementValue
			current := value
			if current > target {
				current = target
			}
			p := BadgeProgress{Badge: badge, Current: current, Target: target}
			if at, ok := earnedAt[badge.ID]; ok {
				p.Earned = true
				p.EarnedAt = &at
				p.Current = target
			}
			if p.Target > 0 {
				p.Percentage = math.Round(float64(p.Current)/float64(p.Target)*1000) / 10
			}
			out = append(out, p)
		}
	}
	return out, nil
}
