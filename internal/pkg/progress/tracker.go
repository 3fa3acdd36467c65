// Package progress records lesson watch state and drives the downstream
// side effects of completion: badge checks, course-completion detection and
// the one-shot completion email marker.
package progress

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/internal/pkg/badges"
	"github.com/dieselnoi/academy/internal/pkg/cache"
	"github.com/dieselnoi/academy/internal/pkg/events"
)

const completionEmailDedupeTTL = 7 * 24 * time.Hour

// Repository abstracts the persistence the tracker needs.
type Repository interface {
	GetProgress(userID, lessonID uint) (*models.LessonProgress, error)
	SaveProgress(p *models.LessonProgress) error
	GetLesson(lessonID uint) (*models.Lesson, error)

	LessonCount(courseID uint) (int64, error)
	CompletedLessonCount(userID, courseID uint) (int64, error)
	ListCourseProgress(userID, courseID uint) ([]models.LessonProgress, error)
	SubscribedCourseIDs(userID uint) ([]uint, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed progress repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetProgress(userID, lessonID uint) (*models.LessonProgress, error) {
	var p models.LessonProgress
	err := r.db.Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) SaveProgress(p *models.LessonProgress) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) GetLesson(lessonID uint) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := r.db.First(&lesson, lessonID).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *gormRepository) LessonCount(courseID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, err
}

func (r *gormRepository) CompletedLessonCount(userID, courseID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.LessonProgress{}).
		Joins("JOIN lessons ON lessons.id = lesson_progresses.lesson_id").
		Where("lesson_progresses.user_id = ? AND lessons.course_id = ? AND lesson_progresses.is_completed = ?", userID, courseID, true).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) ListCourseProgress(userID, courseID uint) ([]models.LessonProgress, error) {
	var rows []models.LessonProgress
	err := r.db.
		Joins("JOIN lessons ON lessons.id = lesson_progresses.lesson_id").
		Where("lesson_progresses.user_id = ? AND lessons.course_id = ?", userID, courseID).
		Find(&rows).Error
	return rows, err
}

func (r *gormRepository) SubscribedCourseIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status IN ?", userID,
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Order("course_id ASC").
		Pluck("course_id", &ids).Error
	return ids, err
}

// Tracker is the write side of lesson progress.
type Tracker struct {
	repo       Repository
	badges     *badges.Engine
	counter    cache.Counter
	dispatcher *events.Dispatcher
	now        func() time.Time
}

// NewTracker wires a progress tracker. The badge engine and dispatcher are
// optional; a nil counter disables completion-email dedupe (every
// completion then re-fires the event).
func NewTracker(repo Repository, engine *badges.Engine, counter cache.Counter, dispatcher *events.Dispatcher) *Tracker {
	return &Tracker{
		repo:       repo,
		badges:     engine,
		counter:    counter,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// NewTrackerFromDB wires a tracker and badge engine from a GORM DB handle.
func NewTrackerFromDB(db *gorm.DB, counter cache.Counter, dispatcher *events.Dispatcher) *Tracker {
	return NewTracker(NewRepository(db), badges.NewEngineFromDB(db), counter, dispatcher)
}

// SetClock overrides the tracker clock, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// MarkCompleteResult reports what a mark-complete call changed.
type MarkCompleteResult struct {
	Progress        *models.LessonProgress `json:"progress"`
	NewBadges       []models.Badge         `json:"new_badges,omitempty"`
	CourseCompleted bool                   `json:"course_completed"`
}

// MarkComplete flags a lesson as finished, recording the watch time the
// caller reports. Writes are last-write-wins: a repeat call replaces the
// watch time and refreshes the completion timestamp. Badge checks run
// synchronously; the course-completion event fires once per dedupe window
// when the lesson closes out its course.
func (t *Tracker) MarkComplete(userID, lessonID, watchTimeSeconds uint) (*MarkCompleteResult, error) {
	lesson, err := t.repo.GetLesson(lessonID)
	if err != nil {
		return nil, err
	}

	p, err := t.upsert(userID, lessonID, func(p *models.LessonProgress) {
		now := t.now()
		p.IsCompleted = true
		p.CompletedAt = &now
		p.WatchTimeSeconds = watchTimeSeconds
	})
	if err != nil {
		return nil, err
	}

	result := &MarkCompleteResult{Progress: p}

	if t.badges != nil {
		earned, err := t.badges.CheckAndAward(userID)
		if err != nil {
			log.Printf("progress: badge check for user %d failed: %v", userID, err)
		}
		result.NewBadges = earned
	}

	completed, err := t.courseFinished(userID, lesson.CourseID)
	if err != nil {
		return result, err
	}
	if completed && t.shouldAnnounceCompletion(userID, lesson.CourseID) {
		result.CourseCompleted = true
		if t.dispatcher != nil {
			t.dispatcher.Publish(events.CourseCompleted{UserID: userID, CourseID: lesson.CourseID})
		}
	}
	return result, nil
}

// UpdateWatchTime upserts watch state for a lesson. Writes are
// last-write-wins; the caller's values replace whatever is stored.
func (t *Tracker) UpdateWatchTime(userID, lessonID uint, watchTimeSeconds, lastPositionSeconds uint) (*models.LessonProgress, error) {
	if _, err := t.repo.GetLesson(lessonID); err != nil {
		return nil, err
	}
	return t.upsert(userID, lessonID, func(p *models.LessonProgress) {
		p.WatchTimeSeconds = watchTimeSeconds
		p.LastPositionSeconds = lastPositionSeconds
	})
}

func (t *Tracker) upsert(userID, lessonID uint, mutate func(*models.LessonProgress)) (*models.LessonProgress, error) {
	p, err := t.repo.GetProgress(userID, lessonID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = &models.LessonProgress{UserID: userID, LessonID: lessonID}
	} else if err != nil {
		return nil, err
	}
	mutate(p)
	if err := t.repo.SaveProgress(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tracker) courseFinished(userID, courseID uint) (bool, error) {
	total, err := t.repo.LessonCount(courseID)
	if err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	done, err := t.repo.CompletedLessonCount(userID, courseID)
	if err != nil {
		return false, err
	}
	return done >= total, nil
}

// shouldAnnounceCompletion claims the one-shot marker for a finished
// course. The marker expires so a re-completed course (new lessons added,
// finished again) can announce again later.
func (t *Tracker) shouldAnnounceCompletion(userID, courseID uint) bool {
	if t.counter == nil {
		return true
	}
	key := fmt.Sprintf("progress:course-complete:%d:%d", userID, courseID)
	created, err := t.counter.SetNX(key, "1", completionEmailDedupeTTL)
	if err != nil {
		log.Printf("progress: completion dedupe for user %d course %d failed: %v", userID, courseID, err)
		return false
	}
	return created
}

// CourseProgress summarizes a user's standing in one course.
type CourseProgress struct {
	CourseID         uint                    `json:"course_id"`
	TotalLessons     int64                   `json:"total_lessons"`
	CompletedLessons int64                   `json:"completed_lessons"`
	Percentage       float64                 `json:"percentage"`
	Lessons          []models.LessonProgress `json:"lessons"`
}

// CourseProgress computes per-course progress with the percentage rounded
// to one decimal. A course with no lessons reads as 0%.
func (t *Tracker) CourseProgress(userID, courseID uint) (*CourseProgress, error) {
	total, err := t.repo.LessonCount(courseID)
	if err != nil {
		return nil, err
	}
	done, err := t.repo.CompletedLessonCount(userID, courseID)
	if err != nil {
		return nil, err
	}
	rows, err := t.repo.ListCourseProgress(userID, courseID)
	if err != nil {
		return nil, err
	}

	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(done)/float64(total)*1000) / 10
	}
	return &CourseProgress{
		CourseID:         courseID,
		TotalLessons:     total,
		CompletedLessons: done,
		Percentage:       pct,
		Lessons:          rows,
	}, nil
}

// AllCourseProgress reports progress for every course the user holds an
// active or trialing subscription to.
func (t *Tracker) AllCourseProgress(userID uint) ([]CourseProgress, error) {
	courseIDs, err := t.repo.SubscribedCourseIDs(userID)
	if err != nil {
		return nil, err
	}

	out := make([]CourseProgress, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		cp, err := t.CourseProgress(userID, courseID)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}
