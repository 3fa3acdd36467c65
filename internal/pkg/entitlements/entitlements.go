// Package entitlements decides whether a user may view a lesson's video.
// Denial is a first-class outcome, surfaced as 403 at the API boundary.
package entitlements

import (
	"time"

	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

// Denial and grant reasons returned by Resolve.
const (
	ReasonFreePreview          = "free_preview"
	ReasonSubscribed           = "subscribed"
	ReasonLocked               = "locked"
	ReasonLoginRequired        = "login_required"
	ReasonSubscriptionRequired = "subscription_required"
)

const playbackTokenTTL = 2 * time.Hour

// Decision is the outcome of an access resolution. PlaybackID is only
// populated when Allowed is true and the lesson carries a video; it is the
// signed credential when a signing key is configured, the raw identifier
// otherwise.
type Decision struct {
	Allowed    bool
	Reason     string
	PlaybackID string
}

// Repository provides the DB lookups the resolver needs.
type Repository interface {
	// HasManualUnlock reports whether an admin unlocked the lesson for the user.
	HasManualUnlock(userID, lessonID uint) (bool, error)
	// HasEntitlingSubscription reports whether the user holds an active or
	// trialing subscription to the course.
	HasEntitlingSubscription(userID, courseID uint) (bool, error)
}

// PlaybackSigner issues time-limited playback credentials. Implementations
// return the raw identifier unchanged when no signing key is configured.
type PlaybackSigner interface {
	SignPlayback(playbackID string, ttl time.Duration) (string, error)
}

// Resolver evaluates the preview, drip and subscription rules for a
// (user, lesson) pair. A zero userID means the requester is anonymous.
type Resolver struct {
	repo   Repository
	signer PlaybackSigner
	now    func() time.Time
}

// NewResolver creates a resolver; signer may be nil when playback
// credentials are not needed (e.g. pure permission checks).
func NewResolver(repo Repository, signer PlaybackSigner) *Resolver {
	return &Resolver{repo: repo, signer: signer, now: time.Now}
}

// NewResolverFromDB creates a resolver backed by GORM.
func NewResolverFromDB(db *gorm.DB, signer PlaybackSigner) *Resolver {
	return NewResolver(NewRepository(db), signer)
}

// SetClock overrides the time source; tests use this for drip dates.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve decides whether the user may view the lesson's video.
//
// The drip check runs first and applies to free previews as well: a lesson
// whose unlock date is still in the future is locked for everyone except
// users holding a manual unlock. After that, free previews are open to
// anyone, and everything else requires login plus an active or trialing
// subscription to the lesson's own course.
func (r *Resolver) Resolve(userID uint, lesson *models.Lesson) (Decision, error) {
	if lesson.IsDripLocked(r.now()) {
		unlocked := false
		if userID != 0 {
			var err error
			unlocked, err = r.repo.HasManualUnlock(userID, lesson.ID)
			if err != nil {
				return Decision{}, err
			}
		}
		if !unlocked {
			return Decision{Allowed: false, Reason: ReasonLocked}, nil
		}
	}

	if lesson.IsFreePreview {
		return r.allow(ReasonFreePreview, lesson)
	}

	if userID == 0 {
		return Decision{Allowed: false, Reason: ReasonLoginRequired}, nil
	}

	subscribed, err := r.repo.HasEntitlingSubscription(userID, lesson.CourseID)
	if err != nil {
		return Decision{}, err
	}
	if !subscribed {
		return Decision{Allowed: false, Reason: ReasonSubscriptionRequired}, nil
	}

	return r.allow(ReasonSubscribed, lesson)
}

func (r *Resolver) allow(reason string, lesson *models.Lesson) (Decision, error) {
	d := Decision{Allowed: true, Reason: reason}
	if lesson.MuxPlaybackID == "" || r.signer == nil {
		d.PlaybackID = lesson.MuxPlaybackID
		return d, nil
	}
	signed, err := r.signer.SignPlayback(lesson.MuxPlaybackID, playbackTokenTTL)
	if err != nil {
		return Decision{}, err
	}
	d.PlaybackID = signed
	return d, nil
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an entitlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) HasManualUnlock(userID, lessonID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.LessonUnlock{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) HasEntitlingSubscription(userID, courseID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND course_id = ? AND status IN ?",
			userID, courseID,
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Count(&count).Error
	return count > 0, err
}
