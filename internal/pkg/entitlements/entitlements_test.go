package entitlements

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieselnoi/academy/app/models"
)

type fakeRepo struct {
	unlocks       map[[2]uint]bool
	subscriptions map[[2]uint]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		unlocks:       make(map[[2]uint]bool),
		subscriptions: make(map[[2]uint]bool),
	}
}

func (r *fakeRepo) HasManualUnlock(userID, lessonID uint) (bool, error) {
	return r.unlocks[[2]uint{userID, lessonID}], nil
}

func (r *fakeRepo) HasEntitlingSubscription(userID, courseID uint) (bool, error) {
	return r.subscriptions[[2]uint{userID, courseID}], nil
}

type fakeSigner struct{}

func (fakeSigner) SignPlayback(playbackID string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("signed:%s:%s", playbackID, ttl), nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newResolver(repo Repository, signer PlaybackSigner) *Resolver {
	r := NewResolver(repo, signer)
	r.SetClock(func() time.Time { return testNow })
	return r
}

func futureDate() *time.Time {
	d := testNow.Add(48 * time.Hour)
	return &d
}

func pastDate() *time.Time {
	d := testNow.Add(-48 * time.Hour)
	return &d
}

func TestResolve_FreePreviewOpenToAnonymous(t *testing.T) {
	r := newResolver(newFakeRepo(), nil)
	lesson := &models.Lesson{ID: 1, CourseID: 10, IsFreePreview: true, MuxPlaybackID: "pb1"}

	d, err := r.Resolve(0, lesson)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonFreePreview, d.Reason)
	assert.Equal(t, "pb1", d.PlaybackID)
}

func TestResolve_DripLockBeatsFreePreview(t *testing.T) {
	r := newResolver(newFakeRepo(), nil)
	lesson := &models.Lesson{ID: 1, CourseID: 10, IsFreePreview: true, UnlockDate: futureDate()}

	d, err := r.Resolve(0, lesson)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLocked, d.Reason)
	assert.Empty(t, d.PlaybackID)
}

func TestResolve_ManualUnlockBypassesDrip(t *testing.T) {
	repo := newFakeRepo()
	repo.unlocks[[2]uint{7, 1}] = true
	repo.subscriptions[[2]uint{7, 10}] = true
	r := newResolver(repo, nil)

	lesson := &models.Lesson{ID: 1, CourseID: 10, UnlockDate: futureDate(), MuxPlaybackID: "pb1"}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonSubscribed, d.Reason)
}

func TestResolve_ManualUnlockDoesNotGrantWithoutSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.unlocks[[2]uint{7, 1}] = true
	r := newResolver(repo, nil)

	// The unlock only lifts the drip lock; the subscription rule still runs.
	lesson := &models.Lesson{ID: 1, CourseID: 10, UnlockDate: futureDate()}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSubscriptionRequired, d.Reason)
}

func TestResolve_PastUnlockDateIsOpen(t *testing.T) {
	repo := newFakeRepo()
	repo.subscriptions[[2]uint{7, 10}] = true
	r := newResolver(repo, nil)

	lesson := &models.Lesson{ID: 1, CourseID: 10, UnlockDate: pastDate()}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestResolve_AnonymousNeedsLogin(t *testing.T) {
	r := newResolver(newFakeRepo(), nil)
	lesson := &models.Lesson{ID: 1, CourseID: 10}

	d, err := r.Resolve(0, lesson)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLoginRequired, d.Reason)
}

func TestResolve_SubscriptionRequired(t *testing.T) {
	r := newResolver(newFakeRepo(), nil)
	lesson := &models.Lesson{ID: 1, CourseID: 10}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSubscriptionRequired, d.Reason)
}

func TestResolve_SubscriptionToOtherCourseDoesNotCount(t *testing.T) {
	repo := newFakeRepo()
	repo.subscriptions[[2]uint{7, 99}] = true
	r := newResolver(repo, nil)

	lesson := &models.Lesson{ID: 1, CourseID: 10}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSubscriptionRequired, d.Reason)
}

func TestResolve_SignedPlaybackWhenSignerPresent(t *testing.T) {
	repo := newFakeRepo()
	repo.subscriptions[[2]uint{7, 10}] = true
	r := newResolver(repo, fakeSigner{})

	lesson := &models.Lesson{ID: 1, CourseID: 10, MuxPlaybackID: "pb1"}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "signed:pb1:2h0m0s", d.PlaybackID)
}

func TestResolve_NoVideoYieldsEmptyPlaybackID(t *testing.T) {
	repo := newFakeRepo()
	repo.subscriptions[[2]uint{7, 10}] = true
	r := newResolver(repo, fakeSigner{})

	lesson := &models.Lesson{ID: 1, CourseID: 10}

	d, err := r.Resolve(7, lesson)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.PlaybackID)
}
