package badges

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

type fakeRepo struct {
	completedLessons int64
	completedCourses int64
	publishedCourses int64
	comments         int64

	catalog []models.Badge
	grants  map[[2]uint]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{grants: make(map[[2]uint]bool)}
}

func (r *fakeRepo) addBadge(id uint, name, category string, requirement int64) {
	r.catalog = append(r.catalog, models.Badge{
		ID: id, Name: name, Category: category, RequirementValue: &requirement,
	})
}

func (r *fakeRepo) addUnthresholdBadge(id uint, name, category string) {
	r.catalog = append(r.catalog, models.Badge{ID: id, Name: name, Category: category})
}

func (r *fakeRepo) CompletedLessonCount(userID uint) (int64, error) { return r.completedLessons, nil }
func (r *fakeRepo) CompletedCourseCount(userID uint) (int64, error) { return r.completedCourses, nil }
func (r *fakeRepo) PublishedCourseCount() (int64, error)            { return r.publishedCourses, nil }
func (r *fakeRepo) CommentCount(userID uint) (int64, error)         { return r.comments, nil }

func (r *fakeRepo) ListBadgesByCategory(category string) ([]models.Badge, error) {
	var out []models.Badge
	for _, b := range r.catalog {
		if b.Category == category {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequirementValue == nil || out[j].RequirementValue == nil {
			return out[i].ID < out[j].ID
		}
		return *out[i].RequirementValue < *out[j].RequirementValue
	})
	return out, nil
}

func (r *fakeRepo) GetBadgeByName(name string) (*models.Badge, error) {
	for i := range r.catalog {
		if r.catalog[i].Name == name {
			return &r.catalog[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListUserBadges(userID uint) ([]models.UserBadge, error) {
	var out []models.UserBadge
	for key := range r.grants {
		if key[0] == userID {
			out = append(out, models.UserBadge{UserID: key[0], BadgeID: key[1]})
		}
	}
	return out, nil
}

func (r *fakeRepo) AwardBadge(userID, badgeID uint) (bool, error) {
	key := [2]uint{userID, badgeID}
	if r.grants[key] {
		return false, nil
	}
	r.grants[key] = true
	return true, nil
}

func seedCatalog(r *fakeRepo) {
	r.addBadge(1, "First Steps", models.BadgeCategoryStarter, 1)
	r.addBadge(2, "Getting Warmed Up", models.BadgeCategoryStarter, 5)
	r.addBadge(3, "Committed Student", models.BadgeCategoryStarter, 25)
	r.addUnthresholdBadge(4, models.BadgeNameCourseComplete, models.BadgeCategoryCompletion)
	r.addUnthresholdBadge(5, models.BadgeNameCompletionist, models.BadgeCategoryCompletion)
	r.addBadge(6, "Conversation Starter", models.BadgeCategoryEngagement, 1)
	r.addBadge(7, "Active Voice", models.BadgeCategoryEngagement, 10)
}

func badgeNames(badges []models.Badge) []string {
	names := make([]string, 0, len(badges))
	for _, b := range badges {
		names = append(names, b.Name)
	}
	return names
}

func TestCheckAndAward_StarterThresholds(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	repo.completedLessons = 5
	engine := NewEngine(repo)

	awarded, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"First Steps", "Getting Warmed Up"}, badgeNames(awarded))
}

func TestCheckAndAward_Monotonic(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	repo.completedLessons = 5
	engine := NewEngine(repo)

	first, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A re-check with unchanged counts grants nothing new.
	second, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.Empty(t, second)

	// Crossing the next threshold grants only the new badge.
	repo.completedLessons = 25
	third, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.Equal(t, []string{"Committed Student"}, badgeNames(third))
}

func TestCheckAndAward_EngagementByComments(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	repo.comments = 10
	engine := NewEngine(repo)

	awarded, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Conversation Starter", "Active Voice"}, badgeNames(awarded))
}

func TestCheckAndAward_CourseCompletion(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	repo.completedCourses = 1
	repo.publishedCourses = 3
	engine := NewEngine(repo)

	awarded, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.Equal(t, []string{models.BadgeNameCourseComplete}, badgeNames(awarded))

	// Finishing every published course adds the completionist badge.
	repo.completedCourses = 3
	awarded, err = engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.Equal(t, []string{models.BadgeNameCompletionist}, badgeNames(awarded))
}

func TestCheckAndAward_NoCompletionistWithoutPublishedCourses(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	repo.completedCourses = 1
	repo.publishedCourses = 0
	engine := NewEngine(repo)

	awarded, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.Equal(t, []string{models.BadgeNameCourseComplete}, badgeNames(awarded))
}

func TestCheckAndAward_UnseededCatalogIsSkipped(t *testing.T) {
	repo := newFakeRepo()
	repo.completedCourses = 1
	engine := NewEngine(repo)

	awarded, err := engine.CheckAndAward(7)
	require.NoError(t, err)
	assert.Empty(t, awarded)
}

func TestProgress_ClampsCurrentToTarget(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	repo.completedLessons = 8
	engine := NewEngine(repo)

	_, err := engine.CheckAndAward(7)
	require.NoError(t, err)

	progress, err := engine.Progress(7)
	require.NoError(t, err)

	byName := make(map[string]BadgeProgress, len(progress))
	for _, p := range progress {
		byName[p.Badge.Name] = p
	}

	first := byName["First Steps"]
	assert.True(t, first.Earned)
	assert.Equal(t, int64(1), first.Current)
	assert.Equal(t, int64(1), first.Target)
	assert.Equal(t, 100.0, first.Percentage)

	committed := byName["Committed Student"]
	assert.False(t, committed.Earned)
	assert.Equal(t, int64(8), committed.Current)
	assert.Equal(t, int64(25), committed.Target)
	assert.Equal(t, 32.0, committed.Percentage)
}

func TestProgress_OmitsUnthresholdBadges(t *testing.T) {
	repo := newFakeRepo()
	seedCatalog(repo)
	engine := NewEngine(repo)

	progress, err := engine.Progress(7)
	require.NoError(t, err)
	for _, p := range progress {
		assert.NotEqual(t, models.BadgeCategoryCompletion, p.Badge.Category)
	}
}
