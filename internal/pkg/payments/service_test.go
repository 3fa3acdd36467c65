package payments

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/internal/pkg/events"
)

type fakeRepo struct {
	webhookEvents map[string]*models.PaymentWebhookEvent
	users         map[uint]*models.User
	subscriptions []*models.Subscription

	nextEventID uint
	nextSubID   uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		webhookEvents: make(map[string]*models.PaymentWebhookEvent),
		users:         make(map[uint]*models.User),
	}
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	if existing, ok := r.webhookEvents[event.ProviderEventID]; ok {
		return false, existing, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	r.webhookEvents[event.ProviderEventID] = event
	return true, event, nil
}

func (r *fakeRepo) MarkWebhookProcessed(eventID uint, processingError string) error {
	for _, ev := range r.webhookEvents {
		if ev.ID == eventID {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func (r *fakeRepo) GetUserByID(userID uint) (*models.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeRepo) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	for _, u := range r.users {
		if u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SaveUser(user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeRepo) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	for _, s := range r.subscriptions {
		if s.StripeSubscriptionID == stripeSubscriptionID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetSubscriptionByUserAndCourse(userID, courseID uint) (*models.Subscription, error) {
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.CourseID == courseID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	if sub.ID == 0 {
		r.nextSubID++
		sub.ID = r.nextSubID
		r.subscriptions = append(r.subscriptions, sub)
	}
	return nil
}

func newTestService(repo Repository) (*Service, *events.Dispatcher) {
	dispatcher := events.NewDispatcher()
	svc := NewService(repo, dispatcher)
	svc.SetClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
	return svc, dispatcher
}

func TestRecordWebhookEvent_Idempotent(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	created, ev, err := svc.RecordWebhookEvent("evt_1", "checkout.session.completed", []byte(`{}`), true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "evt_1", ev.ProviderEventID)

	created, again, err := svc.RecordWebhookEvent("evt_1", "checkout.session.completed", []byte(`{}`), true)
	require.NoError(t, err)
	assert.False(t, created, "second delivery of the same event must not create a row")
	assert.Equal(t, ev.ID, again.ID)
}

func TestRecordWebhookEvent_HashFallbackID(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	_, ev, err := svc.RecordWebhookEvent("", "video.asset.ready", []byte(`{"a":1}`), true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ev.ProviderEventID, "hash:"))

	// The same payload hashes to the same ID, so the retry dedupes.
	created, _, err := svc.RecordWebhookEvent("", "video.asset.ready", []byte(`{"a":1}`), true)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestHandleCheckoutCompleted_ActivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, Username: "alice", Email: "alice@example.com"}
	svc, dispatcher := newTestService(repo)

	var activated []*models.Subscription
	dispatcher.Subscribe(events.NameSubscriptionActivated, func(event interface{}) {
		activated = append(activated, event.(events.SubscriptionActivated).Subscription)
	})

	err := svc.HandleCheckoutCompleted(&CheckoutSessionObject{
		ID:           "cs_1",
		Customer:     "cus_1",
		Subscription: "sub_1",
		Metadata:     map[string]string{"app_user_id": "7", "app_course_id": "3"},
	})
	require.NoError(t, err)

	sub, err := repo.GetSubscriptionByUserAndCourse(7, 3)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Nil(t, sub.EndDate)
	assert.Equal(t, "cus_1", repo.users[7].StripeCustomerID)
	require.Len(t, activated, 1)
	assert.Equal(t, sub.ID, activated[0].ID)
}

func TestHandleCheckoutCompleted_MissingMetadata(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	err := svc.HandleCheckoutCompleted(&CheckoutSessionObject{ID: "cs_1"})
	assert.Error(t, err)
}

func TestHandleCheckoutCompleted_KeepsExistingCustomerID(t *testing.T) {
	repo := newFakeRepo()
	repo.users[7] = &models.User{ID: 7, StripeCustomerID: "cus_orig"}
	svc, _ := newTestService(repo)

	err := svc.HandleCheckoutCompleted(&CheckoutSessionObject{
		ID:       "cs_1",
		Customer: "cus_other",
		Metadata: map[string]string{"app_user_id": "7", "app_course_id": "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_orig", repo.users[7].StripeCustomerID)
}

func TestHandleSubscriptionUpdated_PastDueThenRecovers(t *testing.T) {
	repo := newFakeRepo()
	sub := &models.Subscription{
		UserID: 7, CourseID: 3,
		Status:               models.SubscriptionStatusActive,
		StripeSubscriptionID: "sub_1",
	}
	require.NoError(t, repo.SaveSubscription(sub))
	svc, dispatcher := newTestService(repo)

	activations := 0
	dispatcher.Subscribe(events.NameSubscriptionActivated, func(interface{}) { activations++ })

	require.NoError(t, svc.HandleSubscriptionUpdated(&SubscriptionObject{ID: "sub_1", Status: "past_due"}))
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
	assert.Zero(t, activations, "losing access must not fire an activation")

	require.NoError(t, svc.HandleSubscriptionUpdated(&SubscriptionObject{ID: "sub_1", Status: "active"}))
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 1, activations, "recovery to active re-fires the activation event")

	// Staying active does not refire.
	require.NoError(t, svc.HandleSubscriptionUpdated(&SubscriptionObject{ID: "sub_1", Status: "active"}))
	assert.Equal(t, 1, activations)
}

func TestHandleSubscriptionUpdated_CancelledSetsEndDate(t *testing.T) {
	repo := newFakeRepo()
	sub := &models.Subscription{
		UserID: 7, CourseID: 3,
		Status:               models.SubscriptionStatusActive,
		StripeSubscriptionID: "sub_1",
	}
	require.NoError(t, repo.SaveSubscription(sub))
	svc, _ := newTestService(repo)

	require.NoError(t, svc.HandleSubscriptionUpdated(&SubscriptionObject{ID: "sub_1", Status: "canceled"}))
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), *sub.EndDate)
}

func TestHandleSubscriptionUpdated_UnknownSubscriptionIgnored(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	err := svc.HandleSubscriptionUpdated(&SubscriptionObject{ID: "sub_ghost", Status: "active"})
	assert.NoError(t, err)
}

func TestHandleSubscriptionDeleted(t *testing.T) {
	repo := newFakeRepo()
	sub := &models.Subscription{
		UserID: 7, CourseID: 3,
		Status:               models.SubscriptionStatusActive,
		StripeSubscriptionID: "sub_1",
	}
	require.NoError(t, repo.SaveSubscription(sub))
	svc, _ := newTestService(repo)

	require.NoError(t, svc.HandleSubscriptionDeleted(&SubscriptionObject{ID: "sub_1"}))
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.NotNil(t, sub.EndDate)

	require.NoError(t, svc.HandleSubscriptionDeleted(&SubscriptionObject{ID: "sub_ghost"}))
}

func TestProcessEvent_UnknownTypeIgnored(t *testing.T) {
	svc, _ := newTestService(newFakeRepo())

	ev, err := ParseEvent([]byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`))
	require.NoError(t, err)
	assert.NoError(t, svc.ProcessEvent(ev))
}
