package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/internal/pkg/events"
)

// Repository abstracts the persistence the payment service needs.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(eventID uint, processingError string) error

	GetUserByID(userID uint) (*models.User, error)
	GetUserByStripeCustomerID(customerID string) (*models.User, error)
	SaveUser(user *models.User) error

	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	GetSubscriptionByUserAndCourse(userID, courseID uint) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed payments repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return true, event, nil
	}
	var existing models.PaymentWebhookEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).First(&existing).Error; err != nil {
		return false, nil, err
	}
	return false, &existing, nil
}

func (r *gormRepository) MarkWebhookProcessed(eventID uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.PaymentWebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SaveUser(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByUserAndCourse(userID, courseID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// Service synchronizes Stripe state into local subscriptions.
type Service struct {
	repo       Repository
	dispatcher *events.Dispatcher
	now        func() time.Time
}

// NewService creates a payment service from an injected repository.
func NewService(repo Repository, dispatcher *events.Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, now: time.Now}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, dispatcher *events.Dispatcher) *Service {
	return NewService(NewRepository(db), dispatcher)
}

// SetClock overrides the service clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RecordWebhookEvent persists a webhook delivery idempotently. The returned
// boolean is true only for the first delivery of an event ID.
func (s *Service) RecordWebhookEvent(eventID, eventType string, payload []byte, signatureValid bool) (bool, *models.PaymentWebhookEvent, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		sum := sha256.Sum256(payload)
		id = "hash:" + hex.EncodeToString(sum[:])
	}
	event := &models.PaymentWebhookEvent{
		ProviderEventID: id,
		EventType:       strings.TrimSpace(eventType),
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(eventID uint, processingErr error) error {
	if eventID == 0 {
		return errors.New("webhook event id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(eventID, errMsg)
}

// ProcessEvent routes a verified webhook event to its handler. Unknown
// event types are ignored.
func (s *Service) ProcessEvent(ev *Event) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		session, err := ev.CheckoutSession()
		if err != nil {
			return err
		}
		return s.HandleCheckoutCompleted(session)
	case EventSubscriptionUpdated:
		sub, err := ev.Subscription()
		if err != nil {
			return err
		}
		return s.HandleSubscriptionUpdated(sub)
	case EventSubscriptionDeleted:
		sub, err := ev.Subscription()
		if err != nil {
			return err
		}
		return s.HandleSubscriptionDeleted(sub)
	default:
		log.Printf("payments: ignoring webhook event type %s", ev.Type)
		return nil
	}
}

// HandleCheckoutCompleted activates the subscription a completed checkout
// session paid for. User and course come from the session metadata.
func (s *Service) HandleCheckoutCompleted(session *CheckoutSessionObject) error {
	userID := MetadataUint(session.Metadata, "app_user_id")
	courseID := MetadataUint(session.Metadata, "app_course_id")
	if userID == 0 || courseID == 0 {
		return fmt.Errorf("checkout session %s has no user/course metadata", session.ID)
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user.StripeCustomerID == "" && session.Customer != "" {
		user.StripeCustomerID = session.Customer
		if err := s.repo.SaveUser(user); err != nil {
			return err
		}
	}

	sub, err := s.repo.GetSubscriptionByUserAndCourse(userID, courseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = &models.Subscription{
			UserID:    userID,
			CourseID:  courseID,
			StartDate: s.now(),
		}
	} else if err != nil {
		return err
	}

	sub.Status = models.SubscriptionStatusActive
	sub.StripeSubscriptionID = session.Subscription
	sub.EndDate = nil
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(events.SubscriptionActivated{Subscription: sub})
	}
	return nil
}

// HandleSubscriptionUpdated maps the Stripe status onto the local
// subscription. A subscription recovering to active re-fires the
// activation event; downstream handlers are idempotent.
func (s *Service) HandleSubscriptionUpdated(obj *SubscriptionObject) error {
	sub, err := s.repo.GetSubscriptionByStripeID(obj.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Subscription created outside checkout or webhook arrived before
		// checkout.session.completed; the completed event will settle state.
		log.Printf("payments: no local subscription for stripe subscription %s", obj.ID)
		return nil
	}
	if err != nil {
		return err
	}

	wasActive := sub.IsActive()
	sub.Status = MapSubscriptionStatus(obj.Status)
	if sub.Status == models.SubscriptionStatusCancelled {
		now := s.now()
		sub.EndDate = &now
	} else {
		sub.EndDate = nil
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	if !wasActive && sub.IsActive() && s.dispatcher != nil {
		s.dispatcher.Publish(events.SubscriptionActivated{Subscription: sub})
	}
	return nil
}

// HandleSubscriptionDeleted marks the local subscription cancelled.
func (s *Service) HandleSubscriptionDeleted(obj *SubscriptionObject) error {
	sub, err := s.repo.GetSubscriptionByStripeID(obj.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sub.Status = models.SubscriptionStatusCancelled
	now := s.now()
	sub.EndDate = &now
	return s.repo.SaveSubscription(sub)
}
