// Package events provides a synchronous in-process domain-event dispatcher.
// Handlers run in registration order inside the publishing request; a
// panicking or failing handler is logged and never fails the primary write.
package events

import (
	"log"
	"sync"

	"github.com/dieselnoi/academy/app/models"
)

// UserRegistered fires after a new user row is committed.
type UserRegistered struct {
	User         *models.User
	ReferralCode string // code supplied at registration, may be empty
}

// SubscriptionActivated fires when a subscription is newly created with
// status active (or trialing).
type SubscriptionActivated struct {
	Subscription *models.Subscription
}

// CourseCompleted fires the first time a user finishes every lesson of a
// course within the dedupe window.
type CourseCompleted struct {
	UserID   uint
	CourseID uint
}

// ReviewChanged fires after a review is created, edited or deleted.
type ReviewChanged struct {
	CourseID uint
}

// ReferralSignedUp fires when a signup is attributed to a referral code.
type ReferralSignedUp struct {
	Referral *models.Referral
}

// ReferralCreditIssued fires when a credit is granted to a referrer.
type ReferralCreditIssued struct {
	Referral *models.Referral
	Credit   *models.ReferralCredit
}

// Event names used as subscription keys.
const (
	NameUserRegistered        = "user.registered"
	NameSubscriptionActivated = "subscription.activated"
	NameCourseCompleted       = "course.completed"
	NameReviewChanged         = "review.changed"
	NameReferralSignedUp      = "referral.signed_up"
	NameReferralCreditIssued  = "referral.credit_issued"
)

// Name returns the subscription key for a known event type.
func Name(event interface{}) string {
	switch event.(type) {
	case UserRegistered:
		return NameUserRegistered
	case SubscriptionActivated:
		return NameSubscriptionActivated
	case CourseCompleted:
		return NameCourseCompleted
	case ReviewChanged:
		return NameReviewChanged
	case ReferralSignedUp:
		return NameReferralSignedUp
	case ReferralCreditIssued:
		return NameReferralCreditIssued
	default:
		return ""
	}
}

// Handler consumes one published event.
type Handler func(event interface{})

// Dispatcher routes published events to subscribed handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the named event.
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// Publish invokes every handler subscribed to the event, recovering from
// panics so side effects stay best-effort.
func (d *Dispatcher) Publish(event interface{}) {
	name := Name(event)
	if name == "" {
		log.Printf("events: dropping unknown event %T", event)
		return
	}

	d.mu.RLock()
	handlers := d.handlers[name]
	d.mu.RUnlock()

	for _, h := range handlers {
		d.invoke(name, h, event)
	}
}

func (d *Dispatcher) invoke(name string, h Handler, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: handler for %s panicked: %v", name, r)
		}
	}()
	h(event)
}
