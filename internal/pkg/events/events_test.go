package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dieselnoi/academy/app/models"
)

func TestDispatcher_PublishInRegistrationOrder(t *testing.T) {
	d := NewDispatcher()

	var order []string
	d.Subscribe(NameUserRegistered, func(interface{}) { order = append(order, "first") })
	d.Subscribe(NameUserRegistered, func(interface{}) { order = append(order, "second") })

	d.Publish(UserRegistered{User: &models.User{ID: 1}})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcher_HandlerPanicDoesNotStopOthers(t *testing.T) {
	d := NewDispatcher()

	called := false
	d.Subscribe(NameCourseCompleted, func(interface{}) { panic("boom") })
	d.Subscribe(NameCourseCompleted, func(interface{}) { called = true })

	d.Publish(CourseCompleted{UserID: 1, CourseID: 2})
	assert.True(t, called, "a panicking handler must not block the rest")
}

func TestDispatcher_UnsubscribedEventIsDropped(t *testing.T) {
	d := NewDispatcher()
	d.Publish(ReviewChanged{CourseID: 1})
}

func TestDispatcher_UnknownEventTypeIgnored(t *testing.T) {
	d := NewDispatcher()
	d.Publish("not an event")
}

func TestName(t *testing.T) {
	tests := []struct {
		event interface{}
		want  string
	}{
		{UserRegistered{}, NameUserRegistered},
		{SubscriptionActivated{}, NameSubscriptionActivated},
		{CourseCompleted{}, NameCourseCompleted},
		{ReviewChanged{}, NameReviewChanged},
		{ReferralSignedUp{}, NameReferralSignedUp},
		{ReferralCreditIssued{}, NameReferralCreditIssued},
		{42, ""},
	}

	for _, tt := range tests {
		if got := Name(tt.event); got != tt.want {
			t.Fatalf("Name(%T) = %q, want %q", tt.event, got, tt.want)
		}
	}
}
