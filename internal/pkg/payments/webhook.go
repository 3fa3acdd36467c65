package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dieselnoi/academy/app/models"
)

// Webhook event types the backend reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

const signatureTolerance = 5 * time.Minute

// VerifyStripeWebhookSignature checks a Stripe-Signature header
// ("t=<unix>,v1=<hex hmac>,...") against the raw payload. The timestamp in
// the header is part of the signed message and must be recent.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string, now time.Time) bool {
	secret := strings.TrimSpace(webhookSecret)
	header := strings.TrimSpace(signatureHeader)
	if header == "" || secret == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		decoded, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// Event is the subset of a Stripe event payload the backend consumes.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a raw webhook body into an Event.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("webhook event missing id or type")
	}
	return &ev, nil
}

// CheckoutSessionObject carries the fields we read from a completed
// checkout session.
type CheckoutSessionObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionObject carries the fields we read from a Stripe subscription.
type SubscriptionObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

// CheckoutSession decodes the event object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSessionObject, error) {
	var obj CheckoutSessionObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// Subscription decodes the event object as a subscription.
func (e *Event) Subscription() (*SubscriptionObject, error) {
	var obj SubscriptionObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// MetadataUint reads a numeric metadata value, 0 when absent or malformed.
func MetadataUint(metadata map[string]string, key string) uint {
	v, err := strconv.ParseUint(metadata[key], 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

// MapSubscriptionStatus translates a Stripe subscription status into the
// local status vocabulary. Unknown statuses map to past_due so access is
// withheld rather than silently granted.
func MapSubscriptionStatus(stripeStatus string) string {
	switch strings.ToLower(strings.TrimSpace(stripeStatus)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "incomplete", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCancelled
	default:
		return models.SubscriptionStatusPastDue
	}
}
