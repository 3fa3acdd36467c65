package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieselnoi/academy/app/models"
)

const testSecret = "whsec_test"

func signHeader(payload []byte, secret string, ts time.Time) string {
	timestamp := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeWebhookSignature_Valid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	header := signHeader(payload, testSecret, now)
	assert.True(t, VerifyStripeWebhookSignature(payload, header, testSecret, now))
}

func TestVerifyStripeWebhookSignature_TamperedPayload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := signHeader(payload, testSecret, now)
	tampered := []byte(`{"id":"evt_2"}`)
	assert.False(t, VerifyStripeWebhookSignature(tampered, header, testSecret, now))
}

func TestVerifyStripeWebhookSignature_WrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := signHeader(payload, "whsec_other", now)
	assert.False(t, VerifyStripeWebhookSignature(payload, header, testSecret, now))
}

func TestVerifyStripeWebhookSignature_StaleTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := signHeader(payload, testSecret, now.Add(-6*time.Minute))
	assert.False(t, VerifyStripeWebhookSignature(payload, header, testSecret, now))

	// A future timestamp outside the tolerance is refused as well.
	header = signHeader(payload, testSecret, now.Add(6*time.Minute))
	assert.False(t, VerifyStripeWebhookSignature(payload, header, testSecret, now))

	// Just inside the tolerance passes.
	header = signHeader(payload, testSecret, now.Add(-4*time.Minute))
	assert.True(t, VerifyStripeWebhookSignature(payload, header, testSecret, now))
}

func TestVerifyStripeWebhookSignature_MalformedHeader(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{}`)

	for _, header := range []string{
		"",
		"t=123",
		"v1=deadbeef",
		"t=abc,v1=deadbeef",
		"garbage",
	} {
		assert.False(t, VerifyStripeWebhookSignature(payload, header, testSecret, now),
			"header %q must not verify", header)
	}
	assert.False(t, VerifyStripeWebhookSignature(payload, signHeader(payload, testSecret, now), "", now))
}

func TestVerifyStripeWebhookSignature_SecondSignatureAccepted(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	// An extra bogus v1 entry must not break verification of the good one.
	combined := signHeader(payload, testSecret, now) + ",v1=deadbeef"
	assert.True(t, VerifyStripeWebhookSignature(payload, combined, testSecret, now))
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","status":"active"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventSubscriptionUpdated, ev.Type)

	sub, err := ev.Subscription()
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "active", sub.Status)
}

func TestParseEvent_MissingFields(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"checkout.session.completed"}`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"id":"evt_1"}`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestMetadataUint(t *testing.T) {
	md := map[string]string{"app_user_id": "42", "bad": "x"}
	assert.Equal(t, uint(42), MetadataUint(md, "app_user_id"))
	assert.Zero(t, MetadataUint(md, "bad"))
	assert.Zero(t, MetadataUint(md, "missing"))
	assert.Zero(t, MetadataUint(nil, "app_user_id"))
}

func TestMapSubscriptionStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"active", models.SubscriptionStatusActive},
		{"trialing", models.SubscriptionStatusTrialing},
		{"past_due", models.SubscriptionStatusPastDue},
		{"incomplete", models.SubscriptionStatusPastDue},
		{"unpaid", models.SubscriptionStatusPastDue},
		{"canceled", models.SubscriptionStatusCancelled},
		{"incomplete_expired", models.SubscriptionStatusCancelled},
		{"ACTIVE", models.SubscriptionStatusActive},
		{" trialing ", models.SubscriptionStatusTrialing},
		{"something_new", models.SubscriptionStatusPastDue},
		{"", models.SubscriptionStatusPastDue},
	}

	for _, tt := range tests {
		if got := MapSubscriptionStatus(tt.in); got != tt.want {
			t.Fatalf("MapSubscriptionStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
