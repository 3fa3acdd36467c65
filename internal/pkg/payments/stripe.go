package payments

import (
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/dieselnoi/academy/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

// StripeClient wraps the subset of the Stripe REST API the backend needs:
// customers, checkout sessions and the billing portal.
type StripeClient struct {
	http *resty.Client
}

// NewStripeClientFromEnv creates a Stripe client using STRIPE_SECRET_KEY.
func NewStripeClientFromEnv() *StripeClient {
	c := resty.New().
		SetBaseURL(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)).
		SetAuthToken(env.GetEnv("STRIPE_SECRET_KEY", ""))
	return &StripeClient{http: c}
}

type stripeObject struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCustomer creates a Stripe customer for a local user and returns the
// customer ID.
func (c *StripeClient) CreateCustomer(email, name string, userID uint) (string, error) {
	var out stripeObject
	resp, err := c.http.R().
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormData(map[string]string{
			"email":                 email,
			"name":                  name,
			"metadata[app_user_id]": strconv.FormatUint(uint64(userID), 10),
		}).
		SetResult(&out).
		Post("/v1/customers")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("stripe create customer failed: %s", resp.Status())
	}
	return out.ID, nil
}

// CheckoutSession is a newly created Stripe checkout session the browser
// gets redirected to.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a monthly subscription checkout for one
// course. Price is given in minor units (cents). User and course IDs ride
// along as metadata so the webhook can attribute the subscription.
func (c *StripeClient) CreateCheckoutSession(customerID string, userID, courseID uint, courseTitle string, priceMinorUnits int64, successURL, cancelURL string) (*CheckoutSession, error) {
	form := map[string]string{
		"mode":        "subscription",
		"customer":    customerID,
		"success_url": successURL,
		"cancel_url":  cancelURL,

		"line_items[0][quantity]":                                 "1",
		"line_items[0][price_data][currency]":                     "usd",
		"line_items[0][price_data][unit_amount]":                  strconv.FormatInt(priceMinorUnits, 10),
		"line_items[0][price_data][recurring][interval]":          "month",
		"line_items[0][price_data][product_data][name]":           courseTitle,
		"subscription_data[metadata][app_user_id]":                strconv.FormatUint(uint64(userID), 10),
		"subscription_data[metadata][app_course_id]":              strconv.FormatUint(uint64(courseID), 10),
		"metadata[app_user_id]":                                   strconv.FormatUint(uint64(userID), 10),
		"metadata[app_course_id]":                                 strconv.FormatUint(uint64(courseID), 10),
	}

	var out CheckoutSession
	resp, err := c.http.R().
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormData(form).
		SetResult(&out).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stripe create checkout session failed: %s", resp.Status())
	}
	return &out, nil
}

// CreatePortalSession opens a Stripe billing portal session so users can
// manage payment methods and cancellation themselves.
func (c *StripeClient) CreatePortalSession(customerID, returnURL string) (string, error) {
	var out stripeObject
	resp, err := c.http.R().
		SetFormData(map[string]string{
			"customer":   customerID,
			"return_url": returnURL,
		}).
		SetResult(&out).
		Post("/v1/billing_portal/sessions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("stripe create portal session failed: %s", resp.Status())
	}
	return out.URL, nil
}
