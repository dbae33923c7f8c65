package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// EventKind is the provider-neutral classification of a webhook delivery.
type EventKind string

const (
	EventSubscriptionCreated EventKind = "subscription.created"
	EventSubscriptionUpdated EventKind = "subscription.updated"
	EventSubscriptionDeleted EventKind = "subscription.deleted"
	EventUnknown             EventKind = "unknown"
)

// SubscriptionState is the normalized subscription snapshot shared by both
// providers. Metadata carries the local user id under the "userId" key.
type SubscriptionState struct {
	SubscriptionID     string
	CustomerID         string
	ProductID          string
	Status             enums.SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Metadata           map[string]string
}

// WebhookEvent is a verified, normalized webhook delivery.
type WebhookEvent struct {
	ID           string
	Kind         EventKind
	RawType      string
	Subscription *SubscriptionState
}

// CustomerInfo identifies a provider-side customer.
type CustomerInfo struct {
	CustomerID string
	Email      string
}

// CreateCustomerParams carries the inputs for provider customer creation.
type CreateCustomerParams struct {
	UserID string
	Email  string
	Name   string
}

// CheckoutParams carries the inputs for a hosted checkout session.
type CheckoutParams struct {
	CustomerID string
	UserID     string
	ProductID  string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider checkout result handed to the client.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentIntentParams carries the inputs for a one-off payment.
type PaymentIntentParams struct {
	CustomerID  string
	UserID      string
	AmountCents int64
	Currency    string
}

// PaymentIntentInfo is the provider payment intent result.
type PaymentIntentInfo struct {
	IntentID     string
	ClientSecret string
	Status       string
}

// Provider abstracts the payment backend. Exactly one implementation is
// active per deployment, selected by configuration.
type Provider interface {
	Kind() enums.BillingProvider

	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*CustomerInfo, error)
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntentInfo, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionState, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)

	// VerifyWebhook authenticates the delivery and normalizes it. A nil
	// error with Kind == EventUnknown means a valid but unhandled event.
	VerifyWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// UserIDFromMetadata extracts the local user id stamped into provider
// customer/subscription metadata at checkout time.
func UserIDFromMetadata(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	return metadata["userId"]
}
