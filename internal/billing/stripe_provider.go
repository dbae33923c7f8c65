package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/subscription"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	pkgstripe "github.com/driftlabs/storefront-backend/pkg/stripe"
)

// StripeProvider implements Provider on top of the Stripe API.
type StripeProvider struct {
	client     *pkgstripe.Client
	successURL string
	cancelURL  string
}

// NewStripeProvider wires the Stripe client into the provider abstraction.
func NewStripeProvider(client *pkgstripe.Client, cfg config.BillingConfig) (*StripeProvider, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &StripeProvider{
		client:     client,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

func (p *StripeProvider) Kind() enums.BillingProvider {
	return enums.BillingProviderStripe
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*CustomerInfo, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	stripeParams := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
	}
	if params.Name != "" {
		stripeParams.Name = stripe.String(params.Name)
	}
	stripeParams.Context = ctx
	stripeParams.AddMetadata("userId", params.UserID)

	created, err := customer.New(stripeParams)
	if err != nil {
		return nil, wrapStripeErr(err, "create stripe customer")
	}
	return &CustomerInfo{CustomerID: created.ID, Email: created.Email}, nil
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.CustomerID == "" || params.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and product are required")
	}

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = p.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = p.cancelURL
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(params.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.ProductID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": params.UserID},
		},
	}
	sessionParams.Context = ctx

	created, err := session.New(sessionParams)
	if err != nil {
		return nil, wrapStripeErr(err, "create stripe checkout session")
	}
	return &CheckoutSession{ID: created.ID, URL: created.URL}, nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntentInfo, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	intentParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if params.CustomerID != "" {
		intentParams.Customer = stripe.String(params.CustomerID)
	}
	intentParams.Context = ctx
	intentParams.AddMetadata("userId", params.UserID)

	created, err := paymentintent.New(intentParams)
	if err != nil {
		return nil, wrapStripeErr(err, "create stripe payment intent")
	}
	return &PaymentIntentInfo{
		IntentID:     created.ID,
		ClientSecret: created.ClientSecret,
		Status:       string(created.Status),
	}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err, "fetch stripe subscription")
	}
	return normalizeStripeSubscription(sub), nil
}

func (p *StripeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionState, error) {
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	var states []SubscriptionState
	iter := subscription.List(params)
	for iter.Next() {
		if state := normalizeStripeSubscription(iter.Subscription()); state != nil {
			states = append(states, *state)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr(err, "list stripe subscriptions")
	}
	return states, nil
}

// CancelSubscription ends the subscription immediately rather than at the
// period end. Stripe emits customer.subscription.deleted in response, which
// is what transitions the stored row.
func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := subscription.Cancel(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err, "cancel stripe subscription")
	}
	return normalizeStripeSubscription(sub), nil
}

func (p *StripeProvider) VerifyWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, header.Get("Stripe-Signature"), p.client.SigningSecret())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature")
	}
	return normalizeStripeEvent(&event)
}

func normalizeStripeEvent(event *stripe.Event) (*WebhookEvent, error) {
	normalized := &WebhookEvent{
		ID:      event.ID,
		Kind:    EventUnknown,
		RawType: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated:
		normalized.Kind = EventSubscriptionCreated
	case stripe.EventTypeCustomerSubscriptionUpdated:
		normalized.Kind = EventSubscriptionUpdated
	case stripe.EventTypeCustomerSubscriptionDeleted:
		normalized.Kind = EventSubscriptionDeleted
	default:
		return normalized, nil
	}

	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode subscription event")
	}
	state := normalizeStripeSubscription(&stripeSub)

	// Deletion events carry the last known status; the record itself is gone.
	if normalized.Kind == EventSubscriptionDeleted {
		state.Status = enums.SubscriptionStatusCanceled
	}
	normalized.Subscription = state
	return normalized, nil
}

func normalizeStripeSubscription(sub *stripe.Subscription) *SubscriptionState {
	if sub == nil {
		return nil
	}

	state := &SubscriptionState{
		SubscriptionID:    sub.ID,
		Status:            mapStripeStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.CanceledAt != 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		state.CanceledAt = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			state.ProductID = item.Price.ID
			if item.Price.Product != nil && item.Price.Product.ID != "" {
				state.ProductID = item.Price.Product.ID
			}
		}
		if item.CurrentPeriodStart != 0 {
			t := time.Unix(item.CurrentPeriodStart, 0).UTC()
			state.CurrentPeriodStart = &t
		}
		if item.CurrentPeriodEnd != 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			state.CurrentPeriodEnd = &t
		}
	}
	return state
}

// mapStripeStatus mirrors whatever Stripe reported. Statuses we do not
// recognize pass through verbatim so they persist as-is and never count as
// entitled.
func mapStripeStatus(raw string) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return enums.SubscriptionStatusNone
	}
	if status, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return status
	}
	return enums.SubscriptionStatus(normalized)
}

// wrapStripeErr keeps the Stripe error code and message in the details so
// checkout failures reach the client with the provider's own diagnosis.
func wrapStripeErr(err error, message string) error {
	wrapped := pkgerrors.Wrap(pkgerrors.CodeProvider, err, message)

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return wrapped
	}
	details := map[string]string{"provider": "stripe"}
	if stripeErr.Code != "" {
		details["code"] = string(stripeErr.Code)
	}
	if stripeErr.Msg != "" {
		details["message"] = stripeErr.Msg
	}
	if stripeErr.Type != "" {
		details["type"] = string(stripeErr.Type)
	}
	return wrapped.WithDetails(details)
}
