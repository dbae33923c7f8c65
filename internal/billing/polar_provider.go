package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/polar"
)

// PolarProvider implements Provider on top of the Polar REST API.
type PolarProvider struct {
	client     *polar.Client
	successURL string
	cancelURL  string
}

// NewPolarProvider wires the Polar client into the provider abstraction.
func NewPolarProvider(client *polar.Client, cfg config.BillingConfig) (*PolarProvider, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "polar client required")
	}
	return &PolarProvider{
		client:     client,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

func (p *PolarProvider) Kind() enums.BillingProvider {
	return enums.BillingProviderPolar
}

func (p *PolarProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*CustomerInfo, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	created, err := p.client.CreateCustomer(ctx, polar.CreateCustomerRequest{
		Email:    params.Email,
		Name:     params.Name,
		Metadata: map[string]string{"userId": params.UserID},
	})
	if err != nil {
		return nil, err
	}
	return &CustomerInfo{CustomerID: created.ID, Email: created.Email}, nil
}

func (p *PolarProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.CustomerID == "" || params.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and product are required")
	}
	successURL := params.SuccessURL
	if successURL == "" {
		successURL = p.successURL
	}
	created, err := p.client.CreateCheckout(ctx, polar.CreateCheckoutRequest{
		Products:   []string{params.ProductID},
		CustomerID: params.CustomerID,
		SuccessURL: successURL,
		Metadata:   map[string]string{"userId": params.UserID},
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: created.ID, URL: created.URL}, nil
}

// CreatePaymentIntent is not part of the Polar API surface. One-off payments
// go through checkouts instead.
func (p *PolarProvider) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntentInfo, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intents are not supported by polar")
}

func (p *PolarProvider) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	sub, err := p.client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return normalizePolarSubscription(sub), nil
}

func (p *PolarProvider) ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionState, error) {
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	subs, err := p.client.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	states := make([]SubscriptionState, 0, len(subs))
	for i := range subs {
		if state := normalizePolarSubscription(&subs[i]); state != nil {
			states = append(states, *state)
		}
	}
	return states, nil
}

// CancelSubscription revokes the subscription immediately; the ensuing
// subscription.revoked webhook transitions the stored row.
func (p *PolarProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	sub, err := p.client.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return normalizePolarSubscription(sub), nil
}

type polarWebhookEnvelope struct {
	Type string             `json:"type"`
	Data polar.Subscription `json:"data"`
}

func (p *PolarProvider) VerifyWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if err := p.client.VerifyWebhook(payload, header); err != nil {
		return nil, err
	}

	var envelope polarWebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode polar event")
	}

	normalized := &WebhookEvent{
		ID:      header.Get("webhook-id"),
		Kind:    EventUnknown,
		RawType: envelope.Type,
	}

	switch envelope.Type {
	case "subscription.created":
		normalized.Kind = EventSubscriptionCreated
	case "subscription.updated", "subscription.active", "subscription.uncanceled":
		normalized.Kind = EventSubscriptionUpdated
	case "subscription.canceled", "subscription.revoked":
		normalized.Kind = EventSubscriptionDeleted
	default:
		return normalized, nil
	}

	state := normalizePolarSubscription(&envelope.Data)
	if normalized.Kind == EventSubscriptionDeleted {
		state.Status = enums.SubscriptionStatusCanceled
	}
	normalized.Subscription = state
	return normalized, nil
}

var polarStatusAliases = map[string]enums.SubscriptionStatus{
	"revoked": enums.SubscriptionStatusCanceled,
}

func normalizePolarSubscription(sub *polar.Subscription) *SubscriptionState {
	if sub == nil {
		return nil
	}
	return &SubscriptionState{
		SubscriptionID:     sub.ID,
		CustomerID:         sub.CustomerID,
		ProductID:          sub.ProductID,
		Status:             mapPolarStatus(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		Metadata:           sub.Metadata,
	}
}

// mapPolarStatus mirrors whatever Polar reported. Statuses we do not
// recognize pass through verbatim so they persist as-is and never count as
// entitled.
func mapPolarStatus(raw string) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return enums.SubscriptionStatusNone
	}
	if status, ok := polarStatusAliases[normalized]; ok {
		return status
	}
	if status, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return status
	}
	return enums.SubscriptionStatus(normalized)
}
