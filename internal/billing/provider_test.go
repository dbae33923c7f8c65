package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/polar"
	pkgstripe "github.com/driftlabs/storefront-backend/pkg/stripe"
)

const stripeWebhookSecret = "whsec_stripe_test_secret"

func newTestStripeProvider(t *testing.T) *StripeProvider {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "billing-test", Output: io.Discard})
	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{
		APIKey: "sk_test_abc123",
		Secret: stripeWebhookSecret,
		Env:    "test",
	}, logg)
	if err != nil {
		t.Fatalf("new stripe client: %v", err)
	}

	provider, err := NewStripeProvider(client, config.BillingConfig{
		SuccessURL: "https://app.example.com/success",
		CancelURL:  "https://app.example.com/cancel",
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return provider
}

func stripeSignatureHeader(t *testing.T, payload []byte) http.Header {
	t.Helper()

	timestamp := time.Now().Unix()
	signed := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(stripeWebhookSecret))
	mac.Write([]byte(signed))

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return header
}

func stripeSubscriptionEventPayload(eventType, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"type": %q,
		"data": {
			"object": {
				"id": "sub_test_1",
				"status": %q,
				"customer": "cus_test_1",
				"cancel_at_period_end": true,
				"canceled_at": 1700003600,
				"metadata": {"userId": "user-42"},
				"items": {
					"data": [
						{
							"id": "si_test_1",
							"current_period_start": 1700000000,
							"current_period_end": 1702592000,
							"price": {"id": "price_test_1", "product": "prod_test_1"}
						}
					]
				}
			}
		}
	}`, eventType, status))
}

func TestStripeProviderVerifyWebhookNormalizesSubscription(t *testing.T) {
	provider := newTestStripeProvider(t)

	payload := stripeSubscriptionEventPayload("customer.subscription.created", "active")
	event, err := provider.VerifyWebhook(payload, stripeSignatureHeader(t, payload))
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}

	if event.Kind != EventSubscriptionCreated {
		t.Fatalf("expected kind %q, got %q", EventSubscriptionCreated, event.Kind)
	}
	if event.RawType != "customer.subscription.created" {
		t.Fatalf("unexpected raw type %q", event.RawType)
	}
	state := event.Subscription
	if state == nil {
		t.Fatal("expected a normalized subscription")
	}
	if state.SubscriptionID != "sub_test_1" {
		t.Fatalf("unexpected subscription id %q", state.SubscriptionID)
	}
	if state.CustomerID != "cus_test_1" {
		t.Fatalf("unexpected customer id %q", state.CustomerID)
	}
	if state.ProductID != "prod_test_1" {
		t.Fatalf("unexpected product id %q", state.ProductID)
	}
	if state.Status != enums.SubscriptionStatusActive {
		t.Fatalf("unexpected status %q", state.Status)
	}
	if !state.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end to carry through")
	}
	if state.CurrentPeriodStart == nil || state.CurrentPeriodStart.Unix() != 1700000000 {
		t.Fatalf("unexpected period start %v", state.CurrentPeriodStart)
	}
	if state.CurrentPeriodEnd == nil || state.CurrentPeriodEnd.Unix() != 1702592000 {
		t.Fatalf("unexpected period end %v", state.CurrentPeriodEnd)
	}
	if state.CanceledAt == nil || state.CanceledAt.Unix() != 1700003600 {
		t.Fatalf("unexpected canceled at %v", state.CanceledAt)
	}
	if got := UserIDFromMetadata(state.Metadata); got != "user-42" {
		t.Fatalf("unexpected user id from metadata %q", got)
	}
}

func TestStripeProviderVerifyWebhookDeletedForcesCanceled(t *testing.T) {
	provider := newTestStripeProvider(t)

	payload := stripeSubscriptionEventPayload("customer.subscription.deleted", "active")
	event, err := provider.VerifyWebhook(payload, stripeSignatureHeader(t, payload))
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}

	if event.Kind != EventSubscriptionDeleted {
		t.Fatalf("expected kind %q, got %q", EventSubscriptionDeleted, event.Kind)
	}
	if event.Subscription.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("deleted event should force canceled status, got %q", event.Subscription.Status)
	}
}

func TestStripeProviderVerifyWebhookUnknownType(t *testing.T) {
	provider := newTestStripeProvider(t)

	payload := []byte(`{"id": "evt_test_2", "type": "invoice.paid", "data": {"object": {}}}`)
	event, err := provider.VerifyWebhook(payload, stripeSignatureHeader(t, payload))
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}

	if event.Kind != EventUnknown {
		t.Fatalf("expected unknown kind, got %q", event.Kind)
	}
	if event.Subscription != nil {
		t.Fatal("unknown events should not carry a subscription")
	}
}

func TestStripeProviderVerifyWebhookRejectsBadSignature(t *testing.T) {
	provider := newTestStripeProvider(t)

	payload := stripeSubscriptionEventPayload("customer.subscription.created", "active")
	header := http.Header{}
	header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	_, err := provider.VerifyWebhook(payload, header)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestStatusMappingNeverEntitlesUnknownValues(t *testing.T) {
	for name, mapper := range map[string]func(string) enums.SubscriptionStatus{
		"stripe": mapStripeStatus,
		"polar":  mapPolarStatus,
	} {
		t.Run(name, func(t *testing.T) {
			got := mapper("some_future_status")
			if got != enums.SubscriptionStatus("some_future_status") {
				t.Fatalf("expected unknown status to pass through, got %q", got)
			}
			if got.IsEntitled() {
				t.Fatalf("unknown status %q must not be entitled", got)
			}
			if empty := mapper("  "); empty != enums.SubscriptionStatusNone {
				t.Fatalf("expected none for empty status, got %q", empty)
			}
		})
	}

	if got := mapStripeStatus("  Past_Due "); got != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %q", got)
	}
	if got := mapPolarStatus("revoked"); got != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected revoked alias to map to canceled, got %q", got)
	}
}

func TestWrapStripeErrCarriesProviderDetails(t *testing.T) {
	cause := &stripe.Error{
		Code: stripe.ErrorCodeResourceMissing,
		Msg:  "No such price: 'price_missing'",
		Type: stripe.ErrorTypeInvalidRequest,
	}

	typed := pkgerrors.As(wrapStripeErr(cause, "create stripe checkout session"))
	if typed == nil || typed.Code() != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error, got %v", typed)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected map details, got %T", typed.Details())
	}
	if details["code"] != string(stripe.ErrorCodeResourceMissing) {
		t.Fatalf("expected stripe error code in details, got %q", details["code"])
	}
	if details["message"] != "No such price: 'price_missing'" {
		t.Fatalf("expected stripe message in details, got %q", details["message"])
	}

	plain := pkgerrors.As(wrapStripeErr(fmt.Errorf("dial tcp: refused"), "create stripe customer"))
	if plain == nil || plain.Details() != nil {
		t.Fatalf("non-stripe failures should carry no details, got %v", plain)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const polarWebhookSecret = "cG9sYXItcHJvdmlkZXItc2VjcmV0"

func newTestPolarProvider(t *testing.T, rt roundTripFunc) *PolarProvider {
	t.Helper()

	opts := []polar.Option{polar.WithWebhookSecret("whsec_" + polarWebhookSecret)}
	if rt != nil {
		opts = append(opts, polar.WithHTTPClient(&http.Client{Transport: rt}))
	}
	client, err := polar.NewClient("polar_at_test", opts...)
	if err != nil {
		t.Fatalf("new polar client: %v", err)
	}

	provider, err := NewPolarProvider(client, config.BillingConfig{
		SuccessURL: "https://app.example.com/success",
	})
	if err != nil {
		t.Fatalf("new polar provider: %v", err)
	}
	return provider
}

func polarSignatureHeader(t *testing.T, payload []byte) http.Header {
	t.Helper()

	secret, err := base64.StdEncoding.DecodeString(polarWebhookSecret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	msgID := "msg_provider_test"
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, payload)

	header := http.Header{}
	header.Set("webhook-id", msgID)
	header.Set("webhook-timestamp", timestamp)
	header.Set("webhook-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return header
}

func TestPolarProviderVerifyWebhookNormalizesSubscription(t *testing.T) {
	provider := newTestPolarProvider(t, nil)

	payload := []byte(`{
		"type": "subscription.created",
		"data": {
			"id": "polar_sub_1",
			"status": "active",
			"customer_id": "polar_cus_1",
			"product_id": "polar_prod_1",
			"current_period_start": "2026-08-01T00:00:00Z",
			"current_period_end": "2026-09-01T00:00:00Z",
			"cancel_at_period_end": false,
			"metadata": {"userId": "user-7"}
		}
	}`)

	event, err := provider.VerifyWebhook(payload, polarSignatureHeader(t, payload))
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}

	if event.Kind != EventSubscriptionCreated {
		t.Fatalf("expected kind %q, got %q", EventSubscriptionCreated, event.Kind)
	}
	if event.ID != "msg_provider_test" {
		t.Fatalf("unexpected event id %q", event.ID)
	}
	state := event.Subscription
	if state == nil {
		t.Fatal("expected a normalized subscription")
	}
	if state.SubscriptionID != "polar_sub_1" || state.CustomerID != "polar_cus_1" || state.ProductID != "polar_prod_1" {
		t.Fatalf("unexpected identifiers: %+v", state)
	}
	if state.Status != enums.SubscriptionStatusActive {
		t.Fatalf("unexpected status %q", state.Status)
	}
	if state.CurrentPeriodEnd == nil || !state.CurrentPeriodEnd.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end %v", state.CurrentPeriodEnd)
	}
	if got := UserIDFromMetadata(state.Metadata); got != "user-7" {
		t.Fatalf("unexpected user id from metadata %q", got)
	}
}

func TestPolarProviderVerifyWebhookRevokedForcesCanceled(t *testing.T) {
	provider := newTestPolarProvider(t, nil)

	payload := []byte(`{
		"type": "subscription.revoked",
		"data": {"id": "polar_sub_2", "status": "incomplete", "customer_id": "polar_cus_1"}
	}`)

	event, err := provider.VerifyWebhook(payload, polarSignatureHeader(t, payload))
	if err != nil {
		t.Fatalf("verify webhook: %v", err)
	}
	if event.Kind != EventSubscriptionDeleted {
		t.Fatalf("expected deleted kind, got %q", event.Kind)
	}
	if event.Subscription.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("revoked event should force canceled status, got %q", event.Subscription.Status)
	}
}

func TestPolarProviderVerifyWebhookRejectsBadSignature(t *testing.T) {
	provider := newTestPolarProvider(t, nil)

	payload := []byte(`{"type": "subscription.created", "data": {"id": "polar_sub_3"}}`)
	header := http.Header{}
	header.Set("webhook-id", "msg_bad")
	header.Set("webhook-timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	header.Set("webhook-signature", "v1,Zm9yZ2VkLXNpZ25hdHVyZQ==")

	_, err := provider.VerifyWebhook(payload, header)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestPolarProviderCreateCheckoutStampsMetadata(t *testing.T) {
	var captured []byte
	provider := newTestPolarProvider(t, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		captured = body
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(`{"id": "co_1", "url": "https://polar.sh/checkout/co_1"}`)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}, nil
	})

	session, err := provider.CreateCheckout(context.Background(), CheckoutParams{
		CustomerID: "polar_cus_1",
		UserID:     "user-7",
		ProductID:  "polar_prod_1",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if session.URL != "https://polar.sh/checkout/co_1" {
		t.Fatalf("unexpected checkout url %q", session.URL)
	}
	if !strings.Contains(string(captured), `"userId":"user-7"`) {
		t.Fatalf("expected userId metadata in request body: %s", captured)
	}
	if !strings.Contains(string(captured), "https://app.example.com/success") {
		t.Fatalf("expected configured success url in request body: %s", captured)
	}
}

func TestPolarProviderPaymentIntentUnsupported(t *testing.T) {
	provider := newTestPolarProvider(t, nil)

	_, err := provider.CreatePaymentIntent(context.Background(), PaymentIntentParams{AmountCents: 500})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
