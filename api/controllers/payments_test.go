package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/api/middleware"
	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/internal/checkout"
	"github.com/driftlabs/storefront-backend/internal/webhooks"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
)

type stubWebhookHandler struct {
	result *webhooks.Result
	err    error
}

func (s *stubWebhookHandler) Handle(_ context.Context, _ []byte, _ http.Header) (*webhooks.Result, error) {
	return s.result, s.err
}

type stubCheckoutService struct {
	session   *billing.CheckoutSession
	intent    *models.PaymentIntent
	cancelErr error
	canceled  []string
	err       error
}

func (s *stubCheckoutService) GetOrCreateCustomer(context.Context, uuid.UUID) (*models.Customer, error) {
	return nil, nil
}

func (s *stubCheckoutService) CreateCheckout(_ context.Context, _ uuid.UUID, _ checkout.CreateCheckoutInput) (*billing.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func (s *stubCheckoutService) CreatePaymentIntent(_ context.Context, _ uuid.UUID, _ checkout.CreateIntentInput) (*models.PaymentIntent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.intent, nil
}

func (s *stubCheckoutService) CancelSubscription(_ context.Context, _ uuid.UUID, subscriptionID string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.canceled = append(s.canceled, subscriptionID)
	return nil
}

func authedRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	return r.WithContext(middleware.WithUserID(r.Context(), uuid.NewString()))
}

func TestWebhookAcksProcessedEvents(t *testing.T) {
	handler := Webhook(&stubWebhookHandler{result: &webhooks.Result{Outcome: webhooks.OutcomeProcessed}}, nil)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/api/payments/webhooks", strings.NewReader(`{}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body["received"] {
		t.Fatalf("expected {received:true}, got %v", body)
	}
}

func TestWebhookAcksDuplicatesAndUnknownKinds(t *testing.T) {
	for _, outcome := range []webhooks.Outcome{webhooks.OutcomeDuplicate, webhooks.OutcomeSkipped} {
		handler := Webhook(&stubWebhookHandler{result: &webhooks.Result{Outcome: outcome}}, nil)
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("POST", "/api/payments/webhooks", strings.NewReader(`{}`)))
		if w.Code != http.StatusOK {
			t.Fatalf("outcome %s: expected 200, got %d", outcome, w.Code)
		}
	}
}

func TestWebhookRejectsBadSignatureWith400(t *testing.T) {
	stub := &stubWebhookHandler{
		result: &webhooks.Result{Outcome: webhooks.OutcomeRejected},
		err:    pkgerrors.New(pkgerrors.CodeUnauthorized, "signature verification failed"),
	}
	handler := Webhook(stub, nil)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/api/payments/webhooks", strings.NewReader(`{}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad signature, got %d", w.Code)
	}
}

func TestWebhookSignalsRetryWith500OnSyncFailure(t *testing.T) {
	stub := &stubWebhookHandler{
		result: &webhooks.Result{Outcome: webhooks.OutcomeFailed},
		err:    pkgerrors.New(pkgerrors.CodeDependency, "persist subscription"),
	}
	handler := Webhook(stub, nil)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/api/payments/webhooks", strings.NewReader(`{}`)))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 to trigger provider retry, got %d", w.Code)
	}
}

func TestCreateCheckoutReturnsURL(t *testing.T) {
	svc := &stubCheckoutService{session: &billing.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}}
	handler := CreateCheckout(svc, nil)

	w := httptest.NewRecorder()
	handler(w, authedRequest("POST", "/api/payments/create-checkout", `{"priceId":"price_1"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["url"] != "https://pay.example.com/cs_1" {
		t.Fatalf("expected checkout url, got %v", body)
	}
}

func TestCreateCheckoutRequiresAuth(t *testing.T) {
	handler := CreateCheckout(&stubCheckoutService{}, nil)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("POST", "/api/payments/create-checkout", strings.NewReader(`{"priceId":"price_1"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", w.Code)
	}
}

func TestCreateCheckoutRejectsMissingPriceID(t *testing.T) {
	handler := CreateCheckout(&stubCheckoutService{}, nil)

	w := httptest.NewRecorder()
	handler(w, authedRequest("POST", "/api/payments/create-checkout", `{}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing priceId, got %d", w.Code)
	}
}

func TestCancelSubscriptionMapsOwnershipToNotFound(t *testing.T) {
	svc := &stubCheckoutService{cancelErr: pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")}
	handler := CancelSubscription(svc, nil)

	w := httptest.NewRecorder()
	handler(w, authedRequest("POST", "/api/payments/cancel-subscription", `{"subscriptionId":"sub_other"}`))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelSubscriptionSucceeds(t *testing.T) {
	svc := &stubCheckoutService{}
	handler := CancelSubscription(svc, nil)

	w := httptest.NewRecorder()
	handler(w, authedRequest("POST", "/api/payments/cancel-subscription", `{"subscriptionId":"sub_1"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body["success"] {
		t.Fatalf("expected {success:true}, got %v", body)
	}
	if len(svc.canceled) != 1 || svc.canceled[0] != "sub_1" {
		t.Fatalf("expected cancel to reach the service, got %v", svc.canceled)
	}
}
