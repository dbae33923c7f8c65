package polar

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
)

func TestClientCreateCheckoutRequest(t *testing.T) {
	const expectedURL = "http://polar.test/v1/checkouts"
	respBody := `{"id":"co_123","url":"https://polar.sh/checkout/co_123","status":"open","customer_id":"cus_9"}`

	var capturedURL string
	var capturedAuth string
	var capturedBody []byte

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		capturedBody = body
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("polar_pat_test",
		WithBaseURL("http://polar.test/v1"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	checkout, err := client.CreateCheckout(context.Background(), CreateCheckoutRequest{
		Products:   []string{"prod_basic"},
		CustomerID: "cus_9",
		SuccessURL: "https://shop.test/success",
		Metadata:   map[string]string{"userId": "user-1"},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedAuth != "Bearer polar_pat_test" {
		t.Fatalf("unexpected auth header %q", capturedAuth)
	}
	if !strings.Contains(string(capturedBody), `"prod_basic"`) {
		t.Fatalf("products missing from body %s", capturedBody)
	}
	if checkout.URL != "https://polar.sh/checkout/co_123" {
		t.Fatalf("unexpected checkout url %q", checkout.URL)
	}
}

func TestClientCancelSubscriptionRevokesImmediately(t *testing.T) {
	respBody := `{"id":"sub_1","status":"canceled","customer_id":"cus_9","product_id":"prod_basic","canceled_at":"2026-08-28T12:00:00Z"}`

	var capturedMethod string
	var capturedURL string

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedMethod = req.Method
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("polar_pat_test",
		WithBaseURL("http://polar.test/v1"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	sub, err := client.CancelSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("cancel subscription: %v", err)
	}
	if capturedMethod != http.MethodDelete {
		t.Fatalf("expected DELETE, got %s", capturedMethod)
	}
	if capturedURL != "http://polar.test/v1/subscriptions/sub_1" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if sub.Status != "canceled" {
		t.Fatalf("expected canceled subscription, got %q", sub.Status)
	}
	if sub.CanceledAt == nil {
		t.Fatal("expected canceled_at to be set")
	}
}

func TestClientErrorStatusSurfacesBody(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       io.NopCloser(strings.NewReader(`{"detail":"invalid product"}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("polar_pat_test",
		WithBaseURL("http://polar.test/v1"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateCheckout(context.Background(), CreateCheckoutRequest{Products: []string{"bad"}})
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !strings.Contains(err.Error(), "invalid product") {
		t.Fatalf("expected response body in error, got %v", err)
	}

	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", typed.Details())
	}
	if details["status"] != http.StatusUnprocessableEntity {
		t.Fatalf("expected response status in details, got %v", details["status"])
	}
	message, _ := json.Marshal(details["message"])
	if !strings.Contains(string(message), "invalid product") {
		t.Fatalf("expected polar detail in details, got %v", details["message"])
	}
}

func TestVerifyWebhook(t *testing.T) {
	rawSecret := []byte("0123456789abcdef0123456789abcdef")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(rawSecret)

	client, err := NewClient("polar_pat_test", WithWebhookSecret(secret))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	payload := []byte(`{"type":"subscription.updated"}`)
	msgID := "msg_1"
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	mac := hmac.New(sha256.New, rawSecret)
	mac.Write([]byte(msgID + "." + timestamp + "." + string(payload)))
	signature := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	header := http.Header{}
	header.Set("webhook-id", msgID)
	header.Set("webhook-timestamp", timestamp)
	header.Set("webhook-signature", signature)

	if err := client.VerifyWebhook(payload, header); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	header.Set("webhook-signature", "v1,bm90LWEtc2lnbmF0dXJl")
	if err := client.VerifyWebhook(payload, header); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
