package polar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"

	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL           = "https://api.polar.sh/v1"
	errorBodyReadLimit int64 = 1024
)

var (
	errAccessTokenRequired = errors.New("polar access token is required")
)

// Client wraps the Polar REST API surface used for billing.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accessToken   string
	webhookSecret string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Polar base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithWebhookSecret sets the secret used to verify inbound webhooks.
func WithWebhookSecret(secret string) Option {
	return func(c *Client) {
		c.webhookSecret = strings.TrimSpace(secret)
	}
}

// NewClient builds the Polar client given an access token.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	trimmedToken := strings.TrimSpace(accessToken)
	if trimmedToken == "" {
		return nil, errAccessTokenRequired
	}

	client := &Client{
		accessToken: trimmedToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// Customer is the Polar customer payload subset we rely on.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateCustomerRequest describes the payload sent to create a customer.
type CreateCustomerRequest struct {
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Checkout is the Polar checkout session subset we rely on.
type Checkout struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	CustomerID string `json:"customer_id"`
}

// CreateCheckoutRequest describes the payload sent to create a checkout session.
type CreateCheckoutRequest struct {
	Products   []string          `json:"products"`
	CustomerID string            `json:"customer_id,omitempty"`
	SuccessURL string            `json:"success_url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Subscription is the Polar subscription payload subset we rely on.
type Subscription struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	CustomerID         string            `json:"customer_id"`
	ProductID          string            `json:"product_id"`
	CurrentPeriodStart *time.Time        `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time        `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         *time.Time        `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// CreateCustomer registers a new customer with Polar.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polar client not configured")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "customers", req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomer fetches one customer by Polar ID.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polar client not configured")
	}
	trimmed := strings.TrimSpace(customerID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer ID is required")
	}

	var customer Customer
	if err := c.do(ctx, http.MethodGet, "customers/"+url.PathEscape(trimmed), nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckout opens a hosted checkout session for the given products.
func (c *Client) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*Checkout, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polar client not configured")
	}
	if len(req.Products) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product is required")
	}

	var checkout Checkout
	if err := c.do(ctx, http.MethodPost, "checkouts", req, &checkout); err != nil {
		return nil, err
	}
	return &checkout, nil
}

// GetSubscription fetches one subscription by Polar ID.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polar client not configured")
	}
	trimmed := strings.TrimSpace(subscriptionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription ID is required")
	}

	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "subscriptions/"+url.PathEscape(trimmed), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscriptions returns the subscriptions owned by the customer.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polar client not configured")
	}
	trimmed := strings.TrimSpace(customerID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer ID is required")
	}

	var page struct {
		Items []Subscription `json:"items"`
	}
	path := "subscriptions?customer_id=" + url.QueryEscape(trimmed)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// CancelSubscription revokes the subscription immediately. Polar responds
// with the revoked subscription and follows up with a subscription.revoked
// webhook.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polar client not configured")
	}
	trimmed := strings.TrimSpace(subscriptionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription ID is required")
	}

	var sub Subscription
	if err := c.do(ctx, http.MethodDelete, "subscriptions/"+url.PathEscape(trimmed), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// VerifyWebhook checks the standard-webhooks signature on an inbound delivery.
func (c *Client) VerifyWebhook(payload []byte, header http.Header) error {
	if c == nil || c.webhookSecret == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "polar webhook secret not configured")
	}
	wh, err := standardwebhooks.NewWebhook(c.webhookSecret)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "init webhook verifier")
	}
	if err := wh.Verify(payload, header); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.buildURL(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal polar request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build polar request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute polar request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode polar response")
	}
	return nil
}

// apiError turns a non-2xx Polar response into a provider error that carries
// the response status and body, so callers can show the client what Polar
// rejected.
func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	trimmed := strings.TrimSpace(string(body))

	wrapped := pkgerrors.Wrap(pkgerrors.CodeProvider,
		fmt.Errorf("status %d: %s", resp.StatusCode, trimmed), "polar request failed")

	details := map[string]any{
		"provider": "polar",
		"status":   resp.StatusCode,
	}
	var parsed struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	switch {
	case json.Unmarshal(body, &parsed) != nil:
		if trimmed != "" {
			details["message"] = trimmed
		}
	case len(parsed.Detail) > 0:
		details["message"] = parsed.Detail
	case parsed.Error != "":
		details["message"] = parsed.Error
	case trimmed != "":
		details["message"] = trimmed
	}
	return wrapped.WithDetails(details)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
