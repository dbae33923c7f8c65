package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/pkg/db"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
)

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// CreateCheckoutInput starts a hosted checkout for a recurring price.
type CreateCheckoutInput struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateIntentInput starts a one-off payment. Amount is in major currency
// units ("19.99"), converted to cents before it reaches the provider.
type CreateIntentInput struct {
	Amount   string
	Currency string
}

// Service drives the customer-facing purchase flows.
type Service interface {
	GetOrCreateCustomer(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	CreateCheckout(ctx context.Context, userID uuid.UUID, input CreateCheckoutInput) (*billing.CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID, input CreateIntentInput) (*models.PaymentIntent, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) error
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Repo     billing.Repository
	Users    userFinder
	Provider billing.Provider
	Logger   *logger.Logger
}

type service struct {
	repo     billing.Repository
	users    userFinder
	provider billing.Provider
	logger   *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repo required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("billing provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		provider: params.Provider,
		logger:   params.Logger,
	}, nil
}

// GetOrCreateCustomer returns the user's provider customer, creating one on
// first use. A concurrent first purchase loses the insert race and refetches
// the winning row.
func (s *service) GetOrCreateCustomer(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	existing, err := s.repo.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
	}
	if existing != nil {
		return existing, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	info, err := s.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
		UserID: userID.String(),
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return nil, err
	}

	customer := &models.Customer{
		UserID:     userID,
		CustomerID: info.CustomerID,
		Provider:   s.provider.Kind(),
	}
	if info.Email != "" {
		email := info.Email
		customer.Email = &email
	}

	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		if db.IsUniqueViolation(err, "customers_user_id_key") || db.IsUniqueViolation(err, "") {
			winner, findErr := s.repo.FindCustomerByUserID(ctx, userID)
			if findErr == nil && winner != nil {
				s.logger.Warn(s.logger.WithUserID(ctx, userID.String()),
					"lost customer insert race, using existing row")
				return winner, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist customer")
	}
	return customer, nil
}

// CreateCheckout opens a provider-hosted checkout session for the user. The
// user's id travels in subscription metadata so the webhook can link the
// resulting subscription back.
func (s *service) CreateCheckout(ctx context.Context, userID uuid.UUID, input CreateCheckoutInput) (*billing.CheckoutSession, error) {
	priceID := strings.TrimSpace(input.PriceID)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "priceId is required")
	}

	customer, err := s.GetOrCreateCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckout(ctx, billing.CheckoutParams{
		CustomerID: customer.CustomerID,
		UserID:     userID.String(),
		ProductID:  priceID,
		SuccessURL: strings.TrimSpace(input.SuccessURL),
		CancelURL:  strings.TrimSpace(input.CancelURL),
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreatePaymentIntent starts a one-off payment and records it locally.
func (s *service) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, input CreateIntentInput) (*models.PaymentIntent, error) {
	cents, err := amountToCents(input.Amount)
	if err != nil {
		return nil, err
	}

	customer, err := s.GetOrCreateCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	info, err := s.provider.CreatePaymentIntent(ctx, billing.PaymentIntentParams{
		CustomerID:  customer.CustomerID,
		UserID:      userID.String(),
		AmountCents: cents,
		Currency:    currency,
	})
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		UserID:      userID,
		IntentID:    info.IntentID,
		Provider:    s.provider.Kind(),
		AmountCents: cents,
		Currency:    currency,
		Status:      info.Status,
	}
	if info.ClientSecret != "" {
		secret := info.ClientSecret
		intent.ClientSecret = &secret
	}
	if err := s.repo.CreatePaymentIntent(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment intent")
	}
	return intent, nil
}

// CancelSubscription ends the subscription upstream immediately. The local
// row stays put; the provider's deletion webhook transitions its status.
func (s *service) CancelSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscriptionId is required")
	}

	sub, err := s.repo.FindSubscriptionByProviderID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}
	if sub == nil || sub.UserID != userID {
		// An existing row owned by someone else looks identical to no row.
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	if _, err := s.provider.CancelSubscription(ctx, sub.SubscriptionID); err != nil {
		return err
	}
	return nil
}

// amountToCents parses a major-unit decimal amount and rejects sub-cent
// precision.
func amountToCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a decimal number")
	}
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	cents := amount.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has sub-cent precision")
	}
	return cents.IntPart(), nil
}
