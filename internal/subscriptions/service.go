package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/metrics"
)

// ErrUnlinkedSubscription marks a provider snapshot that cannot be tied to a
// local user: no stored record, no known customer, no userId metadata. The
// webhook layer acks these and moves on.
var ErrUnlinkedSubscription = pkgerrors.New(pkgerrors.CodeValidation, "subscription is not linked to a local user")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CustomerState is the persisted customer view enriched with live provider
// reads for the dashboard.
type CustomerState struct {
	Customer     *models.Customer            `json:"customer"`
	Subscription *models.Subscription        `json:"subscription"`
	Status       enums.SubscriptionStatus    `json:"status"`
	Entitled     bool                        `json:"entitled"`
	Live         []billing.SubscriptionState `json:"liveSubscriptions"`
}

// Service keeps the local subscription mirror in step with the provider.
type Service interface {
	Sync(ctx context.Context, state *billing.SubscriptionState) (*models.Subscription, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	HasActiveSubscription(ctx context.Context, userID uuid.UUID) (bool, error)
	CustomerState(ctx context.Context, userID uuid.UUID) (*CustomerState, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              billing.Repository
	Provider          billing.Provider
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.BillingMetrics
}

type service struct {
	repo     billing.Repository
	provider billing.Provider
	txRunner txRunner
	logger   *logger.Logger
	metrics  *metrics.BillingMetrics
}

// NewService builds the subscription sync service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("billing provider required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		provider: params.Provider,
		txRunner: params.TransactionRunner,
		logger:   params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// Sync upserts the local mirror row keyed by the provider subscription id.
// Replaying the same snapshot is a no-op beyond updatedAt; snapshots always
// win over local state.
func (s *service) Sync(ctx context.Context, state *billing.SubscriptionState) (*models.Subscription, error) {
	providerName := s.provider.Kind().String()
	start := time.Now()
	defer func() {
		s.metrics.ObserveSyncDuration(providerName, time.Since(start))
	}()

	synced, err := s.sync(ctx, state)
	if err != nil && !errors.Is(err, ErrUnlinkedSubscription) {
		s.metrics.IncSyncFailure(providerName)
	}
	return synced, err
}

func (s *service) sync(ctx context.Context, state *billing.SubscriptionState) (*models.Subscription, error) {
	if state == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription state is required")
	}
	if state.SubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	var synced *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		existing, err := txRepo.FindSubscriptionByProviderID(ctx, state.SubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
		}

		if existing != nil {
			if err := ApplyState(existing, state); err != nil {
				return err
			}
			if err := txRepo.UpdateSubscription(ctx, existing); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
			}
			synced = existing
			return nil
		}

		userID, err := s.resolveUserID(ctx, txRepo, state)
		if err != nil {
			return err
		}

		sub, err := BuildSubscription(userID, s.provider.Kind(), state)
		if err != nil {
			return err
		}
		if err := txRepo.CreateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		synced = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return synced, nil
}

// resolveUserID ties a new provider subscription to a local user: the userId
// stamped into checkout metadata first, the known customer mapping second.
func (s *service) resolveUserID(ctx context.Context, repo billing.Repository, state *billing.SubscriptionState) (uuid.UUID, error) {
	if raw := billing.UserIDFromMetadata(state.Metadata); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Warn(s.logger.WithField(ctx, "subscription_id", state.SubscriptionID),
				"subscription metadata carries a malformed userId")
			return uuid.Nil, ErrUnlinkedSubscription
		}
		return userID, nil
	}

	if state.CustomerID != "" {
		customer, err := repo.FindCustomerByProviderID(ctx, state.CustomerID)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
		}
		if customer != nil {
			return customer.UserID, nil
		}
	}

	s.logger.Warn(s.logger.WithField(ctx, "subscription_id", state.SubscriptionID),
		"subscription has no userId metadata and no known customer")
	return uuid.Nil, ErrUnlinkedSubscription
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	subs, err := s.repo.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return subs, nil
}

func (s *service) HasActiveSubscription(ctx context.Context, userID uuid.UUID) (bool, error) {
	subs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.Status.IsEntitled() {
			return true, nil
		}
	}
	return false, nil
}

// CustomerState returns the persisted customer and latest local subscription,
// enriched with a live provider read. Provider read failures degrade to a nil
// live view rather than failing the request.
func (s *service) CustomerState(ctx context.Context, userID uuid.UUID) (*CustomerState, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	customer, err := s.repo.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
	}
	if customer == nil {
		return &CustomerState{Status: enums.SubscriptionStatusNone}, nil
	}

	state := &CustomerState{
		Customer: customer,
		Status:   enums.SubscriptionStatusNone,
	}

	sub, err := s.repo.FindLatestSubscriptionByCustomer(ctx, customer.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}
	if sub != nil {
		state.Subscription = sub
		state.Status = sub.Status
		state.Entitled = sub.Status.IsEntitled()
	}

	live, err := s.provider.ListSubscriptions(ctx, customer.CustomerID)
	if err != nil {
		s.logger.Error(s.logger.WithField(ctx, "customer_id", customer.CustomerID),
			"live subscription read failed", err)
	} else {
		state.Live = live
	}
	return state, nil
}
