package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/internal/subscriptions"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	"github.com/driftlabs/storefront-backend/pkg/logger"
)

const (
	defaultReconcileLimit    = 100
	defaultReconcileLookback = 7 * 24 * time.Hour
)

type billingRepository interface {
	ListSubscriptionsForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.Subscription, error)
}

type subscriptionProvider interface {
	Kind() enums.BillingProvider
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.SubscriptionState, error)
}

type subscriptionSyncer interface {
	Sync(ctx context.Context, state *billing.SubscriptionState) (*models.Subscription, error)
}

// SubscriptionReconcileJobParams configures the subscription reconcile job.
type SubscriptionReconcileJobParams struct {
	Logger      *logger.Logger
	BillingRepo billingRepository
	Provider    subscriptionProvider
	Sync        subscriptionSyncer
	Limit       int
	Lookback    time.Duration
}

// NewSubscriptionReconcileJob builds the job that refreshes stale local
// subscription rows from the billing provider. Webhooks are the primary
// sync path; this job catches deliveries that never arrived.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("billing provider required")
	}
	if params.Sync == nil {
		return nil, fmt.Errorf("subscription sync service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	return &subscriptionReconcileJob{
		logg:        params.Logger,
		billingRepo: params.BillingRepo,
		provider:    params.Provider,
		sync:        params.Sync,
		limit:       limit,
		lookback:    lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg        *logger.Logger
	billingRepo billingRepository
	provider    subscriptionProvider
	sync        subscriptionSyncer
	limit       int
	lookback    time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithProvider(ctx, string(j.provider.Kind()))
	stale, err := j.billingRepo.ListSubscriptionsForReconciliation(logCtx, j.limit, j.lookback)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}

	var errs error
	synced := 0
	for i := range stale {
		if err := j.reconcileSubscription(logCtx, &stale[i]); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		synced++
	}
	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"candidates": len(stale),
		"synced":     synced,
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcileSubscription(ctx context.Context, sub *models.Subscription) error {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"subscription_id":          sub.ID,
		"provider_subscription_id": sub.SubscriptionID,
	})
	state, err := j.provider.GetSubscription(logCtx, sub.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", sub.SubscriptionID, err)
	}
	if state == nil {
		j.logg.Info(logCtx, "subscription gone upstream; skipping")
		return nil
	}
	if _, err := j.sync.Sync(logCtx, state); err != nil {
		// The row already exists locally so sync never needs a user
		// link; treat unlinked as unreachable but harmless.
		if errors.Is(err, subscriptions.ErrUnlinkedSubscription) {
			j.logg.Warn(logCtx, "reconciled subscription has no local user; skipping")
			return nil
		}
		return fmt.Errorf("sync subscription %s: %w", sub.SubscriptionID, err)
	}
	j.logg.Info(logCtx, "subscription reconciled")
	return nil
}
