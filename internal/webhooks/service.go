package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/internal/subscriptions"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/metrics"
)

// Outcome classifies what happened to a delivery. It doubles as the metrics
// label.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Result reports how a webhook delivery was handled.
type Result struct {
	Outcome Outcome
	Event   *billing.WebhookEvent
}

type syncService interface {
	Sync(ctx context.Context, state *billing.SubscriptionState) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	Provider billing.Provider
	Sync     syncService
	Guard    *IdempotencyGuard
	Logger   *logger.Logger
	Metrics  *metrics.BillingMetrics
}

// Service verifies, deduplicates and dispatches provider webhook deliveries.
type Service struct {
	provider billing.Provider
	sync     syncService
	guard    *IdempotencyGuard
	logger   *logger.Logger
	metrics  *metrics.BillingMetrics
}

// NewService builds the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("billing provider required")
	}
	if params.Sync == nil {
		return nil, fmt.Errorf("sync service required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		provider: params.Provider,
		sync:     params.Sync,
		guard:    params.Guard,
		logger:   params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// Handle runs one delivery end to end: signature check, dedupe, dispatch.
// Unknown event kinds and unlinked subscriptions are acked so the provider
// stops retrying; sync failures release the dedupe claim and surface the
// error so the retry gets a clean run.
func (s *Service) Handle(ctx context.Context, payload []byte, header http.Header) (*Result, error) {
	providerName := s.provider.Kind().String()
	ctx = s.logger.WithProvider(ctx, providerName)

	event, err := s.provider.VerifyWebhook(payload, header)
	if err != nil {
		s.metrics.IncWebhookEvent(providerName, string(OutcomeRejected))
		return &Result{Outcome: OutcomeRejected}, err
	}
	if event.ID != "" {
		ctx = s.logger.WithEventID(ctx, event.ID)
	}

	if event.Kind == billing.EventUnknown || event.Subscription == nil {
		s.logger.Info(s.logger.WithField(ctx, "event_type", event.RawType), "ignoring webhook event")
		s.metrics.IncWebhookEvent(providerName, string(OutcomeSkipped))
		return &Result{Outcome: OutcomeSkipped, Event: event}, nil
	}

	claimed := false
	if event.ID != "" {
		duplicate, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			// Redis trouble must not drop billing events; process anyway.
			s.logger.Error(ctx, "idempotency check failed, processing without dedupe", err)
		} else if duplicate {
			s.logger.Info(ctx, "duplicate webhook delivery")
			s.metrics.IncWebhookEvent(providerName, string(OutcomeDuplicate))
			return &Result{Outcome: OutcomeDuplicate, Event: event}, nil
		} else {
			claimed = true
		}
	}

	if _, err := s.sync.Sync(ctx, event.Subscription); err != nil {
		if errors.Is(err, subscriptions.ErrUnlinkedSubscription) {
			// A data bug upstream, not a transient fault. Ack so the
			// provider stops retrying a delivery that can never land.
			s.logger.Warn(ctx, "webhook subscription has no local user, acking")
			s.metrics.IncWebhookEvent(providerName, string(OutcomeSkipped))
			return &Result{Outcome: OutcomeSkipped, Event: event}, nil
		}

		if claimed {
			if delErr := s.guard.Delete(ctx, event.ID); delErr != nil {
				s.logger.Error(ctx, "release idempotency claim failed", delErr)
			}
		}
		s.metrics.IncWebhookEvent(providerName, string(OutcomeFailed))
		return &Result{Outcome: OutcomeFailed, Event: event}, err
	}

	s.metrics.IncWebhookEvent(providerName, string(OutcomeProcessed))
	return &Result{Outcome: OutcomeProcessed, Event: event}, nil
}
