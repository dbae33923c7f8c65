package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks webhook deliveries and sync outcomes per provider.
type BillingMetrics struct {
	webhookEvents *prometheus.CounterVec
	syncDuration  *prometheus.HistogramVec
	syncFailures  *prometheus.CounterVec
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Webhook events received, labeled by provider and outcome.",
	}, []string{"provider", "outcome"})
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_sync_duration_seconds",
		Help:    "Duration of subscription sync operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	syncFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_failures_total",
		Help: "Subscription sync failures, labeled by provider.",
	}, []string{"provider"})
	reg.MustRegister(webhookEvents, syncDuration, syncFailures)
	return &BillingMetrics{
		webhookEvents: webhookEvents,
		syncDuration:  syncDuration,
		syncFailures:  syncFailures,
	}
}

// IncWebhookEvent counts a delivered webhook event with its outcome
// (processed, skipped, duplicate, failed).
func (b *BillingMetrics) IncWebhookEvent(provider, outcome string) {
	if b == nil || b.webhookEvents == nil {
		return
	}
	b.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// ObserveSyncDuration records how long one subscription sync took.
func (b *BillingMetrics) ObserveSyncDuration(provider string, duration time.Duration) {
	if b == nil || b.syncDuration == nil {
		return
	}
	b.syncDuration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

// IncSyncFailure counts a failed subscription sync.
func (b *BillingMetrics) IncSyncFailure(provider string) {
	if b == nil || b.syncFailures == nil {
		return
	}
	b.syncFailures.WithLabelValues(normalizeLabel(provider)).Inc()
}
