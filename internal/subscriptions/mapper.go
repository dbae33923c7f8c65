package subscriptions

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
)

// BuildSubscription maps a provider snapshot onto a fresh local record.
func BuildSubscription(userID uuid.UUID, provider enums.BillingProvider, state *billing.SubscriptionState) (*models.Subscription, error) {
	if state == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription state is required")
	}
	if state.SubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	sub := &models.Subscription{
		UserID:         userID,
		SubscriptionID: state.SubscriptionID,
		Provider:       provider,
	}
	applyState(sub, state)
	return sub, nil
}

// ApplyState overlays a provider snapshot onto an existing record. The
// provider-assigned identity never changes on update.
func ApplyState(stored *models.Subscription, state *billing.SubscriptionState) error {
	if stored == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stored subscription is required")
	}
	if state == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription state is required")
	}
	if state.SubscriptionID != "" && state.SubscriptionID != stored.SubscriptionID {
		return pkgerrors.New(pkgerrors.CodeConflict, "subscription id mismatch")
	}
	applyState(stored, state)
	return nil
}

func applyState(sub *models.Subscription, state *billing.SubscriptionState) {
	if state.CustomerID != "" {
		sub.CustomerID = state.CustomerID
	}
	if state.ProductID != "" {
		sub.ProductID = state.ProductID
	}
	// Unrecognized provider statuses are stored verbatim; only an empty
	// status leaves the stored one untouched.
	if state.Status != "" {
		sub.Status = state.Status
	}
	sub.CurrentPeriodStart = state.CurrentPeriodStart
	sub.CurrentPeriodEnd = state.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	if state.CanceledAt != nil {
		sub.CanceledAt = state.CanceledAt
	}
	sub.Metadata = mergeMetadata(sub.Metadata, state.Metadata)
}

// mergeMetadata overlays incoming provider metadata on top of whatever was
// stored before, so keys set at checkout survive later partial updates.
func mergeMetadata(existing json.RawMessage, incoming map[string]string) json.RawMessage {
	merged := map[string]string{}
	if len(existing) > 0 {
		// Stored metadata we cannot parse gets replaced wholesale.
		_ = json.Unmarshal(existing, &merged)
	}
	for key, value := range incoming {
		merged[key] = value
	}
	if len(merged) == 0 {
		return nil
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return raw
}
