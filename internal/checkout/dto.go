package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// PaymentIntentDTO is the API shape for a created payment intent.
type PaymentIntentDTO struct {
	ID           uuid.UUID             `json:"id"`
	IntentID     string                `json:"intent_id"`
	Provider     enums.BillingProvider `json:"provider"`
	AmountCents  int64                 `json:"amount_cents"`
	Currency     string                `json:"currency"`
	Status       string                `json:"status"`
	ClientSecret *string               `json:"client_secret,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// IntentToDTO maps a persisted payment intent to its API shape.
func IntentToDTO(intent *models.PaymentIntent) *PaymentIntentDTO {
	if intent == nil {
		return nil
	}
	return &PaymentIntentDTO{
		ID:           intent.ID,
		IntentID:     intent.IntentID,
		Provider:     intent.Provider,
		AmountCents:  intent.AmountCents,
		Currency:     intent.Currency,
		Status:       intent.Status,
		ClientSecret: intent.ClientSecret,
		CreatedAt:    intent.CreatedAt,
	}
}
