package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// PaymentIntent records one-off payment attempts created through the
// billing provider.
type PaymentIntent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	IntentID      string                `gorm:"column:intent_id;not null;uniqueIndex:payment_intents_intent_id_key"`
	Provider      enums.BillingProvider `gorm:"column:provider;not null;default:'stripe'"`
	AmountCents   int64                 `gorm:"column:amount_cents;not null"`
	Currency      string                `gorm:"column:currency;not null;default:'usd'"`
	Status        string                `gorm:"column:status;not null"`
	ClientSecret  *string               `gorm:"column:client_secret"`
	FailureReason *string               `gorm:"column:failure_reason"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
