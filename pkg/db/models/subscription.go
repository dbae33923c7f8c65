package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// Subscription persists billing provider subscription state per user. The
// provider-assigned SubscriptionID is the upsert key for webhook sync.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	CustomerID         string                   `gorm:"column:customer_id;not null;index"`
	SubscriptionID     string                   `gorm:"column:subscription_id;not null;uniqueIndex:subscriptions_subscription_id_key"`
	ProductID          string                   `gorm:"column:product_id;not null"`
	Provider           enums.BillingProvider    `gorm:"column:provider;not null;default:'stripe'"`
	Status             enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	CurrentPeriodStart *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd  bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt         *time.Time               `gorm:"column:canceled_at"`
	Metadata           json.RawMessage          `gorm:"column:metadata"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
