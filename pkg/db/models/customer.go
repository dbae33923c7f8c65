package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// Customer links a local user to a billing provider customer. Each user holds
// at most one customer row, enforced by the unique index on user_id.
type Customer struct {
	ID         uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID             `gorm:"column:user_id;type:uuid;not null;uniqueIndex:customers_user_id_key"`
	CustomerID string                `gorm:"column:customer_id;not null;uniqueIndex:customers_customer_id_key"`
	Provider   enums.BillingProvider `gorm:"column:provider;not null;default:'stripe'"`
	Email      *string               `gorm:"column:email"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
