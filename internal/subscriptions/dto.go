package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// SubscriptionDTO is the API shape for a persisted subscription.
type SubscriptionDTO struct {
	ID                 uuid.UUID                `json:"id"`
	SubscriptionID     string                   `json:"subscription_id"`
	CustomerID         string                   `json:"customer_id"`
	ProductID          string                   `json:"product_id"`
	Provider           enums.BillingProvider    `json:"provider"`
	Status             enums.SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time               `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time               `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CanceledAt         *time.Time               `json:"canceled_at,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// FromModel maps a persisted row to its API shape.
func FromModel(sub *models.Subscription) *SubscriptionDTO {
	if sub == nil {
		return nil
	}
	return &SubscriptionDTO{
		ID:                 sub.ID,
		SubscriptionID:     sub.SubscriptionID,
		CustomerID:         sub.CustomerID,
		ProductID:          sub.ProductID,
		Provider:           sub.Provider,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
}

// FromModels maps a slice of rows, never returning nil.
func FromModels(subs []models.Subscription) []SubscriptionDTO {
	out := make([]SubscriptionDTO, 0, len(subs))
	for i := range subs {
		out = append(out, *FromModel(&subs[i]))
	}
	return out
}

// CustomerDTO is the API shape for the provider customer link.
type CustomerDTO struct {
	ID         uuid.UUID             `json:"id"`
	CustomerID string                `json:"customer_id"`
	Provider   enums.BillingProvider `json:"provider"`
	Email      *string               `json:"email,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// LiveSubscriptionDTO is a provider-side snapshot that has not
// necessarily been persisted locally.
type LiveSubscriptionDTO struct {
	SubscriptionID     string                   `json:"subscription_id"`
	Status             enums.SubscriptionStatus `json:"status"`
	ProductID          string                   `json:"product_id,omitempty"`
	CurrentPeriodEnd   *time.Time               `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CurrentPeriodStart *time.Time               `json:"current_period_start,omitempty"`
}

// CustomerStateDTO is the customer-state read model.
type CustomerStateDTO struct {
	Customer     *CustomerDTO             `json:"customer"`
	Subscription *SubscriptionDTO         `json:"subscription"`
	Status       enums.SubscriptionStatus `json:"status"`
	Entitled     bool                     `json:"entitled"`
	Live         []LiveSubscriptionDTO    `json:"live_subscriptions,omitempty"`
}

// StateToDTO maps the service read model to its API shape.
func StateToDTO(state *CustomerState) *CustomerStateDTO {
	if state == nil {
		return nil
	}
	dto := &CustomerStateDTO{
		Subscription: FromModel(state.Subscription),
		Status:       state.Status,
		Entitled:     state.Entitled,
	}
	if state.Customer != nil {
		dto.Customer = &CustomerDTO{
			ID:         state.Customer.ID,
			CustomerID: state.Customer.CustomerID,
			Provider:   state.Customer.Provider,
			Email:      state.Customer.Email,
			CreatedAt:  state.Customer.CreatedAt,
		}
	}
	for _, live := range state.Live {
		dto.Live = append(dto.Live, LiveSubscriptionDTO{
			SubscriptionID:     live.SubscriptionID,
			Status:             live.Status,
			ProductID:          live.ProductID,
			CurrentPeriodStart: live.CurrentPeriodStart,
			CurrentPeriodEnd:   live.CurrentPeriodEnd,
			CancelAtPeriodEnd:  live.CancelAtPeriodEnd,
		})
	}
	return dto
}
