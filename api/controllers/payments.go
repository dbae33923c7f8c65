package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/api/middleware"
	"github.com/driftlabs/storefront-backend/api/responses"
	"github.com/driftlabs/storefront-backend/api/validators"
	"github.com/driftlabs/storefront-backend/internal/checkout"
	"github.com/driftlabs/storefront-backend/internal/subscriptions"
	"github.com/driftlabs/storefront-backend/internal/webhooks"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
)

type createCheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	SuccessURL string `json:"successUrl,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancelUrl,omitempty" validate:"omitempty,url"`
}

type createIntentRequest struct {
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type cancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
}

// CreateCheckout starts a provider checkout session and returns its URL.
func CreateCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if svc == nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body createCheckoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateCheckout(r.Context(), userID, checkout.CreateCheckoutInput{
			PriceID:    body.PriceID,
			SuccessURL: body.SuccessURL,
			CancelURL:  body.CancelURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, map[string]string{"url": session.URL})
	}
}

// CreateIntent creates a one-off payment intent. Amount arrives in major
// units as a decimal string.
func CreateIntent(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if svc == nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body createIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreatePaymentIntent(r.Context(), userID, checkout.CreateIntentInput{
			Amount:   body.Amount,
			Currency: body.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkout.IntentToDTO(intent))
	}
}

// CancelSubscription cancels the subscription upstream after an ownership
// check. The row transitions when the deletion webhook lands.
func CancelSubscription(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if svc == nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body cancelSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelSubscription(r.Context(), userID, body.SubscriptionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// ListSubscriptions returns the caller's persisted subscription mirror.
func ListSubscriptions(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if svc == nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		subs, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"subscriptions": subscriptions.FromModels(subs)})
	}
}

// HasActiveSubscription answers the dashboard's entitlement check from
// persisted rows only; no provider round-trip.
func HasActiveSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if svc == nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		active, err := svc.HasActiveSubscription(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"hasActiveSubscription": active})
	}
}

// CustomerState returns the persisted customer record enriched with
// live provider subscriptions where reachable.
func CustomerState(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if svc == nil || userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		state, err := svc.CustomerState(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.StateToDTO(state))
	}
}

type webhookHandler interface {
	Handle(ctx context.Context, payload []byte, header http.Header) (*webhooks.Result, error)
}

// Webhook receives provider deliveries. The raw body must reach signature
// verification untouched. Status codes are part of the provider contract:
// 400 stops redelivery of unverifiable payloads, 200 acks duplicates and
// unknown kinds, 500 asks the provider to retry after a sync failure.
func Webhook(svc webhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.Handle(ctx, payload, r.Header)
		if err != nil {
			if result != nil && result.Outcome == webhooks.OutcomeRejected {
				responses.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
				return
			}
			responses.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "event processing failed"})
			return
		}
		responses.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
