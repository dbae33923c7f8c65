package controllers

import (
	"net/http"

	"github.com/driftlabs/storefront-backend/api/responses"
	"github.com/driftlabs/storefront-backend/api/validators"
	"github.com/driftlabs/storefront-backend/internal/admin"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
)

// AdminSummary returns the operational counters for the dashboard.
func AdminSummary(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		summary, err := svc.Summary(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// AdminUsersWithUploads lists recent users together with their uploads.
func AdminUsersWithUploads(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListUsersWithUploads(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"users": result})
	}
}
