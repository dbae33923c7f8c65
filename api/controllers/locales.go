package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftlabs/storefront-backend/api/responses"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/i18n"
	"github.com/driftlabs/storefront-backend/pkg/logger"
)

// LocalesList returns the supported locales and the default.
func LocalesList(bundle *i18n.Bundle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bundle == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "locales unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"locales": bundle.Locales(),
			"default": i18n.DefaultLocale,
		})
	}
}

// LocaleMessages returns the full message catalog for one locale.
func LocaleMessages(bundle *i18n.Bundle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bundle == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "locales unavailable"))
			return
		}

		locale := chi.URLParam(r, "locale")
		supported := false
		for _, known := range bundle.Locales() {
			if known == locale {
				supported = true
				break
			}
		}
		if !supported {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "locale not supported"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"locale":   locale,
			"messages": bundle.Catalog(locale),
		})
	}
}
