package middleware

import (
	"net/http"

	"github.com/driftlabs/storefront-backend/pkg/i18n"
)

// Locale negotiates the response language from the Accept-Language
// header and stamps it on the request context and response.
func Locale(bundle *i18n.Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if bundle == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := bundle.Negotiate(r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
		})
	}
}
