package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"

	// Inbound IDs longer than this are client garbage; mint a fresh one
	// rather than echoing it into every log line.
	maxRequestIDLength = 64
)

// RequestID tags each request with a correlation ID. An acceptable inbound
// X-Request-Id is reused, otherwise a UUID is minted; either way the ID is
// echoed on the response and stamped into the request-scoped logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	candidate := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if candidate == "" || len(candidate) > maxRequestIDLength {
		return ""
	}
	for _, c := range candidate {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return candidate
}
