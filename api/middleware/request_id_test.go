package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serveWithRequestID(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRequestIDEchoesInboundHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-supplied-id")

	w := serveWithRequestID(t, req)
	if got := w.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Fatalf("expected inbound id echoed, got %q", got)
	}
}

func TestRequestIDMintsWhenAbsent(t *testing.T) {
	w := serveWithRequestID(t, httptest.NewRequest(http.MethodGet, "/", nil))

	got := w.Header().Get("X-Request-Id")
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("expected a minted uuid, got %q: %v", got, err)
	}
}

func TestRequestIDReplacesUnusableInboundValues(t *testing.T) {
	for name, value := range map[string]string{
		"oversized":    strings.Repeat("a", 100),
		"control char": "req\x00id",
		"blank":        "   ",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-Id", value)

			w := serveWithRequestID(t, req)
			got := w.Header().Get("X-Request-Id")
			if got == value {
				t.Fatalf("unusable inbound id %q must not be echoed", value)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("expected a minted uuid, got %q: %v", got, err)
			}
		})
	}
}
