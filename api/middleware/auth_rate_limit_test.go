package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubLimiterStore struct {
	counts map[string]int64
}

func newStubLimiterStore() *stubLimiterStore {
	return &stubLimiterStore{counts: map[string]int64{}}
}

func (s *stubLimiterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.counts[key]++
	return s.counts[key], nil
}

func postLogin(handler http.Handler, ip string) *httptest.ResponseRecorder {
	r := httptest.NewRequest("POST", "/login", strings.NewReader(`{"email":"user@example.com","password":"x"}`))
	r.RemoteAddr = ip + ":51000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestAuthRateLimitBlocksAfterEmailLimit(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 2)
	store := newStubLimiterStore()
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		if w := postLogin(handler, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, w.Code)
		}
	}
	if w := postLogin(handler, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third attempt, got %d", w.Code)
	}
}

func TestAuthRateLimitBlocksByIP(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 0)
	store := newStubLimiterStore()
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if w := postLogin(handler, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := postLogin(handler, "10.0.0.2"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// Other clients are unaffected.
	if w := postLogin(handler, "10.0.0.3"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a fresh ip, got %d", w.Code)
	}
}

func TestAuthRateLimitBodySurvivesEmailInspection(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 5)
	var seenBody string
	handler := AuthRateLimit(policy, newStubLimiterStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seenBody = string(body)
	}))

	postLogin(handler, "10.0.0.4")
	if !strings.Contains(seenBody, "user@example.com") {
		t.Fatalf("expected downstream handler to see the full body, got %q", seenBody)
	}
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", 0, 10, 10)
	called := 0
	handler := AuthRateLimit(policy, newStubLimiterStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called++
	}))

	for i := 0; i < 20; i++ {
		postLogin(handler, "10.0.0.5")
	}
	if called != 20 {
		t.Fatalf("expected all requests through with a zero window, got %d", called)
	}
}
