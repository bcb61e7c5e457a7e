package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("user-a") {
		t.Fatal("fourth request in the window should be rejected")
	}
	if !rl.Allow("user-b") {
		t.Fatal("callers are limited independently")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("user-a") {
		t.Fatal("a new window should reset the counter")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	rl, _ := newTestLimiter(t, 0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("user-a") {
			t.Fatal("zero limit disables limiting")
		}
	}
	if rl.ActiveClients() != 0 {
		t.Fatalf("disabled limiter should not track callers, got %d", rl.ActiveClients())
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	rl, now := newTestLimiter(t, 5)
	rl.Allow("old")
	*now = now.Add(11 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Fatalf("active = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-Caller")
	}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Caller", caller)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("a"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := send("a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "61" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec := send(""); rec.Code != http.StatusNoContent {
		t.Fatalf("anonymous requests are not limited, got %d", rec.Code)
	}
	rl.Stop()
}
