package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cachememory "github.com/mkarimof/filedepot/internal/cache/memory"
)

func newLimiter(attempts int64) *Limiter {
	return New(cachememory.New(time.Hour, 0), &Config{
		AttemptsPerWindow: attempts,
		Window:            time.Minute,
		KeyPrefix:         "test:",
	})
}

func TestAllowWithinBudget(t *testing.T) {
	l := newLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d denied, want allowed", i+1)
		}
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Error("fourth attempt allowed, want denied")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := newLimiter(1)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("first attempt for key a denied")
	}
	if res, _ := l.Allow(ctx, "b"); !res.Allowed {
		t.Error("first attempt for key b denied, keys should not share budget")
	}
}

func TestResetClearsBudget(t *testing.T) {
	l := newLimiter(1)
	ctx := context.Background()

	l.Allow(ctx, "x")
	if res, _ := l.Allow(ctx, "x"); res.Allowed {
		t.Fatal("second attempt allowed before reset")
	}

	if err := l.Reset(ctx, "x"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res, _ := l.Allow(ctx, "x"); !res.Allowed {
		t.Error("attempt denied after reset")
	}
}

func TestMiddlewareThrottles(t *testing.T) {
	l := newLimiter(2)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.1.1.1:52000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	var envelope struct {
		Error struct {
			ReasonCode string `json:"reason_code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.ReasonCode != "rate_limited" {
		t.Errorf("reason_code = %q, want rate_limited", envelope.Error.ReasonCode)
	}
}
