package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/runlet-dev/runlet/internal/app/services/ratelimit"
	"github.com/runlet-dev/runlet/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthAcceptsBearerAndHeader(t *testing.T) {
	h := AdminAuth("s3cret", ratelimit.NewMemory(nil), 5, 60, logger.NewDefault("test"))(okHandler())

	req := httptest.NewRequest("GET", "/admin/routes", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer token status = %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/admin/routes", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("header token status = %d", rec.Code)
	}
}

func TestAdminAuthRejectsBadToken(t *testing.T) {
	h := AdminAuth("s3cret", ratelimit.NewMemory(nil), 5, 60, logger.NewDefault("test"))(okHandler())

	req := httptest.NewRequest("GET", "/admin/routes", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminAuthThrottlesRepeatedFailures(t *testing.T) {
	h := AdminAuth("s3cret", ratelimit.NewMemory(nil), 3, 60, logger.NewDefault("test"))(okHandler())

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/admin/routes", nil)
		req.RemoteAddr = "6.6.6.6:1000"
		req.Header.Set("X-Admin-Token", "wrong")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after repeated failures = %d, want 429", last)
	}

	// A different client is unaffected.
	req := httptest.NewRequest("GET", "/admin/routes", nil)
	req.RemoteAddr = "7.7.7.7:1000"
	req.Header.Set("X-Admin-Token", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d", rec.Code)
	}
}

func TestAdminAuthSuccessClearsCounter(t *testing.T) {
	limiter := ratelimit.NewMemory(nil)
	h := AdminAuth("s3cret", limiter, 3, 60, logger.NewDefault("test"))(okHandler())

	fail := func() int {
		req := httptest.NewRequest("GET", "/admin", nil)
		req.RemoteAddr = "5.5.5.5:1"
		req.Header.Set("X-Admin-Token", "wrong")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	fail()
	fail()

	req := httptest.NewRequest("GET", "/admin", nil)
	req.RemoteAddr = "5.5.5.5:1"
	req.Header.Set("X-Admin-Token", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d", rec.Code)
	}

	// Two more failures fit inside the budget again.
	if code := fail(); code != http.StatusUnauthorized {
		t.Fatalf("failure after reset = %d, want 401", code)
	}
	if code := fail(); code != http.StatusUnauthorized {
		t.Fatalf("second failure after reset = %d, want 401", code)
	}
}

func TestAdminAuthDisabledWithoutToken(t *testing.T) {
	h := AdminAuth("", ratelimit.NewMemory(nil), 3, 60, logger.NewDefault("test"))(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/admin", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want open access with empty token", rec.Code)
	}
}

func TestThrottleRejectsBeyondBurst(t *testing.T) {
	h := Throttle(1, 2)(okHandler())

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests rejected: %v", codes)
	}
	if codes[3] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past burst, got %v", codes)
	}
}

func TestThrottleDisabled(t *testing.T) {
	h := Throttle(0, 0)(okHandler())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d with throttle disabled", i, rec.Code)
		}
	}
}

func TestTracingSetsTraceHeader(t *testing.T) {
	h := Tracing(logger.NewDefault("test"))(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("X-Trace-ID not set")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-ID", "incoming-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Trace-ID") != "incoming-id" {
		t.Fatalf("trace id = %q, want propagated incoming-id", rec.Header().Get("X-Trace-ID"))
	}
}
