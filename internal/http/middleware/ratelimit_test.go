package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medibook/patient-portal/internal/session"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	defer rl.Close()
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("burst should be allowed")
	}
	if rl.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("keys are independent")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatalf("one token should refill after a second")
	}
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	defer rl.Close()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.evict(now.Add(time.Minute))
	if len(rl.buckets) != 0 {
		t.Fatalf("expected idle bucket to be evicted")
	}
	rl.Close()
	rl.Close()
}

func TestRateLimitKeysByPatient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()
	handler := RateLimit(rl)(okHandler(nil))

	send := func(patientID, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/doctors/doc1/bookings", nil)
		req.RemoteAddr = ip
		if patientID != "" {
			req = req.WithContext(session.WithSession(req.Context(), session.New("tok", patientID, time.Time{})))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("patient-1", "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", code)
	}
	if code := send("patient-1", "10.0.0.2:1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected patient to be limited across IPs, got %d", code)
	}
	if code := send("patient-2", "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("expected other patient allowed, got %d", code)
	}
	if code := send("", "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("expected anonymous request keyed by IP, got %d", code)
	}
	if code := send("", "10.0.0.1:1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected repeated anonymous request limited, got %d", code)
	}
}
