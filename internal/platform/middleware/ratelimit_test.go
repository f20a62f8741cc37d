package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/platform/auth"
)

func rateLimitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

// fire runs one request through h. Errors go through echo's error handler,
// as the router would, so denials show up on the recorder.
func fire(e *echo.Echo, h echo.HandlerFunc, ip string, id *auth.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
	req.RemoteAddr = ip + ":1234"
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5, ExpiresIn: time.Minute})

	for i := 0; i < 5; i++ {
		rec := fire(e, h, "10.0.0.1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2, ExpiresIn: time.Minute})

	for i := 0; i < 2; i++ {
		if rec := fire(e, h, "10.0.0.2", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := fire(e, h, "10.0.0.2", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After '1', got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", got)
	}
}

func TestRateLimit_PerCallerIsolation(t *testing.T) {
	e := echo.New()
	h := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1, ExpiresIn: time.Minute})
	alice := &auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}
	bob := &auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}

	if rec := fire(e, h, "10.0.0.3", alice); rec.Code != http.StatusOK {
		t.Fatalf("alice first request: expected 200, got %d", rec.Code)
	}
	if rec := fire(e, h, "10.0.0.3", alice); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("alice second request: expected 429, got %d", rec.Code)
	}
	// Same IP, different user.
	if rec := fire(e, h, "10.0.0.3", bob); rec.Code != http.StatusOK {
		t.Fatalf("bob should get a separate bucket, got %d", rec.Code)
	}
	// Anonymous caller from the same IP is keyed separately as well.
	if rec := fire(e, h, "10.0.0.3", nil); rec.Code != http.StatusOK {
		t.Fatalf("anonymous caller should have own bucket, got %d", rec.Code)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 || cfg.ExpiresIn != 3*time.Minute {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
