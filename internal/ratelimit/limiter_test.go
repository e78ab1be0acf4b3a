package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Clock = clock
	return New(cfg), clock
}

func TestAllowCreateCooldown(t *testing.T) {
	limiter, clock := newTestLimiter(nil)

	if res := limiter.AllowCreate("user_1", "1.2.3.4"); !res.Allowed {
		t.Fatalf("first attempt should pass: %+v", res)
	}

	res := limiter.AllowCreate("user_1", "1.2.3.4")
	if res.Allowed {
		t.Fatal("second attempt inside cooldown should be rejected")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 3*time.Second {
		t.Fatalf("unexpected retry-after: %v", res.RetryAfter)
	}

	clock.advance(3 * time.Second)
	if res := limiter.AllowCreate("user_1", "1.2.3.4"); !res.Allowed {
		t.Fatalf("attempt after cooldown should pass: %+v", res)
	}
}

func TestAllowCreateUserHourlyLimit(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		CreateCooldown:     0,
		CreateMaxPerHour:   3,
		CreateMaxIPPerHour: 100,
	})

	for i := 0; i < 3; i++ {
		if res := limiter.AllowCreate("user_1", "1.2.3.4"); !res.Allowed {
			t.Fatalf("attempt %d should pass: %+v", i, res)
		}
		clock.advance(time.Second)
	}

	res := limiter.AllowCreate("user_1", "1.2.3.4")
	if res.Allowed {
		t.Fatal("fourth attempt should hit the user hourly limit")
	}
	if res.Reason != "user hourly limit" {
		t.Fatalf("unexpected reason: %q", res.Reason)
	}

	// Another user from the same IP is unaffected.
	if res := limiter.AllowCreate("user_2", "1.2.3.4"); !res.Allowed {
		t.Fatalf("other user should pass: %+v", res)
	}
}

func TestAllowCreateIPHourlyLimit(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		CreateCooldown:     0,
		CreateMaxPerHour:   100,
		CreateMaxIPPerHour: 2,
	})

	for i := 0; i < 2; i++ {
		userID := "user_a"
		if i == 1 {
			userID = "user_b"
		}
		if res := limiter.AllowCreate(userID, "1.2.3.4"); !res.Allowed {
			t.Fatalf("attempt %d should pass: %+v", i, res)
		}
		clock.advance(time.Second)
	}

	res := limiter.AllowCreate("user_c", "1.2.3.4")
	if res.Allowed {
		t.Fatal("third attempt from the IP should be rejected")
	}
	if res.Reason != "ip hourly limit" {
		t.Fatalf("unexpected reason: %q", res.Reason)
	}
}

func TestAllowCreateWindowResets(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		CreateCooldown:     0,
		CreateMaxPerHour:   1,
		CreateMaxIPPerHour: 1,
	})

	if res := limiter.AllowCreate("user_1", "1.2.3.4"); !res.Allowed {
		t.Fatalf("first attempt should pass: %+v", res)
	}
	if res := limiter.AllowCreate("user_1", "1.2.3.4"); res.Allowed {
		t.Fatal("second attempt inside the window should be rejected")
	}

	clock.advance(time.Hour)
	if res := limiter.AllowCreate("user_1", "1.2.3.4"); !res.Allowed {
		t.Fatalf("window should reset after an hour: %+v", res)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/bookings", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	if got := ClientIP(r); got != "192.0.2.7" {
		t.Fatalf("remote addr: got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("forwarded: got %q", got)
	}
}
