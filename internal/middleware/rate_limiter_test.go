package middleware

import (
	"testing"
	"time"

	"github.com/fitfriends/backend/internal/config"
)

func newTestLimiter(cfg config.RateLimitConfig, now *time.Time) *KeyedRateLimiter {
	limiter := NewKeyedRateLimiter(cfg)
	limiter.now = func() time.Time { return *now }
	return limiter
}

func TestKeyedRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(config.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 2}, &now)

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow("follow:1.2.3.4"); !ok {
			t.Fatalf("expected burst request %d to be allowed", i+1)
		}
	}

	ok, retry := limiter.Allow("follow:1.2.3.4")
	if ok {
		t.Fatal("expected third request to be limited")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("expected a retry hint within the window, got %s", retry)
	}

	if ok, _ := limiter.Allow("follow:5.6.7.8"); !ok {
		t.Fatal("expected other callers to be unaffected")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow("follow:1.2.3.4"); !ok {
		t.Fatal("expected a token to be available after the window")
	}
}

func TestKeyedRateLimiterDropsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(config.RateLimitConfig{Requests: 1, Window: time.Second, Burst: 1}, &now)

	limiter.Allow("a")
	now = now.Add(11 * time.Second)
	limiter.Allow("b")

	if limiter.Len() != 1 {
		t.Fatalf("expected idle bucket to be dropped, tracking %d", limiter.Len())
	}
}

func TestKeyedRateLimiterDefaults(t *testing.T) {
	limiter := NewKeyedRateLimiter(config.RateLimitConfig{})
	if ok, _ := limiter.Allow(""); !ok {
		t.Fatal("expected the first request to pass with zero config")
	}
	if limiter.window != time.Minute || limiter.burst != 1 {
		t.Fatalf("unexpected defaults window=%s burst=%d", limiter.window, limiter.burst)
	}
}
