package ratelimit

import (
	"testing"
	"time"
)

func TestBurstThenDeny(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("203.0.113.7") {
			t.Errorf("request %d within burst should pass", i)
		}
	}
	if limiter.Allow("203.0.113.7") {
		t.Error("request beyond burst should be denied")
	}

	// One token accrues per second at 60/min.
	time.Sleep(time.Second)
	if !limiter.Allow("203.0.113.7") {
		t.Error("request after refill should pass")
	}
}

func TestClientsLimitedSeparately(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("203.0.113.7")
	}
	if limiter.Allow("203.0.113.7") {
		t.Error("exhausted client should be limited")
	}
	if !limiter.Allow("203.0.113.8") {
		t.Error("fresh client should not be limited")
	}
}

func TestRefillRate(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	if !limiter.Allow("203.0.113.7") {
		t.Error("first request should pass")
	}
	if limiter.Allow("203.0.113.7") {
		t.Error("immediate retry should be denied")
	}

	// 600/min is 10/s, so 110ms is enough for one token.
	time.Sleep(110 * time.Millisecond)
	if !limiter.Allow("203.0.113.7") {
		t.Error("request after refill window should pass")
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want 60", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want 10", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval = %v, want 1m", cfg.CleanupInterval)
	}
}
