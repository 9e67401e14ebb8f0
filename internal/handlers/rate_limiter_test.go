package handlers

import (
	"testing"
	"time"
)

func TestFixedWindowLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected first two requests to pass")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third request to be throttled")
	}
	if !limiter.Allow("b") {
		t.Fatal("expected separate key to pass")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("a") {
		t.Fatal("expected window reset to admit the key again")
	}
}

func TestNewSimpleRateLimiterDisabled(t *testing.T) {
	if newSimpleRateLimiter(0, time.Minute, nil) != nil {
		t.Fatal("expected nil limiter for zero limit")
	}
	if newSimpleRateLimiter(5, 0, nil) != nil {
		t.Fatal("expected nil limiter for zero window")
	}
}
