package wsrelay

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, 1*time.Second)

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-1") {
			t.Errorf("attempt %d should be allowed", i+1)
		}
	}
	if rl.Allow("client-1") {
		t.Error("4th attempt should be rejected")
	}
	if !rl.Allow("client-2") {
		t.Error("different client should be allowed")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)

	if !rl.Allow("client-1") || !rl.Allow("client-1") {
		t.Fatal("first two attempts should be allowed")
	}
	if rl.Allow("client-1") {
		t.Error("third attempt should be rejected")
	}

	time.Sleep(150 * time.Millisecond)

	if !rl.Allow("client-1") {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, 1*time.Minute)

	if !rl.Allow("client-1") {
		t.Error("first should be allowed")
	}
	if rl.Allow("client-1") {
		t.Error("second should be rejected")
	}

	rl.Reset()

	if !rl.Allow("client-1") {
		t.Error("should be allowed after reset")
	}
}
