package llm

import (
	"testing"
	"time"
)

func TestRateLimiterAllows(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("call %d denied, want allowed", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Error("4th call allowed, want denied")
	}
	// Other users are unaffected.
	if !rl.Allow("bob") {
		t.Error("bob denied by alice's quota")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("alice") {
		t.Fatal("first call denied")
	}
	if rl.Allow("alice") {
		t.Fatal("second call inside window allowed")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Error("call denied after window expired")
	}
}

func TestRateLimiterRemaining(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	if got := rl.Remaining("alice"); got != 2 {
		t.Errorf("Remaining() = %d, want 2", got)
	}
	rl.Allow("alice")
	if got := rl.Remaining("alice"); got != 1 {
		t.Errorf("Remaining() = %d, want 1", got)
	}
	rl.Allow("alice")
	if got := rl.Remaining("alice"); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != DefaultRateLimit {
		t.Errorf("limit = %d, want %d", rl.limit, DefaultRateLimit)
	}
	if rl.window != defaultRateLimitWindow {
		t.Errorf("window = %s, want %s", rl.window, defaultRateLimitWindow)
	}
}
