package ratelimit

import (
	"testing"
	"time"
)

// newTestLimiter builds a limiter and closes its cleanup goroutine with the
// test.
func newTestLimiter(t *testing.T, window time.Duration) *Limiter {
	t.Helper()
	l := New(window)
	t.Cleanup(l.Close)
	return l
}

// TestAllowExhaustsBudget verifies that a key gets exactly `limit` requests
// within one window.
func TestAllowExhaustsBudget(t *testing.T) {
	// An hour-long window makes refill negligible during the test.
	l := newTestLimiter(t, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("key-a", 3) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if l.Allow("key-a", 3) {
		t.Error("request over budget allowed, want denied")
	}
}

// TestRefillRestoresCapacity verifies that tokens come back after the
// window elapses.
func TestRefillRestoresCapacity(t *testing.T) {
	l := newTestLimiter(t, 50*time.Millisecond)

	if !l.Allow("key-a", 1) {
		t.Fatal("first request denied")
	}
	if l.Allow("key-a", 1) {
		t.Fatal("second immediate request allowed, want denied")
	}

	// Two full windows guarantees at least one token back.
	time.Sleep(120 * time.Millisecond)
	if !l.Allow("key-a", 1) {
		t.Error("request after refill denied, want allowed")
	}
}

// TestKeysAreIsolated verifies that exhausting one key leaves others
// untouched.
func TestKeysAreIsolated(t *testing.T) {
	l := newTestLimiter(t, time.Hour)

	if !l.Allow("key-a", 1) {
		t.Fatal("key-a first request denied")
	}
	if l.Allow("key-a", 1) {
		t.Fatal("key-a over budget allowed")
	}
	if !l.Allow("key-b", 1) {
		t.Error("key-b denied by key-a's state")
	}
}

// TestResetClearsKey verifies that Reset restores a key's full budget.
func TestResetClearsKey(t *testing.T) {
	l := newTestLimiter(t, time.Hour)

	l.Allow("key-a", 1)
	if l.Allow("key-a", 1) {
		t.Fatal("over budget allowed before reset")
	}

	l.Reset("key-a")
	if !l.Allow("key-a", 1) {
		t.Error("request after reset denied, want allowed")
	}
}

// TestCapRespectsLimit verifies that an idle key never accumulates more
// than `limit` tokens.
func TestCapRespectsLimit(t *testing.T) {
	l := newTestLimiter(t, 10*time.Millisecond)

	l.Allow("key-a", 2)
	// Many windows pass; the bucket must cap at 2, not grow unbounded.
	time.Sleep(60 * time.Millisecond)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("key-a", 2) {
			allowed++
		}
	}
	if allowed > 3 {
		t.Errorf("allowed %d requests after idle period, want at most 3", allowed)
	}
}
