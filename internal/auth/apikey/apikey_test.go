package apikey

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Hashing
// ---------------------------------------------------------------------------

// TestHashKeyDeterministic pins the digest format so stored hashes stay
// valid across releases.
func TestHashKeyDeterministic(t *testing.T) {
	const want = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got := HashKey("test"); got != want {
		t.Errorf("HashKey(\"test\") = %s, want %s", got, want)
	}
	if HashKey("test") != HashKey("test") {
		t.Error("HashKey is not deterministic")
	}
	if HashKey("test") == HashKey("Test") {
		t.Error("HashKey ignores case")
	}
}

// TestGenerateRawKey verifies the generated keys are 32 random bytes in hex.
func TestGenerateRawKey(t *testing.T) {
	a := generateRawKey()
	b := generateRawKey()

	if a == b {
		t.Fatal("two generated keys are identical")
	}
	raw, err := hex.DecodeString(a)
	if err != nil {
		t.Fatalf("generated key is not hex: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("decoded key length = %d bytes, want 32", len(raw))
	}
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

// TestCacheHitSkipsDatabase verifies that a cached key validates without a
// database round trip. The validator has no database here; a cache miss
// would crash the test.
func TestCacheHitSkipsDatabase(t *testing.T) {
	v := NewValidator(nil, time.Hour)

	raw := generateRawKey()
	v.store(HashKey(raw), KeyInfo{ID: "key-1", Name: "ingest", RateLimit: 120, IsActive: true})

	info, err := v.Validate(t.Context(), raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if info.ID != "key-1" || info.RateLimit != 120 {
		t.Errorf("info = %+v", info)
	}
}

// TestCacheDisabledByZeroTTL verifies that a zero TTL stores nothing.
func TestCacheDisabledByZeroTTL(t *testing.T) {
	v := NewValidator(nil, 0)

	v.store("hash", KeyInfo{ID: "key-1"})
	if _, ok := v.cached("hash"); ok {
		t.Error("cache returned an entry with TTL 0")
	}
	if len(v.cache) != 0 {
		t.Errorf("cache holds %d entries with TTL 0, want 0", len(v.cache))
	}
}

// TestCacheEntryExpires verifies that entries older than the TTL are
// treated as misses.
func TestCacheEntryExpires(t *testing.T) {
	v := NewValidator(nil, time.Minute)

	v.cache["hash"] = cacheEntry{
		info:     KeyInfo{ID: "key-1"},
		cachedAt: time.Now().Add(-2 * time.Minute),
	}
	if _, ok := v.cached("hash"); ok {
		t.Error("cache returned a stale entry")
	}
}

// TestCachedExpiredKeyRejected verifies that a cached key past its
// expires_at is rejected and evicted rather than served.
func TestCachedExpiredKeyRejected(t *testing.T) {
	v := NewValidator(nil, time.Hour)

	raw := generateRawKey()
	hash := HashKey(raw)
	expired := time.Now().Add(-time.Minute)
	v.store(hash, KeyInfo{ID: "key-1", ExpiresAt: &expired})

	_, err := v.Validate(t.Context(), raw)
	if !errors.Is(err, ErrExpiredKey) {
		t.Fatalf("validate error = %v, want ErrExpiredKey", err)
	}
	if _, ok := v.cache[hash]; ok {
		t.Error("expired entry not evicted")
	}
}

// TestCacheReturnsCopy verifies that mutating a validation result does not
// corrupt the cached entry.
func TestCacheReturnsCopy(t *testing.T) {
	v := NewValidator(nil, time.Hour)
	v.store("hash", KeyInfo{ID: "key-1", RateLimit: 120})

	info, ok := v.cached("hash")
	if !ok {
		t.Fatal("cache miss for stored entry")
	}
	info.RateLimit = 1

	again, ok := v.cached("hash")
	if !ok {
		t.Fatal("cache miss on second read")
	}
	if again.RateLimit != 120 {
		t.Errorf("cached rate limit = %d after caller mutation, want 120", again.RateLimit)
	}
}

// TestEvictRemovesEntry verifies eviction.
func TestEvictRemovesEntry(t *testing.T) {
	v := NewValidator(nil, time.Hour)
	v.store("hash", KeyInfo{ID: "key-1"})

	v.evict("hash")
	if _, ok := v.cached("hash"); ok {
		t.Error("entry survived eviction")
	}
}
