package portal

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Now()
	cache := NewTTLCache(time.Hour)
	cache.now = func() time.Time { return now }

	cache.Set("k", []byte("v"))
	if got, ok := cache.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("fresh entry should be served, got %q/%v", got, ok)
	}

	now = now.Add(59 * time.Minute)
	if _, ok := cache.Get("k"); !ok {
		t.Errorf("entry within TTL should still be served")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Errorf("expired entry must not be served")
	}
}

func TestTTLCacheSetRestartsLifetime(t *testing.T) {
	now := time.Now()
	cache := NewTTLCache(time.Hour)
	cache.now = func() time.Time { return now }

	cache.Set("k", []byte("old"))
	now = now.Add(50 * time.Minute)
	cache.Set("k", []byte("new"))
	now = now.Add(30 * time.Minute)

	got, ok := cache.Get("k")
	if !ok || string(got) != "new" {
		t.Errorf("overwrite should restart the TTL, got %q/%v", got, ok)
	}
}

func TestTTLCachePurge(t *testing.T) {
	now := time.Now()
	cache := NewTTLCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Set("a", []byte("1"))
	now = now.Add(2 * time.Minute)
	cache.Set("b", []byte("2"))

	if removed := cache.Purge(); removed != 1 {
		t.Errorf("expected 1 purged entry, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", cache.Len())
	}
}

func TestResponseCacheKey(t *testing.T) {
	key := ResponseCacheKey("27AAACB2894G1ZK", "gstr-2b", "", 2024, time.April)
	want := "27AAACB2894G1ZK/gstr-2b//2024-04"
	if key != want {
		t.Errorf("cache key: got %q, want %q", key, want)
	}

	other := ResponseCacheKey("27AAACB2894G1ZK", "gstr-2b", "", 2024, time.May)
	if key == other {
		t.Errorf("different periods must key differently")
	}
}
