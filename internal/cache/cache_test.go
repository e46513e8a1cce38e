package cache

import (
	"context"
	"testing"
)

func TestNew_EmptyAddrReturnsNilCache(t *testing.T) {
	c := New("", 0, false, 0)
	if c != nil {
		t.Fatalf("expected a nil *Cache for an empty addr, got %+v", c)
	}
}

// A nil *Cache must behave as an always-miss, no-op cache so callers
// never need an if-cache-enabled branch at every call site.
func TestNilCache_IsAlwaysMissAndNeverPanics(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var dest string
	if ok := c.Get(ctx, "key", &dest); ok {
		t.Fatalf("expected a nil cache to always miss")
	}

	c.Set(ctx, "key", "value", 0)

	n, err := c.InvalidatePrefix(ctx, "prefix")
	if err != nil || n != 0 {
		t.Fatalf("expected InvalidatePrefix on a nil cache to no-op, got n=%d err=%v", n, err)
	}

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("expected Ping on a nil cache to succeed, got %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("expected Close on a nil cache to succeed, got %v", err)
	}
}

func TestNew_NonEmptyAddrReturnsUsableCache(t *testing.T) {
	c := New("localhost:0", 1, false, 0)
	if c == nil {
		t.Fatalf("expected a non-nil *Cache for a non-empty addr")
	}
}
