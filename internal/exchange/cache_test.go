package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCacheKey(t *testing.T) {
	if got := cacheKey("USD", "EUR", "2024-01-10"); got != "USD=>EUR@2024-01-10" {
		t.Errorf("cacheKey() = %q", got)
	}
	if got := cacheKey("ETH", "USD", ""); got != "ETH=>USD@latest" {
		t.Errorf("cacheKey() for latest = %q", got)
	}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := newRateCache(time.Minute)

	c.set("test-key", Rate{Base: "USD", Target: "EUR", Value: decimal.RequireFromString("0.9")})

	got, ok := c.get("test-key")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if got.Value.String() != "0.9" {
		t.Errorf("cached rate = %s, want 0.9", got.Value)
	}

	if _, ok := c.get("missing-key"); ok {
		t.Error("expected cache miss for missing key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := newRateCache(time.Minute)
	c.set("expire-key", Rate{Value: decimal.NewFromInt(2)})

	// Manually expire the entry
	c.mu.Lock()
	entry := c.entries["expire-key"]
	entry.expiresAt = time.Now().Add(-1 * time.Second)
	c.entries["expire-key"] = entry
	c.mu.Unlock()

	if _, ok := c.get("expire-key"); ok {
		t.Error("expected cache miss for expired entry")
	}
}

func TestCacheEvictsExpiredEntry(t *testing.T) {
	c := newRateCache(time.Minute)
	c.set("fresh", Rate{Value: decimal.NewFromInt(1)})
	c.setFor("stale", Rate{Value: decimal.NewFromInt(2)}, -time.Second)

	if _, ok := c.get("stale"); ok {
		t.Fatal("expected cache miss for expired entry")
	}
	if got := c.size(); got != 1 {
		t.Errorf("entries after expired read = %d, want 1", got)
	}
	if _, ok := c.get("fresh"); !ok {
		t.Error("expected fresh entry to survive")
	}
}
