package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalCacheSetGet(t *testing.T) {
	c := NewLocalCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || tok != "tok" {
		t.Errorf("Get = (%q, %v), want (tok, true)", tok, ok)
	}

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Error("missing key reported present")
	}
}

func TestLocalCacheExpiry(t *testing.T) {
	c := NewLocalCache()
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	// Expires in 10 minutes; the slack window makes it unavailable in the
	// last 30 seconds before that.
	if err := c.Set(ctx, "k", "tok", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("fresh token reported absent")
	}

	now = now.Add(10*time.Minute - expirySlack)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("token inside the slack window must not be handed out")
	}

	// Expired entries are dropped, not just hidden.
	if _, stillThere := c.entries["k"]; stillThere {
		t.Error("expired entry not evicted")
	}
}

func TestLocalCacheDelete(t *testing.T) {
	c := NewLocalCache()
	ctx := context.Background()

	_ = c.Set(ctx, "k", "tok", time.Now().Add(time.Hour))
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("deleted key reported present")
	}

	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestLocalCacheOverwrite(t *testing.T) {
	c := NewLocalCache()
	ctx := context.Background()

	_ = c.Set(ctx, "k", "old", time.Now().Add(time.Hour))
	_ = c.Set(ctx, "k", "new", time.Now().Add(time.Hour))
	tok, ok, _ := c.Get(ctx, "k")
	if !ok || tok != "new" {
		t.Errorf("Get = (%q, %v), want (new, true)", tok, ok)
	}
}
