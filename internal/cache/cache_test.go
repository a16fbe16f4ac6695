package cache

import (
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c := New[string](time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	c.Set("a", "one")
	v, ok := c.Get("a")
	if !ok || v != "one" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[int](time.Minute)
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Set("a", 1)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after expiry")
	}

	// A fresh Set resets the TTL.
	c.Set("a", 2)
	v, ok := c.Get("a")
	if !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v after reset", v, ok)
	}
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	c := New[int](0)
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.Set("a", 1)
	now = now.Add(24 * time.Hour)
	if _, ok := c.Get("a"); !ok {
		t.Error("expected entry to survive with zero TTL")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New[int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Delete")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}
