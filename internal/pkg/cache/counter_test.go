package cache

import (
	"errors"
	"testing"
	"time"
)

func TestMemoryCounter_IncrementAndGet(t *testing.T) {
	t.Parallel()

	c := NewMemoryCounter()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Increment("k", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("Increment = %d, want %d", got, want)
		}
	}

	val, err := c.Get("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 3 {
		t.Fatalf("Get = %d, want 3", val)
	}
}

func TestMemoryCounter_MissingKey(t *testing.T) {
	t.Parallel()

	c := NewMemoryCounter()

	if _, err := c.Get("absent"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("Get on missing key = %v, want ErrNoKey", err)
	}
	if _, err := c.TTL("absent"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("TTL on missing key = %v, want ErrNoKey", err)
	}
}

func TestMemoryCounter_ExpiryWithClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.SetClock(func() time.Time { return now })

	if _, err := c.Increment("k", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(61 * time.Second)

	if _, err := c.Get("k"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected expired key to read as ErrNoKey, got %v", err)
	}

	// A fresh increment after expiry starts over at 1.
	got, err := c.Increment("k", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("Increment after expiry = %d, want 1", got)
	}
}

func TestMemoryCounter_IncrementRefreshesTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.SetClock(func() time.Time { return now })

	if _, err := c.Increment("k", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(45 * time.Second)
	if _, err := c.Increment("k", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ttl, err := c.TTL("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != time.Minute {
		t.Fatalf("TTL after refresh = %v, want %v", ttl, time.Minute)
	}
}

func TestMemoryCounter_SetNX(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.SetClock(func() time.Time { return now })

	created, err := c.SetNX("marker", "1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("first SetNX should create the key")
	}

	created, err = c.SetNX("marker", "2", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("second SetNX must not overwrite an existing key")
	}

	// After expiry the key is claimable again.
	now = now.Add(time.Hour + time.Second)
	created, err = c.SetNX("marker", "3", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("SetNX after expiry should create the key")
	}
}

func TestMemoryCounter_Delete(t *testing.T) {
	t.Parallel()

	c := NewMemoryCounter()

	if _, err := c.Increment("a", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Set("b", "x", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Delete("a", "b", "missing"); err != nil {
		t.Fatalf("Delete with missing key should not error: %v", err)
	}
	if _, err := c.Get("a"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected deleted key to be gone, got %v", err)
	}
}
