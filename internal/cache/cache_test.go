package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c, err := New[string](128, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Close()

	c.Set("agent-a|3|meeting|20", "cached result")
	c.Wait()

	got, ok := c.Get("agent-a|3|meeting|20")
	if !ok {
		t.Fatal("Expected cache hit after Set")
	}
	if got != "cached result" {
		t.Errorf("Expected %q, got %q", "cached result", got)
	}
}

func TestGetMissing(t *testing.T) {
	c, err := New[int](128, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Close()

	if _, ok := c.Get("nope"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestExpiration(t *testing.T) {
	c, err := New[string](128, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Close()

	c.Set("ephemeral", "value")
	c.Wait()

	time.Sleep(200 * time.Millisecond)

	if _, ok := c.Get("ephemeral"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestClear(t *testing.T) {
	c, err := New[int](128, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	c.Wait()

	c.Clear()

	for i := 0; i < 10; i++ {
		if _, ok := c.Get(fmt.Sprintf("key-%d", i)); ok {
			t.Errorf("Expected key-%d gone after Clear", i)
		}
	}
}

func TestStats(t *testing.T) {
	c, err := New[string](128, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Close()

	c.Set("k", "v")
	c.Wait()

	c.Get("k")
	c.Get("absent")

	stats := c.Stats()
	if stats.Hits == 0 {
		t.Error("Expected at least one hit")
	}
	if stats.Misses == 0 {
		t.Error("Expected at least one miss")
	}
}

func TestDelete(t *testing.T) {
	c, err := New[string](128, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Close()

	c.Set("k", "v")
	c.Wait()

	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("Expected key gone after Delete")
	}
}
