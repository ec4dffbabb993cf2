package cache

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T, maxBytes int64) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, maxBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSetRoundTrip(t *testing.T) {
	c := openTestCache(t, 1<<20)

	if err := c.Set("a", []byte("hello")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok := c.Get("a")
	if !ok || string(v) != "hello" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	if !c.Contains("a") {
		t.Fatal("Contains(a) = false")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d", c.Len())
	}
}

func TestByteBudgetInvariant(t *testing.T) {
	c := openTestCache(t, 1<<20)

	for i := 0; i < 10; i++ {
		if err := c.Set(fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	var sum int64
	for i := 0; i < 10; i++ {
		if v, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			sum += int64(len(v))
		}
	}
	if sum != c.CurrentBytes() {
		t.Fatalf("CurrentBytes() = %d, sum of values = %d", c.CurrentBytes(), sum)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	// Each value is 10 bytes; a 25-byte budget holds at most two.
	c := openTestCache(t, 25)

	val := []byte("0123456789")
	if err := c.Set("a", val); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("b", val); err != nil {
		t.Fatal(err)
	}

	// Touch "a" so "b" becomes the least-recently-used entry.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}

	if err := c.Set("c", val); err != nil {
		t.Fatal(err)
	}

	if c.Contains("b") {
		t.Fatal("expected b to have been evicted as least-recently-used")
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Fatal("expected a and c to remain")
	}
}

func TestOversizedEntryAdmittedWhenStoreEmpty(t *testing.T) {
	c := openTestCache(t, 5)

	big := []byte("this value is bigger than the budget")
	if err := c.Set("only", big); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok := c.Get("only")
	if !ok || string(v) != string(big) {
		t.Fatalf("Get(only) = %q, %v", v, ok)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	c1, err := Open(path, 1<<20)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c1.Set("persisted", []byte("still here")); err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(path, 1<<20)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	v, ok := c2.Get("persisted")
	if !ok || string(v) != "still here" {
		t.Fatalf("Get(persisted) after reopen = %q, %v", v, ok)
	}
	if c2.Len() != 1 {
		t.Fatalf("Len() after reopen = %d", c2.Len())
	}
}
