package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"standupbot/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSetGetTTL(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := New(WithClock(clk.Now))

	if err := s.Set("U1_lock", []string{"t1"}, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	clk.Advance(4900 * time.Millisecond)
	var got []string
	ok, err := s.Get("U1_lock", &got)
	if err != nil || !ok || len(got) != 1 || got[0] != "t1" {
		t.Fatalf("Get before expiry = %v, %v, %v", got, ok, err)
	}

	clk.Advance(200 * time.Millisecond)
	for i := 0; i < 2; i++ {
		ok, err := s.Get("U1_lock", &got)
		if err != nil || ok {
			t.Fatalf("Get after expiry (read %d) ok=%v err=%v, want absent", i, ok, err)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after eviction", s.Len())
	}
	if _, ok := s.ExpiresAt("U1_lock"); ok {
		t.Fatal("expiry entry should be gone with the key")
	}
}

func TestSetWithoutTTLClearsPreviousExpiry(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := New(WithClock(clk.Now))

	_ = s.Set("k", 1, time.Second)
	_ = s.Set("k", 2, 0)
	clk.Advance(time.Hour)

	var v int
	if ok, _ := s.Get("k", &v); !ok || v != 2 {
		t.Fatalf("Get = %d, %v; want 2, true", v, ok)
	}
}

func TestGetOrSetMemoizes(t *testing.T) {
	t.Parallel()
	s := New()

	var report map[string]int
	if err := s.GetOrSet("report", map[string]int{"a": 1}, &report); err != nil {
		t.Fatal(err)
	}
	if report["a"] != 1 {
		t.Fatalf("GetOrSet = %v", report)
	}

	var again map[string]int
	if ok, err := s.Get("report", &again); !ok || err != nil || again["a"] != 1 {
		t.Fatalf("Get after GetOrSet = %v, %v, %v", again, ok, err)
	}

	// An existing value wins over the default.
	var kept map[string]int
	_ = s.GetOrSet("report", map[string]int{"b": 2}, &kept)
	if _, ok := kept["b"]; ok {
		t.Fatalf("default overwrote existing value: %v", kept)
	}
}

func TestGetOrSetNilDefault(t *testing.T) {
	t.Parallel()
	s := New()

	var out map[string]int
	if err := s.GetOrSet("k", nil, &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetOrSet(nil) = %v, want ErrNotFound", err)
	}
	if s.Has("k") {
		t.Fatal("nil default was stored")
	}

	_ = s.Set("k", map[string]int{"a": 1}, 0)
	if err := s.GetOrSet("k", nil, &out); err != nil || out["a"] != 1 {
		t.Fatalf("GetOrSet(nil) on a present key = %v, %v", out, err)
	}
}

func TestUnset(t *testing.T) {
	t.Parallel()
	clk := newFakeClock()
	s := New(WithClock(clk.Now))

	if err := s.Unset("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Unset(missing) = %v, want ErrNotFound", err)
	}

	_ = s.Set("lock", []string{"t1"}, time.Second)
	clk.Advance(2 * time.Second)
	if err := s.Unset("lock"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Unset(expired) = %v, want ErrNotFound", err)
	}

	_ = s.Set("lock", []string{"t1"}, time.Minute)
	if err := s.Unset("lock"); err != nil {
		t.Fatalf("Unset(live) = %v", err)
	}
	if s.Has("lock") {
		t.Fatal("key still present after Unset")
	}
}

func TestSnapshotPreservesRemainingTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := newFakeClock()
	sink := storage.NewMemory()

	s := New(WithClock(clk.Now), WithSink(sink))
	_ = s.Set("short", "x", 5*time.Second)
	_ = s.Set("long", "y", time.Hour)
	_ = s.Set("forever", map[string]any{"n": 1}, 0)
	if err := s.Save(ctx); err != nil {
		t.Fatal(err)
	}

	clk.Advance(10 * time.Second)
	restored := New(WithClock(clk.Now), WithSink(sink))
	if err := restored.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if restored.Has("short") {
		t.Fatal("short-lived key should read as expired after restart")
	}
	var y string
	if ok, _ := restored.Get("long", &y); !ok || y != "y" {
		t.Fatalf("long = %q, %v", y, ok)
	}
	at, ok := restored.ExpiresAt("long")
	if !ok || at.Sub(clk.Now()) != time.Hour-10*time.Second {
		t.Fatalf("remaining TTL = %v, want %v", at.Sub(clk.Now()), time.Hour-10*time.Second)
	}
	if !restored.Has("forever") {
		t.Fatal("key without expiry lost across restart")
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := storage.NewMemory()
	_ = sink.Save(ctx, []byte(`{"version":7,"items":{}}`))

	s := New(WithSink(sink))
	if err := s.Load(ctx); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Load = %v, want ErrUnsupportedVersion", err)
	}
}

func TestLoadEmptySinkKeepsState(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.Set("users", []string{"U1"}, 0)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.Has("users") {
		t.Fatal("Load from empty sink wiped the store")
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Set("counter", j, time.Minute)
				var v int
				_, _ = s.Get("counter", &v)
				_ = s.Save(context.Background())
			}
		}(i)
	}
	wg.Wait()
	if !s.Has("counter") {
		t.Fatal("counter missing")
	}
}
