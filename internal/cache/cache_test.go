package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoad_CachesUntilTTL(t *testing.T) {
	t.Parallel()

	c := New(nil)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	calls := 0
	load := func() (int, error) {
		calls++
		return calls, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Load(c, "data", time.Minute, load)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if v != 1 {
			t.Errorf("Expected cached value 1, got %d", v)
		}
	}

	now = now.Add(time.Minute)
	v, err := Load(c, "data", time.Minute, load)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v != 2 {
		t.Errorf("Expected reload after TTL, got %d", v)
	}
}

func TestLoad_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	c := New(nil)
	boom := errors.New("boom")
	if _, err := Load(c, "k", 0, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	v, err := Load(c, "k", 0, func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("Expected (ok, nil), got (%q, %v)", v, err)
	}
}

func TestLoad_ConcurrentMissesShareOneCall(t *testing.T) {
	t.Parallel()

	c := New(nil)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Load(c, "slow", 0, func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("Expected a single loader call, got %d", n)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	t.Parallel()

	c := New(nil)
	_, _ = Load(c, "a", 0, func() (int, error) { return 1, nil })
	_, _ = Load(c, "b", 0, func() (int, error) { return 2, nil })

	c.Invalidate("a")
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry after Invalidate, got %d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", c.Len())
	}
}
