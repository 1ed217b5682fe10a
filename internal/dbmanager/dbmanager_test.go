package dbmanager

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireSharesSingleValuePerKey(t *testing.T) {
	m := New[int]()
	opens := 0
	open := func() (int, error) {
		opens++
		return 42, nil
	}

	h1, err := m.Acquire("db-a", open)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h2, err := m.Acquire("db-a", open)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if opens != 1 {
		t.Errorf("opens = %d, want 1 (second Acquire should reuse the cached value)", opens)
	}
	if h1.Value != h2.Value {
		t.Errorf("h1.Value = %d, h2.Value = %d, want equal", h1.Value, h2.Value)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	closed := 0
	if err := h1.Release(func(int) error { closed++; return nil }); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if closed != 0 {
		t.Errorf("closed = %d, want 0 (entry still referenced by h2)", closed)
	}
	if err := h2.Release(func(int) error { closed++; return nil }); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1 after last Release", closed)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after last Release", m.Len())
	}
}

func TestConcurrentAcquireOpensOnceAndClosesOnce(t *testing.T) {
	m := New[int]()
	var opens atomic.Int32
	open := func() (int, error) {
		opens.Add(1)
		time.Sleep(10 * time.Millisecond) // widen the race window
		return 7, nil
	}

	const callers = 5
	handles := make([]*Handle[int], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire("db-a", open)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := opens.Load(); got != 1 {
		t.Errorf("opens = %d, want 1 across concurrent callers", got)
	}

	var closes atomic.Int32
	for _, h := range handles {
		if h == nil {
			t.Fatal("missing handle")
		}
		if err := h.Release(func(int) error { closes.Add(1); return nil }); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if got := closes.Load(); got != 1 {
		t.Errorf("closes = %d, want exactly 1 after the last Release", got)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestLiveHandlesTracksOutstandingHandles(t *testing.T) {
	m := New[int]()
	h1, err := m.Acquire("db-a", func() (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h2, err := m.Acquire("db-a", func() (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := m.LiveHandles(); got != 2 {
		t.Errorf("LiveHandles = %d, want 2", got)
	}

	if err := h1.Release(nil); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := m.LiveHandles(); got != 1 {
		t.Errorf("LiveHandles = %d, want 1 after one Release", got)
	}
	if err := h2.Release(nil); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := m.LiveHandles(); got != 0 {
		t.Errorf("LiveHandles = %d, want 0 after both Releases", got)
	}
}

func TestCleanupAllDrainsRegistry(t *testing.T) {
	m := New[int]()
	for _, key := range []string{"db-a", "db-b"} {
		if _, err := m.Acquire(key, func() (int, error) { return 1, nil }); err != nil {
			t.Fatalf("Acquire(%s): %v", key, err)
		}
	}

	closed := 0
	if err := m.CleanupAll(func(int) error { closed++; return nil }); err != nil {
		t.Fatalf("CleanupAll: %v", err)
	}
	if closed != 2 {
		t.Errorf("closed = %d, want 2", closed)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after CleanupAll", m.Len())
	}
}

func TestAcquireDistinctKeysOpenIndependently(t *testing.T) {
	m := New[int]()
	opens := 0
	open := func() (int, error) {
		opens++
		return opens, nil
	}

	if _, err := m.Acquire("db-a", open); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := m.Acquire("db-b", open); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if opens != 2 {
		t.Errorf("opens = %d, want 2 for two distinct keys", opens)
	}
}
