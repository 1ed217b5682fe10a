// Package dbmanager implements the Database Manager Factory: a refcounted
// cache of shared handles keyed by resolved database path, so multiple
// in-process callers opening the same logical database reuse one
// underlying connection set instead of racing to acquire the same root
// lockfile twice.
package dbmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"weak"

	"golang.org/x/sync/singleflight"
)

// entry holds one cached value and how many live handles reference it.
type entry[T any] struct {
	value    T
	refcount int
}

// Manager is a mutex-guarded, refcounted registry of shared values keyed by
// a caller-chosen string (typically a resolved filesystem path). Every
// handed-out Handle is also tracked through a weak pointer, so the
// registry can report handles still outstanding without pinning them: a
// handle abandoned by a crashed caller stays collectable, and its
// runtime.AddCleanup finalizer reports the leak.
type Manager[T any] struct {
	mu        sync.Mutex
	entries   map[string]*entry[T]
	opens     singleflight.Group
	handleSeq uint64
	handles   map[uint64]weak.Pointer[Handle[T]]
}

// New constructs an empty Manager.
func New[T any]() *Manager[T] {
	return &Manager[T]{
		entries: make(map[string]*entry[T]),
		handles: make(map[uint64]weak.Pointer[Handle[T]]),
	}
}

// Handle is a refcounted reference to a shared value. Callers must call
// Release exactly once when done; a handle dropped without Release is
// reported via the slog warning installed by runtime.AddCleanup, since the
// underlying entry's refcount would otherwise never reach zero.
type Handle[T any] struct {
	Value T

	key     string
	id      uint64
	mgr     *Manager[T]
	cleanup runtime.Cleanup
}

// Release decrements the shared entry's refcount, closing it via closeFn
// when no handle references it anymore.
func (h *Handle[T]) Release(closeFn func(T) error) error {
	h.cleanup.Stop()
	h.mgr.mu.Lock()
	delete(h.mgr.handles, h.id)
	h.mgr.mu.Unlock()
	return h.mgr.release(h.key, closeFn)
}

// Acquire returns a Handle to the value cached under key, creating it via
// openFn on first use and incrementing the refcount on every subsequent
// call. Concurrent Acquire calls for the same key share a single openFn
// call via singleflight, so the value is never opened twice — which also
// means concurrent callers never race each other for the database's root
// lockfile.
func (m *Manager[T]) Acquire(key string, openFn func() (T, error)) (*Handle[T], error) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.refcount++
		m.mu.Unlock()
		return m.newHandle(key, e.value), nil
	}
	m.mu.Unlock()

	v, err, _ := m.opens.Do(key, func() (any, error) {
		// Re-check: the entry may have been inserted by a caller who
		// finished a previous flight between our cache miss and this call.
		m.mu.Lock()
		if e, ok := m.entries[key]; ok {
			m.mu.Unlock()
			return e.value, nil
		}
		m.mu.Unlock()
		return openFn()
	})
	if err != nil {
		return nil, err
	}
	value := v.(T)

	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.refcount++
		value = e.value
	} else {
		m.entries[key] = &entry[T]{value: value, refcount: 1}
	}
	m.mu.Unlock()
	return m.newHandle(key, value), nil
}

func (m *Manager[T]) newHandle(key string, value T) *Handle[T] {
	h := &Handle[T]{Value: value, key: key, mgr: m}
	m.mu.Lock()
	m.handleSeq++
	h.id = m.handleSeq
	m.handles[h.id] = weak.Make(h)
	m.mu.Unlock()
	h.cleanup = runtime.AddCleanup(h, func(key string) {
		slog.Warn("dbmanager: handle garbage collected without Release", "key", key)
	}, key)
	return h
}

// LiveHandles reports how many handed-out handles have been neither
// Released nor garbage collected. The count reads through the weak
// pointers, so abandoned handles fall out of it as the collector reclaims
// them.
func (m *Manager[T]) LiveHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, wp := range m.handles {
		if wp.Value() == nil {
			delete(m.handles, id)
			continue
		}
		n++
	}
	return n
}

func (m *Manager[T]) release(key string, closeFn func(T) error) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("dbmanager: release of unknown key %q", key)
	}
	e.refcount--
	if e.refcount > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.entries, key)
	m.mu.Unlock()

	if closeFn != nil {
		return closeFn(e.value)
	}
	return nil
}

// CleanupAll drains the registry and closes every cached value via closeFn,
// regardless of outstanding refcounts. Intended for process shutdown and
// test teardown; handles still held afterwards fail their Release with an
// unknown-key error rather than double-closing.
func (m *Manager[T]) CleanupAll(closeFn func(T) error) error {
	if live := m.LiveHandles(); live > 0 {
		slog.Warn("dbmanager: cleanup with handles still outstanding", "handles", live)
	}
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry[T])
	m.mu.Unlock()

	var errs []error
	for key, e := range entries {
		if closeFn == nil {
			continue
		}
		if err := closeFn(e.value); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Len reports how many distinct keys are currently cached, for tests and
// diagnostics.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
