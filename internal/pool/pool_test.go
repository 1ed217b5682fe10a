package pool

import (
	"context"
	"testing"
)

type fakeConn struct{ id int }

func TestPoolAcquireReleaseReusesIdle(t *testing.T) {
	var opened int
	p := New(Config{MaxOpen: 2, MaxIdle: 2}, func(context.Context) (*fakeConn, error) {
		opened++
		return &fakeConn{id: opened}, nil
	}, nil, nil)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first := lease.Conn
	lease.Release()

	lease2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease2.Conn != first {
		t.Errorf("expected idle connection reuse, got a new connection")
	}
	if opened != 1 {
		t.Errorf("opened = %d, want 1", opened)
	}
	lease2.Release()
}

func TestPoolBypassBeyondCapacity(t *testing.T) {
	p := New(Config{MaxOpen: 1, MaxIdle: 1}, func(context.Context) (*fakeConn, error) {
		return &fakeConn{}, nil
	}, nil, nil)

	l1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire (bypass): %v", err)
	}
	if !l2.bypass {
		t.Error("expected second acquisition beyond capacity to be a bypass connection")
	}
	stats := p.Stats()
	if stats.BypassCount != 1 {
		t.Errorf("BypassCount = %d, want 1", stats.BypassCount)
	}
	l1.Release()
	l2.Release()
}

func TestGraphHandleScopeIsolation(t *testing.T) {
	n := 0
	gh := NewGraphHandle(func() int {
		n++
		return n
	})

	ctx1, v1, release1 := gh.Scope(context.Background())
	ctx2, v2, release2 := gh.Scope(context.Background())
	if v1 == v2 {
		t.Errorf("expected distinct scope values, got %d and %d", v1, v2)
	}

	got1, ok := gh.Value(ctx1)
	if !ok || got1 != v1 {
		t.Errorf("Value(ctx1) = %d, %v; want %d, true", got1, ok, v1)
	}
	got2, ok := gh.Value(ctx2)
	if !ok || got2 != v2 {
		t.Errorf("Value(ctx2) = %d, %v; want %d, true", got2, ok, v2)
	}

	release1()
	if _, ok := gh.Value(ctx1); ok {
		t.Error("expected scope value to be gone after release")
	}
	release2()
}
