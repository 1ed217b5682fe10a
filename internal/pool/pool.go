// Package pool implements a generic, bounded connection pool shared by all
// three substrate adapters, plus the per-goroutine graph transaction handle
// and lockfile-based stale-writer recovery the Connection Pool component
// needs.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/grizabella-go/grizabella/internal/resilience"
	"github.com/grizabella-go/grizabella/internal/telemetry"
)

// Factory opens a new connection of type T.
type Factory[T any] func(ctx context.Context) (T, error)

// Liveness reports whether a pooled connection is still usable. A pool
// with no Liveness function never evicts on liveness, only on idle
// timeout.
type Liveness[T any] func(T) bool

// Closer closes a connection of type T.
type Closer[T any] func(T) error

type pooledConn[T any] struct {
	conn   T
	idleAt time.Time
}

// Config tunes a Pool's capacity, idle-eviction, and dial-gating behavior.
type Config struct {
	MaxOpen     int
	MaxIdle     int
	IdleTimeout time.Duration

	// BreakerName labels this pool's dial gate in logs, typically the
	// substrate name.
	BreakerName string

	// DialMaxFailures and DialResetTimeout tune the dial gate per
	// substrate; zero values take the gate's own defaults.
	DialMaxFailures  int
	DialResetTimeout time.Duration
}

// Pool is a generic, goroutine-safe bounded pool of substrate connections.
// Acquire never waits for a connection to be released: when the pool is at
// capacity it opens a bypass connection instead, which Release always
// closes rather than returning to the free list — this lets the engine keep serving requests under burst
// load rather than reject them, at the cost of temporarily exceeding
// MaxOpen.
type Pool[T any] struct {
	cfg     Config
	factory Factory[T]
	live    Liveness[T]
	closer  Closer[T]
	sem     *semaphore.Weighted
	gate    *resilience.DialGate

	mu          sync.Mutex
	idle        []*pooledConn[T]
	inUse       int
	bypassTotal atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Pool. factory opens connections on demand; live and
// closer may be nil (live defaults to "always usable", closer defaults to
// a no-op — appropriate for types whose zero value needs no teardown).
func New[T any](cfg Config, factory Factory[T], live Liveness[T], closer Closer[T]) *Pool[T] {
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 8
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = cfg.MaxOpen
	}
	if live == nil {
		live = func(T) bool { return true }
	}
	if closer == nil {
		closer = func(T) error { return nil }
	}
	return &Pool[T]{
		cfg:     cfg,
		factory: factory,
		live:    live,
		closer:  closer,
		sem:     semaphore.NewWeighted(int64(cfg.MaxOpen)),
		gate: resilience.NewDialGate(resilience.DialGateConfig{
			PoolName:     cfg.BreakerName,
			MaxFailures:  cfg.DialMaxFailures,
			ResetTimeout: cfg.DialResetTimeout,
		}),
		closed:  make(chan struct{}),
	}
}

// Lease is a connection checked out of a Pool. Callers must call Release
// exactly once when done.
type Lease[T any] struct {
	Conn   T
	pool   *Pool[T]
	bypass bool
}

// Release returns the leased connection to its Pool.
func (l *Lease[T]) Release() {
	l.pool.release(l.Conn, l.bypass)
}

// Acquire returns a live connection, preferring an idle one from the free
// list, opening a new one if capacity allows, or opening an untracked
// bypass connection if the pool is already at capacity.
func (p *Pool[T]) Acquire(ctx context.Context) (*Lease[T], error) {
	// A semaphore permit is held for every pooled connection that is open,
	// whether idle or in use; an idle hand-off therefore transfers the
	// permit with the connection rather than touching the semaphore.
	p.mu.Lock()
	for len(p.idle) > 0 {
		pc := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if !p.live(pc.conn) {
			p.mu.Unlock()
			_ = p.closer(pc.conn)
			p.sem.Release(1)
			p.mu.Lock()
			continue
		}
		p.inUse++
		p.mu.Unlock()
		return &Lease[T]{Conn: pc.conn, pool: p}, nil
	}
	p.mu.Unlock()

	if p.sem.TryAcquire(1) {
		conn, err := p.dial(ctx)
		if err != nil {
			p.sem.Release(1)
			return nil, err
		}
		p.mu.Lock()
		p.inUse++
		p.mu.Unlock()
		return &Lease[T]{Conn: conn, pool: p}, nil
	}

	// At capacity: open an untracked bypass connection rather than block
	// or fail the caller.
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.bypassTotal.Add(1)
	slog.Warn("pool: opened bypass connection beyond capacity", "max_open", p.cfg.MaxOpen)
	return &Lease[T]{Conn: conn, pool: p, bypass: true}, nil
}

func (p *Pool[T]) dial(ctx context.Context) (T, error) {
	var zero T
	var conn T
	err := p.gate.Guard(func() error {
		var dialErr error
		conn, dialErr = p.factory(ctx)
		return dialErr
	})
	if err != nil {
		return zero, err
	}
	return conn, nil
}

// release returns conn to the free list, or closes it outright when the
// pool has been closed, the free list is already at MaxIdle, or this was a
// bypass acquisition. A connection parked on the free list keeps its
// semaphore permit; the permit is only given back when the connection is
// actually closed.
func (p *Pool[T]) release(conn T, bypass bool) {
	if bypass {
		_ = p.closer(conn)
		return
	}
	closed := false
	select {
	case <-p.closed:
		closed = true
	default:
	}
	p.mu.Lock()
	p.inUse--
	if !closed && len(p.idle) < p.cfg.MaxIdle {
		p.idle = append(p.idle, &pooledConn[T]{conn: conn, idleAt: time.Now()})
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = p.closer(conn)
	p.sem.Release(1)
}

// EvictIdle closes every idle connection older than the configured idle
// timeout. It is invoked periodically by the Resource Monitor, never from
// a request path.
func (p *Pool[T]) EvictIdle() {
	if p.cfg.IdleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var keep []*pooledConn[T]
	var evict []*pooledConn[T]
	for _, pc := range p.idle {
		if pc.idleAt.Before(cutoff) {
			evict = append(evict, pc)
		} else {
			keep = append(keep, pc)
		}
	}
	p.idle = keep
	p.mu.Unlock()

	for _, pc := range evict {
		_ = p.closer(pc.conn)
		p.sem.Release(1)
	}
	if len(evict) > 0 {
		slog.Debug("pool: evicted idle connections", "count", len(evict))
	}
}

// Stats reports the pool's current occupancy for the Resource Monitor.
func (p *Pool[T]) Stats() telemetry.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return telemetry.PoolStats{
		InUse:       p.inUse,
		Idle:        len(p.idle),
		BypassCount: p.bypassTotal.Load(),
	}
}

// Close closes every idle connection and marks the pool closed. Connections
// already handed out stay usable; their eventual Release closes them
// instead of returning them to the free list.
func (p *Pool[T]) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, pc := range idle {
		if err := p.closer(pc.conn); err != nil && firstErr == nil {
			firstErr = err
		}
		p.sem.Release(1)
	}
	return firstErr
}
