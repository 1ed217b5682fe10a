package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// graphScopeKey carries a scope id through a context.Context.
type graphScopeKey struct{}

// GraphHandle hands each caller scope its own lazily created value of type
// T, typically a graph read transaction. Go has no thread-locals, so the
// handle keys values by an explicit scope id threaded through the context:
// Scope mints an id, creates the value, and returns a release function that
// tears the mapping down when the scope ends.
type GraphHandle[T any] struct {
	factory func() T

	mu     sync.Mutex
	scopes map[uint64]T
	nextID atomic.Uint64
}

// NewGraphHandle constructs a GraphHandle whose per-scope values are
// created by factory.
func NewGraphHandle[T any](factory func() T) *GraphHandle[T] {
	return &GraphHandle[T]{factory: factory, scopes: make(map[uint64]T)}
}

// Scope creates a new value for the calling scope and returns a derived
// context carrying it, the value itself, and a release function that must
// be called exactly once when the scope ends. The caller owns any teardown
// the value itself needs (closing a transaction); release only removes the
// mapping.
func (g *GraphHandle[T]) Scope(ctx context.Context) (context.Context, T, func()) {
	id := g.nextID.Add(1)
	v := g.factory()

	g.mu.Lock()
	g.scopes[id] = v
	g.mu.Unlock()

	release := func() {
		g.mu.Lock()
		delete(g.scopes, id)
		g.mu.Unlock()
	}
	return context.WithValue(ctx, graphScopeKey{}, id), v, release
}

// Value returns the value bound to ctx's scope, if any.
func (g *GraphHandle[T]) Value(ctx context.Context) (T, bool) {
	id, ok := ctx.Value(graphScopeKey{}).(uint64)
	if !ok {
		var zero T
		return zero, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.scopes[id]
	return v, ok
}
