// Package resilience provides the [DialGate], a circuit breaker that
// protects the connection pool from repeatedly redialing a substrate
// (SQLite file, bbolt file) that is currently failing to open.
//
// A gate is a three-state breaker (closed → open → half-open) wrapped
// around a single pool's dial function, not around arbitrary request
// traffic — once a connection is open, traffic flows through it directly
// and never touches the gate again. Unlike a fixed-interval breaker, the
// gate backs off exponentially across successive trips: a substrate that
// keeps failing its probe dials is retried at double the previous wait,
// up to MaxResetTimeout, so a wedged store costs one probe burst per
// backoff window instead of one per ResetTimeout forever.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrDialGateOpen is returned by [DialGate.Guard] when the gate is open
// and the current backoff window has not yet elapsed, meaning the pool
// should not attempt to dial the substrate right now.
var ErrDialGateOpen = errors.New("dial gate is open: substrate is failing to dial")

// State represents the current operating mode of a [DialGate].
type State int

const (
	// StateClosed is the normal operating state — dial attempts are forwarded.
	StateClosed State = iota

	// StateOpen indicates the gate has tripped due to consecutive dial
	// failures. Dials are rejected immediately with [ErrDialGateOpen] until
	// the current backoff window elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the backoff window. A
	// limited number of dial attempts are allowed through; if they succeed
	// the gate closes, otherwise it re-opens with a longer window.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// DialGateConfig holds tuning knobs for a [DialGate]. The pool layer
// fills these from its own per-substrate configuration
// (internal/pool.Config / the pool section of the engine config file), so
// each substrate's gate can be tuned independently of the others.
type DialGateConfig struct {
	// PoolName is a human-readable label used in log messages, typically
	// the substrate name ("relational", "vector", "graph").
	PoolName string

	// MaxFailures is the number of consecutive dial failures in the closed
	// state before the gate opens. Default: 5.
	MaxFailures int

	// ResetTimeout is the backoff window after the FIRST trip; each
	// subsequent trip doubles it, capped at MaxResetTimeout. Default: 30s.
	ResetTimeout time.Duration

	// MaxResetTimeout caps the exponential backoff. Default: 5m.
	MaxResetTimeout time.Duration

	// HalfOpenMax is the number of probe dials allowed in the half-open
	// state before the gate decides whether to close or re-open. Default: 3.
	HalfOpenMax int
}

// DialGate gates a pool's dial attempts behind a three-state breaker with
// exponential backoff between trips. It is safe for concurrent use from
// multiple goroutines acquiring connections.
type DialGate struct {
	name            string
	maxFailures     int
	resetTimeout    time.Duration
	maxResetTimeout time.Duration
	halfOpenMax     int

	mu              sync.Mutex // guards every field below
	state           State
	consecutiveFail int
	tripCount       int // consecutive trips without an intervening close
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewDialGate creates a [DialGate] with the supplied configuration.
// Zero-value config fields are replaced with the package defaults.
func NewDialGate(cfg DialGateConfig) *DialGate {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.MaxResetTimeout <= 0 {
		cfg.MaxResetTimeout = 5 * time.Minute
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &DialGate{
		name:            cfg.PoolName,
		maxFailures:     cfg.MaxFailures,
		resetTimeout:    cfg.ResetTimeout,
		maxResetTimeout: cfg.MaxResetTimeout,
		halfOpenMax:     cfg.HalfOpenMax,
		state:           StateClosed,
	}
}

// backoff returns the wait before the next half-open probe window, under
// g.mu: the base timeout doubled once per consecutive trip, capped.
func (g *DialGate) backoff() time.Duration {
	d := g.resetTimeout
	for i := 1; i < g.tripCount; i++ {
		d *= 2
		if d >= g.maxResetTimeout {
			return g.maxResetTimeout
		}
	}
	return d
}

// trip moves the gate to open, under g.mu, extending the backoff window.
func (g *DialGate) trip(from string) {
	g.state = StateOpen
	g.tripCount++
	g.lastFailure = time.Now()
	slog.Warn("dial gate opened", "pool", g.name, "from", from,
		"trip", g.tripCount, "retry_in", g.backoff())
}

// Guard runs dial if the gate allows it. In the open state it returns
// [ErrDialGateOpen] without calling dial until the backoff window has
// elapsed. In the half-open state a limited number of probe dials are
// permitted.
func (g *DialGate) Guard(dial func() error) error {
	g.mu.Lock()
	switch g.state {
	case StateOpen:
		if time.Since(g.lastFailure) < g.backoff() {
			g.mu.Unlock()
			return ErrDialGateOpen
		}
		g.state = StateHalfOpen
		g.halfOpenCalls = 0
		g.halfOpenFails = 0
		slog.Info("dial gate probing", "pool", g.name, "trip", g.tripCount)

	case StateHalfOpen:
		if g.halfOpenCalls >= g.halfOpenMax {
			// Probe budget exhausted while earlier probes are in flight.
			g.mu.Unlock()
			return ErrDialGateOpen
		}
	}

	inHalfOpen := g.state == StateHalfOpen
	if inHalfOpen {
		g.halfOpenCalls++
	}
	g.mu.Unlock()

	err := dial()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		if inHalfOpen {
			// One failed probe is enough: the substrate is still down, so
			// re-open with a longer window.
			g.halfOpenFails++
			g.consecutiveFail = g.maxFailures
			g.trip("half-open")
			return err
		}
		g.lastFailure = time.Now()
		g.consecutiveFail++
		if g.consecutiveFail >= g.maxFailures {
			g.trip("closed")
		}
		return err
	}

	if inHalfOpen {
		if g.halfOpenCalls-g.halfOpenFails >= g.halfOpenMax {
			g.state = StateClosed
			g.consecutiveFail = 0
			g.tripCount = 0
			g.halfOpenCalls = 0
			g.halfOpenFails = 0
			slog.Info("dial gate closed after successful probe dials", "pool", g.name)
		}
		return nil
	}
	g.consecutiveFail = 0
	return nil
}

// State returns the current [State] of the gate. If the gate is open and
// the backoff window has elapsed, the returned state is [StateHalfOpen]
// (the actual transition happens on the next [DialGate.Guard] call).
func (g *DialGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateOpen && time.Since(g.lastFailure) >= g.backoff() {
		return StateHalfOpen
	}
	return g.state
}

// Reset manually forces the gate back to [StateClosed], clearing all
// failure and backoff counters. Used by operators recovering a substrate
// out-of-band.
func (g *DialGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = StateClosed
	g.consecutiveFail = 0
	g.tripCount = 0
	g.halfOpenCalls = 0
	g.halfOpenFails = 0
	slog.Info("dial gate manually reset", "pool", g.name)
}
