package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/grizabella-go/grizabella"

// PoolStatsSource reports the current occupancy of a single substrate's
// connection pool. Implemented by [internal/pool.Pool].
type PoolStatsSource interface {
	Stats() PoolStats
}

// PoolStats is a point-in-time snapshot of a pool's occupancy.
type PoolStats struct {
	InUse       int
	Idle        int
	BypassCount int64
}

// Metrics holds the OpenTelemetry instruments recorded by the Resource
// Monitor: pool occupancy per substrate and process memory usage.
type Metrics struct {
	poolInUse       metric.Int64ObservableUpDownCounter
	poolIdle        metric.Int64ObservableUpDownCounter
	poolBypassTotal metric.Int64ObservableCounter
	memAlloc        metric.Int64ObservableGauge
	memSys          metric.Int64ObservableGauge

	sources map[string]PoolStatsSource
}

// NewMetrics registers the Resource Monitor's instruments against the
// globally configured [otel.Meter]. sources maps a substrate label (e.g.
// "relational", "vector", "graph") to the pool it samples.
func NewMetrics(sources map[string]PoolStatsSource) (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{sources: sources}

	var err error
	m.poolInUse, err = meter.Int64ObservableUpDownCounter(
		"grizabella.pool.in_use",
		metric.WithDescription("connections currently checked out, per substrate"),
	)
	if err != nil {
		return nil, err
	}
	m.poolIdle, err = meter.Int64ObservableUpDownCounter(
		"grizabella.pool.idle",
		metric.WithDescription("idle connections held warm, per substrate"),
	)
	if err != nil {
		return nil, err
	}
	m.poolBypassTotal, err = meter.Int64ObservableCounter(
		"grizabella.pool.bypass_total",
		metric.WithDescription("connections opened outside the pool due to capacity overflow"),
	)
	if err != nil {
		return nil, err
	}
	m.memAlloc, err = meter.Int64ObservableGauge(
		"grizabella.process.mem_alloc_bytes",
		metric.WithDescription("bytes of heap memory allocated and in use (runtime.MemStats.Alloc)"),
	)
	if err != nil {
		return nil, err
	}
	m.memSys, err = meter.Int64ObservableGauge(
		"grizabella.process.mem_sys_bytes",
		metric.WithDescription("bytes of memory obtained from the OS (runtime.MemStats.Sys)"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(m.observe,
		m.poolInUse, m.poolIdle, m.poolBypassTotal, m.memAlloc, m.memSys)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(_ context.Context, o metric.Observer) error {
	for label, src := range m.sources {
		s := src.Stats()
		attr := metric.WithAttributes(attribute.String("substrate", label))
		o.ObserveInt64(m.poolInUse, int64(s.InUse), attr)
		o.ObserveInt64(m.poolIdle, int64(s.Idle), attr)
		o.ObserveInt64(m.poolBypassTotal, s.BypassCount, attr)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	o.ObserveInt64(m.memAlloc, int64(ms.Alloc))
	o.ObserveInt64(m.memSys, int64(ms.Sys))
	return nil
}

// Sampler periodically triggers idle-connection eviction on every registered
// pool, independent of any request path. It is the Resource Monitor's only
// feedback action into the rest of the engine.
type Sampler struct {
	interval time.Duration
	evictors []func()
}

// NewSampler builds a Sampler that calls each evict function once per
// interval. interval <= 0 defaults to 15 seconds.
func NewSampler(interval time.Duration, evictors ...func()) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sampler{interval: interval, evictors: evictors}
}

// Run blocks, ticking until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, evict := range s.evictors {
				evict()
			}
			slog.Debug("resource monitor: sampled pools", "evictors", len(s.evictors))
		}
	}
}
