// Package telemetry sets up OpenTelemetry metrics and tracing providers and
// implements the Resource Monitor's periodic sampler.
package telemetry

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Substrate labels attached to pool metrics and spans, one per physical
// store of a logical database. The reader pool gets its own label since
// its occupancy is the signal that matters for query concurrency, distinct
// from the single writer connection.
const (
	SubstrateRelational       = "relational"
	SubstrateRelationalReader = "relational_reader"
	SubstrateVector           = "vector"
	SubstrateGraph            = "graph"
)

// ProviderConfig configures the OpenTelemetry SDK providers for one engine
// process.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "grizabella".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// DBRoot, when set, is recorded as a resource attribute so metrics from
	// processes serving different database roots on one host can be told
	// apart at the scrape endpoint.
	DBRoot string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported — enough for the trace-id log correlation
	// in Logger/CorrelationID, without requiring a collector.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider initialises the global OTel providers: a MeterProvider
// bridged to a Prometheus exporter (scraped via the CLI's /metrics route)
// and a TracerProvider with the configured exporter, if any. Returns a
// shutdown function that flushes both; call it in a defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	mp, err := newMeterProvider(res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	tp := newTracerProvider(res, cfg.TraceExporter)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}

// newResource describes this engine process: service identity plus the
// tri-store shape (which substrates exist, and which database root this
// process serves).
func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "grizabella"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("grizabella.substrates",
			strings.Join([]string{SubstrateRelational, SubstrateVector, SubstrateGraph}, ",")),
	}
	if cfg.DBRoot != "" {
		attrs = append(attrs, attribute.String("grizabella.db.root", cfg.DBRoot))
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	), nil
}

func newTracerProvider(res *resource.Resource, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...)
}
