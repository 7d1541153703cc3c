// Package observe records label cache and pipeline metrics with
// OpenTelemetry and optionally exposes them for Prometheus.
package observe

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"labelgen/internal/label"
)

const meterName = "labelgen"

// Metrics implements the label cache recorder.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: recording never fails or panics.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	lookups       metric.Int64Counter
	cacheErrors   metric.Int64Counter
	computeErrors metric.Int64Counter
	duration      metric.Float64Histogram
}

// New returns Prometheus-backed metrics on a private registry when enabled,
// and no-op metrics otherwise.
func New(enabled bool) (*Metrics, error) {
	if !enabled {
		return newMetrics(noop.NewMeterProvider().Meter(meterName))
	}

	reg := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	m.provider = mp
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m, nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	lookups, err := meter.Int64Counter(
		"label.cache.lookups",
		metric.WithDescription("Label cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	cacheErrors, err := meter.Int64Counter(
		"label.cache.errors",
		metric.WithDescription("Label cache store failures by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	computeErrors, err := meter.Int64Counter(
		"label.compute.errors",
		metric.WithDescription("Failed label computations by pipeline stage"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"label.compute.duration_ms",
		metric.WithDescription("Label computation time in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		lookups:       lookups,
		cacheErrors:   cacheErrors,
		computeErrors: computeErrors,
		duration:      duration,
	}, nil
}

func (m *Metrics) CacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) CacheError(ctx context.Context, op string) {
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) ComputeDone(ctx context.Context, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		stage, ok := label.StageOf(err)
		if !ok {
			stage = "unknown"
		}
		m.computeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	}
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Handler serves the Prometheus exposition, or nil when disabled.
func (m *Metrics) Handler() http.Handler { return m.handler }

// Enabled reports whether metrics are exported.
func (m *Metrics) Enabled() bool { return m.provider != nil }

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
