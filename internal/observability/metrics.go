package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "sqlcase"

// MeterProvider wraps the OpenTelemetry meter provider and the Prometheus
// registry its exporter writes into.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry
}

// InitMeterProvider installs a global meter provider backed by a private
// Prometheus registry. otelsql pool stats and QueryMetrics both land there.
func InitMeterProvider(cfg Config) (*MeterProvider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &MeterProvider{provider: provider, registry: registry}, nil
}

// Provider returns the meter provider for explicit instrument creation.
func (mp *MeterProvider) Provider() metric.MeterProvider {
	return mp.provider
}

// WriteText writes every collected metric family in the Prometheus text
// exposition format, as read by the node_exporter textfile collector.
func (mp *MeterProvider) WriteText(w io.Writer) error {
	families, err := mp.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Shutdown stops the meter provider.
func (mp *MeterProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	return shutdown(ctx, logger, "meter", mp.provider.Shutdown)
}

// QueryMetrics records statement timings and outcomes for the bank.
type QueryMetrics struct {
	duration metric.Float64Histogram
	counter  metric.Int64Counter
	errors   metric.Int64Counter
	rows     metric.Int64Histogram
}

// NewQueryMetrics creates the query instruments on provider. A nil provider
// uses the global one.
func NewQueryMetrics(provider metric.MeterProvider) (*QueryMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"sqlcase.query.duration",
		metric.WithDescription("Duration of database statements in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	counter, err := meter.Int64Counter(
		"sqlcase.queries",
		metric.WithDescription("Total number of database statements"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	errors, err := meter.Int64Counter(
		"sqlcase.query.errors",
		metric.WithDescription("Total number of failed database statements"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query error counter: %w", err)
	}

	rows, err := meter.Int64Histogram(
		"sqlcase.query.rows",
		metric.WithDescription("Rows returned or affected per statement"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create row histogram: %w", err)
	}

	return &QueryMetrics{duration: duration, counter: counter, errors: errors, rows: rows}, nil
}

// RecordQuery records one statement. operation is select, insert, update,
// delete, or raw.
func (m *QueryMetrics) RecordQuery(ctx context.Context, operation string, duration time.Duration, rows int64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	m.counter.Add(ctx, 1, attrs)
	if err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
		return
	}
	m.rows.Record(ctx, rows, metric.WithAttributes(attribute.String("operation", operation)))
}
