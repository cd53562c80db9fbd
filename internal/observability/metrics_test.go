package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestQueryMetrics_RecordQuery(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := NewQueryMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordQuery(ctx, "select", 12*time.Millisecond, 3, nil)
	metrics.RecordQuery(ctx, "insert", 4*time.Millisecond, 1, nil)
	metrics.RecordQuery(ctx, "select", time.Millisecond, 0, errors.New("boom"))

	got := collect(t, reader)
	require.Contains(t, got, "sqlcase.queries")
	require.Contains(t, got, "sqlcase.query.errors")
	require.Contains(t, got, "sqlcase.query.duration")
	require.Contains(t, got, "sqlcase.query.rows")

	assert.Equal(t, int64(3), sumInt64(t, got["sqlcase.queries"]))
	assert.Equal(t, int64(1), sumInt64(t, got["sqlcase.query.errors"]))

	rows, ok := got["sqlcase.query.rows"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	var rowTotal int64
	var samples uint64
	for _, dp := range rows.DataPoints {
		rowTotal += dp.Sum
		samples += dp.Count
	}
	// Failed statements do not report rows.
	assert.Equal(t, int64(4), rowTotal)
	assert.Equal(t, uint64(2), samples)
}

func TestMeterProvider_WriteText(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "sqlcase-test", Environment: "test"})
	require.NoError(t, err)
	defer mp.Shutdown(context.Background(), discardLogger())

	metrics, err := NewQueryMetrics(mp.Provider())
	require.NoError(t, err)
	metrics.RecordQuery(context.Background(), "select", 5*time.Millisecond, 2, nil)

	var buf bytes.Buffer
	require.NoError(t, mp.WriteText(&buf))
	assert.Contains(t, buf.String(), "sqlcase_queries")
	assert.Contains(t, buf.String(), `operation="select"`)
}
