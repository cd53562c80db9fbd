package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"sqlcase/internal/config"
	"sqlcase/internal/observability"
)

// telemetry owns the providers started for one command run.
type telemetry struct {
	tracer      *observability.TracerProvider
	logs        *observability.LoggerProvider
	meter       *observability.MeterProvider
	metrics     *observability.QueryMetrics
	metricsFile string
	stderr      io.Writer
}

func startTelemetry(ctx context.Context, cfg *config.Config, stderr io.Writer) (*telemetry, error) {
	obs := cfg.Observability
	otelCfg := observability.FromConfig(obs, Version)
	t := &telemetry{metricsFile: obs.MetricsFile, stderr: stderr}

	if obs.TracingEnabled {
		tp, err := observability.InitTracerProvider(ctx, otelCfg)
		if err != nil {
			return nil, err
		}
		t.tracer = tp
	}

	if obs.Logging.ExportsEnabled {
		lp, err := observability.InitLoggerProvider(ctx, otelCfg)
		if err != nil {
			_ = t.shutdown(ctx, slog.New(slog.DiscardHandler))
			return nil, err
		}
		t.logs = lp
	}

	if obs.MetricsEnabled {
		mp, err := observability.InitMeterProvider(otelCfg)
		if err != nil {
			_ = t.shutdown(ctx, slog.New(slog.DiscardHandler))
			return nil, err
		}
		t.meter = mp
		t.metrics, err = observability.NewQueryMetrics(mp.Provider())
		if err != nil {
			_ = t.shutdown(ctx, slog.New(slog.DiscardHandler))
			return nil, err
		}
	}
	return t, nil
}

// writeMetrics dumps the collected metrics to the configured file.
func (t *telemetry) writeMetrics() error {
	if t.meter == nil || t.metricsFile == "" {
		return nil
	}
	if t.metricsFile == "-" {
		return t.meter.WriteText(t.stderr)
	}

	// Write then rename so the textfile collector never reads a partial file.
	tmp := t.metricsFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	if err := t.meter.WriteText(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, t.metricsFile)
}

func (t *telemetry) shutdown(ctx context.Context, logger *slog.Logger) error {
	var errs []error
	if t.tracer != nil {
		errs = append(errs, t.tracer.Shutdown(ctx, logger))
	}
	if t.meter != nil {
		errs = append(errs, t.meter.Shutdown(ctx, logger))
	}
	if t.logs != nil {
		errs = append(errs, t.logs.Shutdown(ctx, logger))
	}
	return errors.Join(errs...)
}
