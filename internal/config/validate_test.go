package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sqlcase/internal/casewrap"
	"sqlcase/internal/casing"
)

func validConfig() Config {
	return Config{
		Client:   "mysql",
		Database: DatabaseConfig{Host: "localhost", Pool: PoolConfig{MaxOpen: 10, MaxIdle: 2}},
		Case:     casewrap.DefaultCaseConfig(),
		Auto:     AutoConfig{Connect: true, Destroy: true},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

func fields(result *ValidationResult) []string {
	var out []string
	for _, e := range result.Errors {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name           string
		mutate         func(*Config)
		expectedErrors []string
		expectWarning  string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:           "unknown client",
			mutate:         func(c *Config) { c.Client = "oracle" },
			expectedErrors: []string{"client"},
		},
		{
			name:           "unknown software case",
			mutate:         func(c *Config) { c.Case.Software = "kebabcase" },
			expectedErrors: []string{"case.software"},
		},
		{
			name: "unknown database case",
			mutate: func(c *Config) {
				c.Case.Database = "pascalcase"
			},
			expectedErrors: []string{"case.database"},
		},
		{
			name: "same case both ways",
			mutate: func(c *Config) {
				c.Case = casewrap.CaseConfig{Software: casing.SnakeCase, Database: casing.SnakeCase}
			},
			expectWarning: "case",
		},
		{
			name:           "invalid mysql dsn",
			mutate:         func(c *Config) { c.Database.ConnectionString = "nope" },
			expectedErrors: []string{"database.dsn"},
		},
		{
			name:           "missing host",
			mutate:         func(c *Config) { c.Database.Host = "" },
			expectedErrors: []string{"database.host"},
		},
		{
			name:           "bad port",
			mutate:         func(c *Config) { c.Database.Port = 70000 },
			expectedErrors: []string{"database.port"},
		},
		{
			name:           "bad tls mode",
			mutate:         func(c *Config) { c.Database.TLSMode = "sometimes" },
			expectedErrors: []string{"database.tls_mode"},
		},
		{
			name:           "negative pool",
			mutate:         func(c *Config) { c.Database.Pool.MaxOpen = -1 },
			expectedErrors: []string{"database.pool.max_open"},
		},
		{
			name:          "idle above open",
			mutate:        func(c *Config) { c.Database.Pool.MaxIdle = 20 },
			expectWarning: "database.pool.max_idle",
		},
		{
			name:           "bad log level",
			mutate:         func(c *Config) { c.Observability.Logging.Level = "trace" },
			expectedErrors: []string{"observability.logging.level"},
		},
		{
			name:           "sample ratio out of range",
			mutate:         func(c *Config) { c.Observability.TraceSampleRatio = 1.5 },
			expectedErrors: []string{"observability.trace_sample_ratio"},
		},
		{
			name:          "metrics file without metrics",
			mutate:        func(c *Config) { c.Observability.MetricsFile = "/tmp/sqlcase.prom" },
			expectWarning: "observability.metrics_file",
		},
		{
			name: "otlp ignored while exports are off",
			mutate: func(c *Config) {
				c.Observability.OTLP = OTLPConfig{Protocol: "udp"}
			},
		},
		{
			name: "tracing checks otlp settings",
			mutate: func(c *Config) {
				c.Observability.TracingEnabled = true
				c.Observability.OTLP = OTLPConfig{Endpoint: "collector", Protocol: "udp", Compression: "zstd"}
			},
			expectedErrors: []string{
				"observability.otlp.protocol",
				"observability.otlp.endpoint",
				"observability.otlp.compression",
			},
		},
		{
			name: "log exports accept url endpoint",
			mutate: func(c *Config) {
				c.Observability.Logging.ExportsEnabled = true
				c.Observability.OTLP = OTLPConfig{Endpoint: "https://otel.example.com/v1/logs", Protocol: "http/protobuf"}
			},
		},
		{
			name:          "postgres key value dsn",
			mutate:        func(c *Config) { c.Client = "postgres"; c.Database.ConnectionString = "host=db user=app" },
			expectWarning: "database.dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			result := cfg.Validate()
			assert.Equal(t, tt.expectedErrors, fields(result))
			assert.Equal(t, len(tt.expectedErrors) > 0, result.HasErrors())

			if tt.expectWarning != "" {
				var got []string
				for _, w := range result.Warnings {
					got = append(got, w.Field)
				}
				assert.Contains(t, got, tt.expectWarning)
			}
		})
	}
}

func TestValidationResult_Error(t *testing.T) {
	result := &ValidationResult{}
	assert.Empty(t, result.Error())

	result.Errors = append(result.Errors,
		ValidationError{Field: "case.software", Message: "unknown case \"x\"", Hint: "valid values: none"},
		ValidationError{Field: "client", Message: "unsupported"},
	)
	assert.Equal(t, "case.software: unknown case \"x\" (hint: valid values: none); client: unsupported", result.Error())
}
