// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"

	"sqlcase/internal/casewrap"
)

// Config holds the adapter configuration.
type Config struct {
	// Client selects the database flavor: mysql or postgres.
	Client        string              `mapstructure:"client"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Case          casewrap.CaseConfig `mapstructure:"case"`
	Auto          AutoConfig          `mapstructure:"auto"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AutoConfig controls which lifecycle steps run automatically on start and stop.
type AutoConfig struct {
	// Connect runs a SELECT 1 connectivity check on start.
	Connect bool `mapstructure:"connect"`
	// Migrate runs the registered migrator on start.
	Migrate bool `mapstructure:"migrate"`
	// Destroy closes the connection pool on stop.
	Destroy bool `mapstructure:"destroy"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// ConnectionString is a complete driver DSN. For mysql this is a
	// go-sql-driver/mysql DSN (user:password@tcp(host:port)/database?params),
	// for postgres a postgres:// URL.
	// When set, overrides Host/Port/User/Password/Database fields.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	// Discrete connection fields (used when DSN is not set)
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"` // 0 selects the client's default port
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	// TLSMode is one of off, skip-verify, verify-ca, verify-full. Empty
	// leaves the driver default.
	TLSMode string `mapstructure:"tls_mode"`

	// Connection pool settings
	Pool PoolConfig `mapstructure:"pool"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	// TracingEnabled wraps the database driver with otelsql spans and exports
	// them over OTLP.
	TracingEnabled   bool    `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
	// MetricsEnabled records connection pool and query metrics.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	// MetricsFile receives a Prometheus text exposition when the process
	// exits, for the node_exporter textfile collector. "-" writes to stderr.
	MetricsFile string        `mapstructure:"metrics_file"`
	Logging     LoggingConfig `mapstructure:"logging"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
}

// OTLPConfig holds OTLP exporter configuration shared by traces and logs.
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	TLSCertFile string            `mapstructure:"tls_cert_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"` // "none", "gzip"
	Retry       bool              `mapstructure:"retry_enabled"`
}

// DefaultAutoConfig checks the connection on start, skips migrations, and
// closes the pool on stop.
func DefaultAutoConfig() AutoConfig {
	return AutoConfig{Connect: true, Migrate: false, Destroy: true}
}
