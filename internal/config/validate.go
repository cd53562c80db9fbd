package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"sqlcase/internal/casing"
	"sqlcase/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	dialect, err := sqlutil.ParseDialect(c.Client)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "client",
			Message: err.Error(),
			Hint:    "use mysql or postgres",
		})
		dialect = sqlutil.MySQL
	}

	c.Database.validate(dialect, result)
	c.validateCase(result)
	c.Observability.validate(result)

	return result
}

// Dialect returns the SQL dialect for the configured client.
func (c *Config) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.ParseDialect(c.Client)
}

func (c *Config) validateCase(result *ValidationResult) {
	kinds := make([]string, 0, len(casing.Types()))
	for _, k := range casing.Types() {
		kinds = append(kinds, string(k))
	}
	hint := "valid values: " + strings.Join(kinds, ", ")

	if !c.Case.Software.Valid() {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "case.software",
			Message: fmt.Sprintf("unknown case %q", string(c.Case.Software)),
			Hint:    hint,
		})
	}
	if !c.Case.Database.Valid() {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "case.database",
			Message: fmt.Sprintf("unknown case %q", string(c.Case.Database)),
			Hint:    hint,
		})
	}

	if c.Case.Software == c.Case.Database && c.Case.Software != casing.None && c.Case.Software.Valid() {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "case",
			Message: fmt.Sprintf("software and database both use %s", c.Case.Software),
			Hint:    "set both to none to skip case conversion entirely",
		})
	}
}

func (d *DatabaseConfig) validate(dialect sqlutil.Dialect, result *ValidationResult) {
	if strings.TrimSpace(d.ConnectionString) != "" {
		if dialect == sqlutil.MySQL {
			if _, err := mysql.ParseDSN(d.ConnectionString); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   "database.dsn",
					Message: fmt.Sprintf("invalid mysql DSN: %v", err),
					Hint:    "format: user:password@tcp(host:port)/database",
				})
			}
		} else if !strings.HasPrefix(d.ConnectionString, "postgres://") && !strings.HasPrefix(d.ConnectionString, "postgresql://") {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "database.dsn",
				Message: "postgres DSN is not a URL",
				Hint:    "key/value DSNs are passed to the driver unchanged",
			})
		}
	} else {
		if strings.TrimSpace(d.Host) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.host",
				Message: "host is required when dsn is not set",
			})
		}
		// Port 0 selects the client default.
		if d.Port < 0 || d.Port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			})
		}
	}

	switch d.TLSMode {
	case "", "off", "skip-verify", "verify-ca", "verify-full":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls_mode",
			Message: fmt.Sprintf("unknown TLS mode %q", d.TLSMode),
			Hint:    "valid values: off, skip-verify, verify-ca, verify-full",
		})
	}

	// Connection pool validation
	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}
	if d.Pool.MaxLifetime < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_lifetime",
			Message: "max_lifetime cannot be negative",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch strings.ToLower(o.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("unknown log level %q", o.Logging.Level),
			Hint:    "valid values: debug, info, warn, error",
		})
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("unknown log format %q", o.Logging.Format),
			Hint:    "valid values: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("sample ratio %v out of range", o.TraceSampleRatio),
			Hint:    "use a value between 0 and 1",
		})
	}
	if o.MetricsFile != "" && !o.MetricsEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.metrics_file",
			Message: "metrics_file is ignored while metrics are disabled",
			Hint:    "set observability.metrics_enabled=true",
		})
	}

	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
