package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"sqlcase/internal/casing"
)

// EnvPrefix is prepended to every environment variable, e.g.
// SQLCASE_DATABASE_HOST or SQLCASE_CASE_SOFTWARE.
const EnvPrefix = "SQLCASE"

// NewFlagSet returns a flag set with every configuration flag defined using
// canonical snake_case keys. Callers may add their own flags before parsing.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	defineFlags(fs)
	// Config file flag
	fs.StringP("config", "c", "", "Config file path")
	return fs
}

// defineFlags defines the configuration key flags on fs.
func defineFlags(fs *pflag.FlagSet) {
	fs.String("client", "", "Database client (mysql, postgres)")

	// Database connection flags
	fs.String("database.dsn", "", "Complete driver DSN")
	fs.String("database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port (0 = client default)")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for database password securely")
	fs.String("database.database", "", "Database name")
	fs.String("database.tls_mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")

	// Database pool flags
	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")

	// Case conversion flags
	fs.String("case.software", "", "Case used for result keys in application code (none, camelcase, snakecase)")
	fs.String("case.database", "", "Case used for identifiers sent to the database (none, camelcase, snakecase)")

	// Lifecycle flags
	fs.Bool("auto.connect", false, "Check the database connection on start")
	fs.Bool("auto.migrate", false, "Run migrations on start")
	fs.Bool("auto.destroy", false, "Close the database connection on stop")

	// Observability flags
	fs.String("observability.service_name", "", "Service name reported to telemetry backends")
	fs.String("observability.environment", "", "Deployment environment reported to telemetry backends")
	fs.Bool("observability.tracing_enabled", false, "Instrument database calls with OpenTelemetry spans")
	fs.Float64("observability.trace_sample_ratio", 0, "Fraction of traces sampled (0-1)")
	fs.Bool("observability.metrics_enabled", false, "Record connection pool and query metrics")
	fs.String("observability.metrics_file", "", "Write Prometheus metrics to this file on exit (- for stderr)")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Export logs over OTLP")

	// OTLP exporter flags
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.String("observability.otlp.tls_cert_file", "", "Path to CA certificate for OTLP server verification")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
	fs.Bool("observability.otlp.retry_enabled", false, "Retry OTLP exports on transient errors")
}

// Load loads configuration with the following precedence:
// 1. Explicit overrides (v.Set) – used only for password files and prompt
// 2. Command line flags that were explicitly set on fs
// 3. Environment variables
// 4. Config file
// 5. Default values
//
// fs must come from NewFlagSet and already be parsed. A nil fs loads from
// env, file, and defaults only.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Config file ---
	var cfgPath string
	if fs != nil {
		cfgPath, _ = fs.GetString("config")
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("sqlcase")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/sqlcase/")
		v.AddConfigPath("$HOME/.sqlcase")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	if fs != nil {
		bindChangedFlagsToViper(fs, v)
	}
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	// --- DSN from file (explicit override) ---
	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}

	// --- Secure password input (explicit override) ---
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToCaseKindHookFunc(),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Client = strings.ToLower(strings.TrimSpace(cfg.Client))
	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set configuration flags into
// Viper, preserving precedence: flags > env > file > defaults. Flags the
// caller added on top of NewFlagSet (such as --version) are skipped.
func bindChangedFlagsToViper(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if _, ok := configKeys[f.Name]; !ok {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

var configKeys = func() map[string]struct{} {
	fs := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	defineFlags(fs)
	keys := make(map[string]struct{})
	fs.VisitAll(func(f *pflag.Flag) {
		keys[f.Name] = struct{}{}
	})
	return keys
}()

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("client", "mysql")

	// Database connection defaults
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.tls_mode", "")

	// Database pool defaults
	v.SetDefault("database.pool.max_open", 10)
	v.SetDefault("database.pool.max_idle", 2)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)

	// Case defaults: camelCase in code, snake_case in the database
	v.SetDefault("case.software", string(casing.CamelCase))
	v.SetDefault("case.database", string(casing.SnakeCase))

	// Lifecycle defaults
	v.SetDefault("auto.connect", true)
	v.SetDefault("auto.migrate", false)
	v.SetDefault("auto.destroy", true)

	// Observability defaults
	v.SetDefault("observability.service_name", "sqlcase")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.metrics_file", "")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.logging.exports_enabled", false)

	// OTLP defaults
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"database.dsn_file",
		"database.password_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}

	return nil
}

// stringToCaseKindHookFunc normalizes configured case names ("CamelCase",
// " snakecase ") before they reach casing.Kind fields. Unknown names pass
// through unchanged and are reported by Validate.
func stringToCaseKindHookFunc() mapstructure.DecodeHookFunc {
	kindType := reflect.TypeOf(casing.Kind(""))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != kindType {
			return data, nil
		}
		raw := data.(string)
		if k, err := casing.ParseKind(raw); err == nil {
			return k, nil
		}
		return casing.Kind(raw), nil
	}
}
