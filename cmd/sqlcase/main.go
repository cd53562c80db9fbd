package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"sqlcase/internal/bank"
	"sqlcase/internal/casewrap"
	"sqlcase/internal/casing"
	"sqlcase/internal/config"
	"sqlcase/internal/dbexec"
	"sqlcase/internal/introspection"
	"sqlcase/internal/logging"
	"sqlcase/internal/sqlutil"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

const usage = `usage:
  sqlcase convert <kind> <name>...
  sqlcase query <table> [column...]
  sqlcase tables
  sqlcase describe <table>
`

var errUsage = errors.New("invalid arguments")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		slog.Error("sqlcase error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := config.NewFlagSet("sqlcase")
	fs.SetOutput(stderr)
	fs.Bool("version", false, "Print version and exit")
	fs.Uint64("limit", 100, "Maximum rows returned by query (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Fprintf(stdout, "sqlcase %s (%s)\n", Version, Commit)
		return nil
	}

	positional := fs.Args()
	if len(positional) == 0 {
		return errUsage
	}

	switch positional[0] {
	case "convert":
		return runConvert(positional[1:], stdout)
	case "query", "tables", "describe":
		cfg, err := config.Load(fs)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger := newLogger(cfg, stderr, nil)
		if err := checkConfig(cfg, logger); err != nil {
			return err
		}
		limit, _ := fs.GetUint64("limit")
		cmd, err := databaseCommand(positional[0], positional[1:], limit)
		if err != nil {
			return err
		}
		return withBank(ctx, cfg, stderr, func(ctx context.Context, b *bank.Bank) error {
			out, err := cmd(ctx, cfg, b)
			if err != nil {
				return err
			}
			return writeJSON(stdout, out)
		})
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, positional[0])
	}
}

func runConvert(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	kind, err := casing.ParseKind(args[0])
	if err != nil {
		return err
	}
	// Same path as query identifiers, without quoting, so reserved tokens
	// pass through untouched.
	wrapped := casewrap.Wrap(casewrap.Config{
		Case: casewrap.CaseConfig{Software: kind, Database: kind},
	})
	for _, name := range args[1:] {
		fmt.Fprintln(stdout, wrapped.WrapIdentifier(name, nil, nil))
	}
	return nil
}

func checkConfig(cfg *config.Config, logger *logging.Logger) error {
	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			logger.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}
	return nil
}

func newLogger(cfg *config.Config, stderr io.Writer, provider *sdklog.LoggerProvider) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Level:          cfg.Observability.Logging.Level,
		Format:         cfg.Observability.Logging.Format,
		Output:         stderr,
		LoggerProvider: provider,
	})
}

type bankCommand func(ctx context.Context, cfg *config.Config, b *bank.Bank) (any, error)

func databaseCommand(name string, args []string, limit uint64) (bankCommand, error) {
	switch name {
	case "query":
		if len(args) < 1 {
			return nil, errUsage
		}
		return func(ctx context.Context, _ *config.Config, b *bank.Bank) (any, error) {
			return b.Select(args[0], args[1:]...).Limit(limit).All(ctx)
		}, nil
	case "tables":
		return listTables, nil
	default:
		if len(args) != 1 {
			return nil, errUsage
		}
		return func(ctx context.Context, cfg *config.Config, b *bank.Bank) (any, error) {
			return describeTable(ctx, cfg, b, args[0])
		}, nil
	}
}

// withBank opens the database with telemetry wired in, starts it and runs fn.
func withBank(ctx context.Context, cfg *config.Config, stderr io.Writer, fn func(context.Context, *bank.Bank) error) (err error) {
	tel, err := startTelemetry(ctx, cfg, stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	var logProvider *sdklog.LoggerProvider
	if tel.logs != nil {
		logProvider = tel.logs.Provider()
	}
	logger := newLogger(cfg, stderr, logProvider)
	ctx = logging.WithLogger(ctx, logger)
	defer func() {
		if metricsErr := tel.writeMetrics(); metricsErr != nil {
			logger.Warn("failed to write metrics", slog.String("error", metricsErr.Error()))
		}
		// Providers flush on a fresh context so an interrupt still exports.
		_ = tel.shutdown(context.WithoutCancel(ctx), logger.Logger)
	}()

	opts := []bank.Option{}
	if tel.metrics != nil {
		opts = append(opts, bank.WithMetrics(tel.metrics))
	}
	b, err := bank.Open(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := b.Stop(ctx); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	if err := b.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, b)
}

type tableInfo struct {
	Table   string `json:"table"`
	Name    string `json:"name"`
	View    bool   `json:"view,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type columnInfo struct {
	Column     string   `json:"column"`
	Field      string   `json:"field"`
	Type       string   `json:"type"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primaryKey,omitempty"`
	Default    *string  `json:"default,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	Values     []string `json:"values,omitempty"`
}

func inspector(cfg *config.Config, b *bank.Bank) *introspection.Inspector {
	// Postgres databases hold schemas; MySQL databases are schemas.
	schema := ""
	if b.Dialect() == sqlutil.MySQL {
		schema = cfg.Database.Database
	}
	return introspection.New(dbexec.NewStandardExecutor(b.DB()), b.Dialect(), schema)
}

func listTables(ctx context.Context, cfg *config.Config, b *bank.Bank) (any, error) {
	tables, err := inspector(cfg, b).Tables(ctx)
	if err != nil {
		return nil, err
	}
	toSoftware := casing.MustLookup(cfg.Case.Software)
	out := make([]tableInfo, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableInfo{Table: t.Name, Name: toSoftware(t.Name), View: t.IsView, Comment: t.Comment})
	}
	return out, nil
}

func describeTable(ctx context.Context, cfg *config.Config, b *bank.Bank, table string) (any, error) {
	name := casing.MustLookup(cfg.Case.Database)(table)
	columns, err := inspector(cfg, b).Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q not found", name)
	}
	toSoftware := casing.MustLookup(cfg.Case.Software)
	out := make([]columnInfo, 0, len(columns))
	for _, c := range columns {
		info := columnInfo{
			Column:     c.Name,
			Field:      toSoftware(c.Name),
			Type:       c.ColumnType,
			Nullable:   c.IsNullable,
			PrimaryKey: c.IsPrimaryKey,
			Comment:    c.Comment,
			Values:     c.Values,
		}
		if c.HasDefault {
			def := c.Default
			info.Default = &def
		}
		out = append(out, info)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
