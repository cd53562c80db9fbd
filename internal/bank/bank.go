// Package bank hosts the case-converting query layer: it opens the database,
// routes every identifier through the wrapped identifier function, and
// post-processes every result set before handing it back.
package bank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"sqlcase/internal/casewrap"
	"sqlcase/internal/config"
	"sqlcase/internal/dbexec"
	"sqlcase/internal/logging"
	"sqlcase/internal/sqlutil"
)

var (
	// ErrNoMigrator is returned by Start when migrations are enabled but no
	// migrator was registered.
	ErrNoMigrator = errors.New("auto migrate enabled but no migrator registered")
	// ErrClosed is returned by queries issued after Close.
	ErrClosed = errors.New("bank is closed")
)

// Migrator brings the schema to its latest version.
type Migrator interface {
	Latest(ctx context.Context, db *sql.DB) error
}

// Recorder receives the timing and outcome of every statement.
type Recorder interface {
	RecordQuery(ctx context.Context, operation string, duration time.Duration, rows int64, err error)
}

// MigratorFunc adapts a function to Migrator.
type MigratorFunc func(ctx context.Context, db *sql.DB) error

func (f MigratorFunc) Latest(ctx context.Context, db *sql.DB) error { return f(ctx, db) }

type options struct {
	identHook casewrap.IdentifierFunc
	respHook  casewrap.ResponseFunc
	migrator  Migrator
	db        *sql.DB
	logger    *logging.Logger
	auto      *config.AutoConfig
	executor  dbexec.QueryExecutor
	recorder  Recorder
	extra     map[string]any
}

// Option customizes a Bank.
type Option func(*options)

// WithIdentifierHook installs a user identifier hook. It runs before case
// conversion.
func WithIdentifierHook(fn casewrap.IdentifierFunc) Option {
	return func(o *options) { o.identHook = fn }
}

// WithResponseHook installs a user response hook. It runs after case
// conversion.
func WithResponseHook(fn casewrap.ResponseFunc) Option {
	return func(o *options) { o.respHook = fn }
}

// WithMigrator registers the migrator used when auto migrate is enabled.
func WithMigrator(m Migrator) Option {
	return func(o *options) { o.migrator = m }
}

// WithDB makes Open use an existing handle instead of opening one.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAuto overrides the lifecycle switches.
func WithAuto(auto config.AutoConfig) Option {
	return func(o *options) { o.auto = &auto }
}

// WithExecutor routes queries through exec instead of the database handle.
func WithExecutor(exec dbexec.QueryExecutor) Option {
	return func(o *options) { o.executor = exec }
}

// WithOptions adds entries to the options carried by Config. The client and
// database entries are always set by the bank.
func WithOptions(extra map[string]any) Option {
	return func(o *options) { o.extra = extra }
}

// WithMetrics records every statement on r.
func WithMetrics(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Bank is a database handle whose identifiers and results are case converted.
type Bank struct {
	db       *sql.DB
	exec     dbexec.QueryExecutor
	dialect  sqlutil.Dialect
	cfg      casewrap.Config
	auto     config.AutoConfig
	migrator Migrator
	logger   *logging.Logger
	recorder Recorder
	stats    interface{ Unregister() error }
	closed   atomic.Bool
}

// Open connects according to cfg. The connection is not checked until Start.
func Open(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Bank, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}
	o := collect(opts)
	if logger != nil {
		o.logger = logger
	}
	if o.auto == nil {
		auto := cfg.Auto
		o.auto = &auto
	}

	db := o.db
	var stats interface{ Unregister() error }
	if db == nil {
		db, stats, err = connectDB(cfg, dialect, o.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
		db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
		db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)
	}

	b := build(db, dialect, cfg.Case, o, map[string]any{
		"client":   string(dialect),
		"database": cfg.Database.Database,
	})
	b.stats = stats
	return b, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, dialect sqlutil.Dialect, caseCfg casewrap.CaseConfig, opts ...Option) *Bank {
	o := collect(opts)
	if o.auto == nil {
		auto := config.DefaultAutoConfig()
		o.auto = &auto
	}
	return build(db, dialect, caseCfg, o, map[string]any{"client": string(dialect)})
}

func collect(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	return o
}

func build(db *sql.DB, dialect sqlutil.Dialect, caseCfg casewrap.CaseConfig, o *options, fixed map[string]any) *Bank {
	exec := o.executor
	if exec == nil {
		exec = dbexec.NewStandardExecutor(db)
	}
	connOpts := make(map[string]any, len(o.extra)+len(fixed))
	maps.Copy(connOpts, o.extra)
	maps.Copy(connOpts, fixed)
	return &Bank{
		db:      db,
		exec:    exec,
		dialect: dialect,
		cfg: casewrap.Wrap(casewrap.Config{
			Case:                caseCfg,
			WrapIdentifier:      o.identHook,
			PostProcessResponse: o.respHook,
			Options:             connOpts,
		}),
		auto:     *o.auto,
		migrator: o.migrator,
		recorder: o.recorder,
		logger:   o.logger.WithFields(slog.String("client", string(dialect))),
	}
}

func dbSystem(dialect sqlutil.Dialect) attribute.KeyValue {
	if dialect == sqlutil.Postgres {
		return semconv.DBSystemPostgreSQL
	}
	return semconv.DBSystemMySQL
}

func connectDB(cfg *config.Config, dialect sqlutil.Dialect, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn, err := cfg.Database.DSN(dialect)
	if err != nil {
		return nil, nil, err
	}
	driver := dialect.DriverName()
	obs := cfg.Observability

	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(dbSystem(dialect)),
	}
	if obs.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open(driver, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var statsReg interface{ Unregister() error }
	if obs.MetricsEnabled {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystem(dialect)))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
	)
	return db, statsReg, nil
}

// Config returns the wrapped query layer configuration.
func (b *Bank) Config() casewrap.Config {
	return b.cfg
}

// Dialect returns the SQL flavor of the underlying database.
func (b *Bank) Dialect() sqlutil.Dialect {
	return b.dialect
}

// DB returns the underlying database handle.
func (b *Bank) DB() *sql.DB {
	return b.db
}

// Ident renders name for the database: each dot-separated part is case
// converted and quoted, and "expr AS alias" forms are rendered piecewise.
func (b *Bank) Ident(name string, queryCtx any) string {
	if expr, alias, ok := splitAlias(name); ok {
		return b.Ident(expr, queryCtx) + " AS " + b.Ident(alias, queryCtx)
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = b.cfg.WrapIdentifier(strings.TrimSpace(part), b.dialect.Quote, queryCtx)
	}
	return strings.Join(parts, ".")
}

func splitAlias(name string) (string, string, bool) {
	idx := strings.Index(strings.ToLower(name), " as ")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(name[:idx]), strings.TrimSpace(name[idx+4:]), true
}

// Raw executes query verbatim and post-processes the rows it returns.
func (b *Bank) Raw(ctx context.Context, query string, args ...any) (any, error) {
	return b.query(ctx, "raw", query, args, QueryContextFrom(ctx))
}

func (b *Bank) query(ctx context.Context, operation, query string, args []any, queryCtx any) (any, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	b.loggerFor(ctx).Debug("executing query",
		slog.String("operation", operation),
		slog.String("sql", query),
		slog.Int("args", len(args)),
	)

	start := time.Now()
	result, err := b.fetch(ctx, query, args)
	b.record(ctx, operation, start, int64(len(result)), err)
	if err != nil {
		return nil, err
	}
	return b.cfg.PostProcessResponse(result, queryCtx)
}

func (b *Bank) fetch(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows, err := b.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return dbexec.ScanMaps(rows)
}

func (b *Bank) execStatement(ctx context.Context, operation, query string, args []any) (sql.Result, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	b.loggerFor(ctx).Debug("executing statement",
		slog.String("operation", operation),
		slog.String("sql", query),
		slog.Int("args", len(args)),
	)

	start := time.Now()
	res, err := b.exec.ExecContext(ctx, query, args...)
	if err != nil {
		b.record(ctx, operation, start, 0, err)
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	b.record(ctx, operation, start, affected, nil)
	return res, nil
}

func (b *Bank) record(ctx context.Context, operation string, start time.Time, rows int64, err error) {
	if b.recorder != nil {
		b.recorder.RecordQuery(ctx, operation, time.Since(start), rows, err)
	}
}

// loggerFor prefers a logger carried by ctx and tags it with the query ID.
func (b *Bank) loggerFor(ctx context.Context) *logging.Logger {
	logger := logging.FromContextOr(ctx, b.logger)
	if id := logging.GetQueryID(ctx); id != "" {
		logger = logger.WithQueryID(id)
	}
	return logger
}
