// Package introspection reads table and column metadata from the database's
// information_schema so names can be shown in both database and application
// case.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sqlcase/internal/dbexec"
	"sqlcase/internal/sqlutil"
)

// Table describes a table or view.
type Table struct {
	Name    string
	IsView  bool
	Comment string
}

// Column describes a table column.
type Column struct {
	Name       string
	DataType   string
	ColumnType string
	IsNullable bool
	// IsPrimaryKey is set for every column of a composite key.
	IsPrimaryKey bool
	HasDefault   bool
	Default      string
	Comment      string
	// Values lists the members of ENUM and SET columns.
	Values []string
}

// Inspector queries information_schema for one schema.
type Inspector struct {
	exec    dbexec.QueryExecutor
	dialect sqlutil.Dialect
	schema  string
}

// New returns an Inspector. An empty schema selects the connection's
// current database (DATABASE() on MySQL, current_schema() on Postgres).
func New(exec dbexec.QueryExecutor, dialect sqlutil.Dialect, schema string) *Inspector {
	return &Inspector{exec: exec, dialect: dialect, schema: schema}
}

func (in *Inspector) schemaPredicate(column string) sq.Sqlizer {
	if in.schema != "" {
		return sq.Eq{column: in.schema}
	}
	if in.dialect == sqlutil.Postgres {
		return sq.Expr(column + " = current_schema()")
	}
	return sq.Expr(column + " = DATABASE()")
}

func (in *Inspector) tablesQuery() (string, []any, error) {
	comment := "TABLE_COMMENT"
	if in.dialect == sqlutil.Postgres {
		comment = "obj_description(format('%I.%I', table_schema, table_name)::regclass, 'pg_class')"
	}
	return sq.Select("table_name", "table_type", comment).
		From("information_schema.tables").
		Where(in.schemaPredicate("table_schema")).
		Where(sq.Eq{"table_type": []string{"BASE TABLE", "VIEW"}}).
		OrderBy("table_name").
		PlaceholderFormat(in.dialect.Placeholder()).
		ToSql()
}

// Tables lists base tables and views ordered by name.
func (in *Inspector) Tables(ctx context.Context) ([]Table, error) {
	ctx, span := startSpan(ctx, "introspection.tables", attribute.String("db.name", in.schema))
	defer span.End()

	query, args, err := in.tablesQuery()
	if err != nil {
		return nil, err
	}
	rows, err := in.exec.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	tables := []Table{}
	for rows.Next() {
		var name, tableType string
		var comment sql.NullString
		if err := rows.Scan(&name, &tableType, &comment); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, Table{
			Name:    name,
			IsView:  strings.EqualFold(tableType, "VIEW"),
			Comment: strings.TrimSpace(comment.String),
		})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

// pgPrimaryKey marks columns belonging to the table's primary key.
const pgPrimaryKey = `CASE WHEN column_name IN (
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = c.table_schema
			AND tc.table_name = c.table_name
	) THEN 'PRI' ELSE '' END`

func (in *Inspector) columnsQuery(table string) (string, []any, error) {
	var columns []string
	if in.dialect == sqlutil.Postgres {
		columns = []string{
			"column_name", "data_type", "udt_name", "is_nullable", "column_default",
			"col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position)",
			pgPrimaryKey,
		}
	} else {
		columns = []string{
			"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT",
			"COLUMN_COMMENT", "COLUMN_KEY",
		}
	}
	return sq.Select(columns...).
		From("information_schema.columns c").
		Where(in.schemaPredicate("c.table_schema")).
		Where(sq.Eq{"c.table_name": table}).
		OrderBy("c.ordinal_position").
		PlaceholderFormat(in.dialect.Placeholder()).
		ToSql()
}

// Columns lists the columns of table in ordinal order. table is the name as
// stored in the database. An unknown table yields an empty list.
func (in *Inspector) Columns(ctx context.Context, table string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.columns",
		attribute.String("db.name", in.schema),
		attribute.String("db.table", table),
	)
	defer span.End()

	query, args, err := in.columnsQuery(table)
	if err != nil {
		return nil, err
	}
	rows, err := in.exec.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to list columns for %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	columns := []Column{}
	for rows.Next() {
		var col Column
		var nullable, key string
		var def, comment sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &nullable, &def, &comment, &key); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.IsNullable = strings.EqualFold(nullable, "YES")
		col.IsPrimaryKey = key == "PRI"
		col.HasDefault = def.Valid
		col.Default = def.String
		col.Comment = strings.TrimSpace(comment.String)

		if kind := strings.ToLower(col.DataType); kind == "enum" || kind == "set" {
			values, err := parseValueList(col.ColumnType, kind)
			if err != nil {
				slog.Default().Warn("failed to parse column values",
					slog.String("column", col.Name),
					slog.String("type", col.ColumnType),
					slog.String("error", err.Error()),
				)
			} else {
				col.Values = values
			}
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("sqlcase/introspection").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
