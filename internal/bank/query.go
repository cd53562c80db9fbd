package bank

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"

	sq "github.com/Masterminds/squirrel"
)

type queryContextKey struct{}

// WithQueryContext attaches an opaque value that is handed to the identifier
// and response hooks of every statement run with ctx.
func WithQueryContext(ctx context.Context, queryCtx any) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryCtx)
}

// QueryContextFrom returns the value attached by WithQueryContext.
func QueryContextFrom(ctx context.Context) any {
	return ctx.Value(queryContextKey{})
}

// SelectQuery builds a SELECT whose identifiers are case converted.
type SelectQuery struct {
	bank     *Bank
	table    string
	columns  []string
	where    map[string]any
	orderBy  []orderTerm
	limit    uint64
	offset   uint64
	queryCtx any
	ctxSet   bool
}

type orderTerm struct {
	column string
	desc   bool
}

// Select starts a query against table. No columns selects *.
func (b *Bank) Select(table string, columns ...string) *SelectQuery {
	return &SelectQuery{
		bank:    b,
		table:   table,
		columns: slices.Clone(columns),
	}
}

// Where adds equality predicates. Keys are column names in application case.
// A nil value renders IS NULL and a slice renders IN.
func (q *SelectQuery) Where(eq map[string]any) *SelectQuery {
	if q.where == nil {
		q.where = make(map[string]any, len(eq))
	}
	for k, v := range eq {
		q.where[k] = v
	}
	return q
}

// OrderBy appends a sort term.
func (q *SelectQuery) OrderBy(column string, desc bool) *SelectQuery {
	q.orderBy = append(q.orderBy, orderTerm{column: column, desc: desc})
	return q
}

// Limit caps the number of rows returned.
func (q *SelectQuery) Limit(n uint64) *SelectQuery {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q *SelectQuery) Offset(n uint64) *SelectQuery {
	q.offset = n
	return q
}

// Context sets the opaque query context passed to the hooks. It takes
// precedence over a value attached with WithQueryContext.
func (q *SelectQuery) Context(queryCtx any) *SelectQuery {
	q.queryCtx = queryCtx
	q.ctxSet = true
	return q
}

// ToSQL renders the statement and its bind arguments.
func (q *SelectQuery) ToSQL() (string, []any, error) {
	return q.toSQL(q.queryCtx)
}

func (q *SelectQuery) toSQL(queryCtx any) (string, []any, error) {
	b := q.bank
	columns := q.columns
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = b.Ident(col, queryCtx)
	}

	builder := sq.Select(quoted...).
		From(b.Ident(q.table, queryCtx)).
		PlaceholderFormat(b.dialect.Placeholder())
	if len(q.where) > 0 {
		builder = builder.Where(b.eq(q.where, queryCtx))
	}
	for _, term := range q.orderBy {
		clause := b.Ident(term.column, queryCtx)
		if term.desc {
			clause += " DESC"
		}
		builder = builder.OrderBy(clause)
	}
	if q.limit > 0 {
		builder = builder.Limit(q.limit)
	}
	if q.offset > 0 {
		builder = builder.Offset(q.offset)
	}
	return builder.ToSql()
}

// All runs the query and returns the post-processed rows.
func (q *SelectQuery) All(ctx context.Context) (any, error) {
	queryCtx := q.queryCtx
	if !q.ctxSet {
		queryCtx = QueryContextFrom(ctx)
	}
	query, args, err := q.toSQL(queryCtx)
	if err != nil {
		return nil, err
	}
	return q.bank.query(ctx, "select", query, args, queryCtx)
}

func (b *Bank) eq(values map[string]any, queryCtx any) sq.Eq {
	out := make(sq.Eq, len(values))
	for k, v := range values {
		out[b.Ident(k, queryCtx)] = v
	}
	return out
}

var errEmptyRow = errors.New("insert requires at least one column")

// Insert writes one row. Keys are column names in application case.
func (b *Bank) Insert(ctx context.Context, table string, row map[string]any) (sql.Result, error) {
	if len(row) == 0 {
		return nil, errEmptyRow
	}
	queryCtx := QueryContextFrom(ctx)

	keys := slices.Sorted(maps.Keys(row))
	columns := make([]string, len(keys))
	values := make([]any, len(keys))
	for i, k := range keys {
		columns[i] = b.Ident(k, queryCtx)
		values[i] = row[k]
	}

	query, args, err := sq.Insert(b.Ident(table, queryCtx)).
		Columns(columns...).
		Values(values...).
		PlaceholderFormat(b.dialect.Placeholder()).
		ToSql()
	if err != nil {
		return nil, err
	}
	return b.execStatement(ctx, "insert", query, args)
}

// Update sets columns on every row matching where. An empty where updates
// every row.
func (b *Bank) Update(ctx context.Context, table string, set, where map[string]any) (sql.Result, error) {
	queryCtx := QueryContextFrom(ctx)

	assignments := make(map[string]any, len(set))
	for k, v := range set {
		assignments[b.Ident(k, queryCtx)] = v
	}
	builder := sq.Update(b.Ident(table, queryCtx)).
		SetMap(assignments).
		PlaceholderFormat(b.dialect.Placeholder())
	if len(where) > 0 {
		builder = builder.Where(b.eq(where, queryCtx))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return b.execStatement(ctx, "update", query, args)
}

// Delete removes every row matching where. An empty where deletes every row.
func (b *Bank) Delete(ctx context.Context, table string, where map[string]any) (sql.Result, error) {
	queryCtx := QueryContextFrom(ctx)

	builder := sq.Delete(b.Ident(table, queryCtx)).
		PlaceholderFormat(b.dialect.Placeholder())
	if len(where) > 0 {
		builder = builder.Where(b.eq(where, queryCtx))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return b.execStatement(ctx, "delete", query, args)
}
