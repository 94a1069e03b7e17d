package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ColumnMeta describes one column of a table, in ordinal position order.
type ColumnMeta struct {
	Name     string
	DataType string
}

// IsDate reports whether the column holds a temporal value that needs an
// explicit cast when selected (date, datetime, smalldatetime, ...).
func (c ColumnMeta) IsDate() bool {
	return strings.Contains(strings.ToLower(c.DataType), "date")
}

// ForeignKeyRef is one foreign key constraint of a table, discovered from the
// store's constraint metadata.
type ForeignKeyRef struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// Dialect abstracts database-specific SQL generation and metadata access.
type Dialect interface {
	// Name returns "mssql" or "postgres".
	Name() string

	// DriverName returns the database/sql driver name ("sqlserver" or "pgx").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// QuoteIdent quotes an identifier ([name] or "name").
	QuoteIdent(name string) string

	// DateCastExpr returns the select-list expression that renders a
	// temporal column as a bare date under the column's own name.
	DateCastExpr(column string) string

	// TopClause returns the row-cap fragment placed after SELECT
	// ("TOP(n) "), or empty when the dialect limits at the end.
	TopClause(n int) string

	// LimitSuffix returns the row-cap fragment appended to the statement
	// (" LIMIT n"), or empty when the dialect limits after SELECT.
	LimitSuffix(n int) string

	// DeleteOneSQL builds a delete limited to a single matching row.
	DeleteOneSQL(table, where string) string

	// SupportsBatch reports whether several statements can run in one
	// round trip, producing one result set per statement.
	SupportsBatch() bool

	// TableColumns returns the table's columns ordered by ordinal position.
	TableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnMeta, error)

	// ForeignKeys returns the table's foreign key constraint triples.
	ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKeyRef, error)
}

// ParamBuilder accumulates query parameters and generates dialect-specific
// placeholders. Placeholders may be referenced more than once in a batch.
type ParamBuilder interface {
	// Add appends a value and returns its placeholder string.
	Add(v any) string

	// Placeholder returns the placeholder for the given 1-based index.
	Placeholder(index int) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("mssql" or "postgres").
func NewDialect(driver string) Dialect {
	switch driver {
	case "postgres":
		return &PostgresDialect{}
	default:
		return &MSSQLDialect{}
	}
}

// --- MSSQL ParamBuilder ---

type mssqlParamBuilder struct {
	params []any
	n      int
}

func (p *mssqlParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("@p%d", p.n)
}

func (p *mssqlParamBuilder) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

func (p *mssqlParamBuilder) Params() []any { return p.params }
func (p *mssqlParamBuilder) Count() int    { return p.n }

// --- Postgres ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (p *pgParamBuilder) Params() []any { return p.params }
func (p *pgParamBuilder) Count() int    { return p.n }
