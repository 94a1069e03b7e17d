package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

func (d *PostgresDialect) DateCastExpr(column string) string {
	q := d.QuoteIdent(column)
	return fmt.Sprintf("CAST(%s AS DATE) AS %s", q, q)
}

func (d *PostgresDialect) TopClause(n int) string { return "" }

func (d *PostgresDialect) LimitSuffix(n int) string {
	return fmt.Sprintf(" LIMIT %d", n)
}

// DeleteOneSQL deletes at most one matching row. Postgres has no
// DELETE ... LIMIT, so the row is pinned through its ctid.
func (d *PostgresDialect) DeleteOneSQL(table, where string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE ctid IN (SELECT ctid FROM %s WHERE %s LIMIT 1)",
		table, table, where)
}

// SupportsBatch is false: the pgx stdlib driver runs one statement per query
// and never yields multiple result sets.
func (d *PostgresDialect) SupportsBatch() bool { return false }

func (d *PostgresDialect) TableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnMeta, error) {
	const q = `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []ColumnMeta
	for rows.Next() {
		var c ColumnMeta
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columns, nil
}

func (d *PostgresDialect) ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKeyRef, error) {
	const q = `
SELECT
    kcu.column_name,
    ccu.table_name AS referenced_table,
    ccu.column_name AS referenced_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
    ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
    ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema = 'public'
  AND tc.table_name = $1
ORDER BY tc.constraint_name`

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys for %s: %w", table, err)
	}
	defer rows.Close()

	var refs []ForeignKeyRef
	for rows.Next() {
		var r ForeignKeyRef
		if err := rows.Scan(&r.Column, &r.ReferencedTable, &r.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}
	return refs, nil
}
