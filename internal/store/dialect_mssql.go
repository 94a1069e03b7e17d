package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MSSQLDialect implements Dialect for SQL Server.
type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string       { return "mssql" }
func (d *MSSQLDialect) DriverName() string { return "sqlserver" }

func (d *MSSQLDialect) NewParamBuilder() ParamBuilder {
	return &mssqlParamBuilder{}
}

func (d *MSSQLDialect) QuoteIdent(name string) string {
	return "[" + name + "]"
}

// DateCastExpr strips the time portion explicitly. SQL Server's default
// rendering of date columns depends on server locale settings.
func (d *MSSQLDialect) DateCastExpr(column string) string {
	q := d.QuoteIdent(column)
	return fmt.Sprintf("CONVERT(DATE, %s) AS %s", q, q)
}

func (d *MSSQLDialect) TopClause(n int) string {
	return fmt.Sprintf("TOP(%d) ", n)
}

func (d *MSSQLDialect) LimitSuffix(n int) string { return "" }

func (d *MSSQLDialect) DeleteOneSQL(table, where string) string {
	return fmt.Sprintf("DELETE TOP(1) FROM %s WHERE %s", table, where)
}

func (d *MSSQLDialect) SupportsBatch() bool { return true }

func (d *MSSQLDialect) TableColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnMeta, error) {
	const q = `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION`

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

func (d *MSSQLDialect) ForeignKeys(ctx context.Context, db *sql.DB, table string) ([]ForeignKeyRef, error) {
	const q = `
SELECT
    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS column_name,
    OBJECT_NAME(fk.referenced_object_id) AS referenced_table,
    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS referenced_column
FROM sys.foreign_keys fk
INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
WHERE fk.is_ms_shipped = 0
  AND OBJECT_NAME(fk.parent_object_id) = @p1
ORDER BY fk.name, fkc.constraint_column_id`

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
