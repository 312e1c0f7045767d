// Package dal is the data-access layer for the user subsystem. All reads and
// writes go through stored procedures; the gateway in this file executes them
// and the entity operations in users.go classify their failures.
package dal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBTX is the subset of database/sql executed against by the gateway.
// Both *sql.DB and *sql.Tx satisfy it, so callers decide the transaction
// scope; the gateway itself never commits or rolls back.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Row is a single procedure result keyed by column name.
type Row map[string]any

// queryProc executes a stored procedure in single-row mode and returns the
// first result row, or (nil, nil) when the procedure produced none. Absence
// is not an error at this layer. Driver errors are wrapped with the procedure
// name and left unclassified.
func queryProc(ctx context.Context, q DBTX, proc string, args ...any) (Row, error) {
	rows, err := q.QueryContext(ctx, callStatement(proc, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", proc, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("call %s: %w", proc, err)
		}
		return nil, nil
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", proc, err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("call %s: %w", proc, err)
	}

	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = values[i]
	}
	return row, nil
}

// execProc executes a stored procedure in no-result mode and returns the
// affected-row count the procedure reports as its scalar result.
func execProc(ctx context.Context, q DBTX, proc string, args ...any) (int64, error) {
	query := fmt.Sprintf("SELECT %s(%s)", proc, placeholders(len(args)))
	var affected int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&affected); err != nil {
		return 0, fmt.Errorf("call %s: %w", proc, err)
	}
	return affected, nil
}

func callStatement(proc string, argc int) string {
	return fmt.Sprintf("SELECT * FROM %s(%s)", proc, placeholders(argc))
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}
