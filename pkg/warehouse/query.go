package warehouse

import (
	"context"
	"fmt"
)

// ColumnMetadata describes one column of a QueryResult.
type ColumnMetadata struct {
	Name             string
	DatabaseTypeName string
}

// QueryResult is the generic, driver-agnostic shape returned by Query.
type QueryResult struct {
	Columns []ColumnMetadata
	Rows    []map[string]any
	Count   int
}

// Query executes a read-only statement and scans every row into a
// name-keyed map.
func Query(ctx context.Context, conn Connection, query string, args ...any) (*QueryResult, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse: query: %w", err)
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	names := rows.Columns()
	cols := make([]ColumnMetadata, len(names))
	for i, name := range names {
		dbType := ""
		if i < len(types) {
			dbType = types[i].DatabaseTypeName()
		}
		cols[i] = ColumnMetadata{Name: name, DatabaseTypeName: dbType}
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		dest := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("warehouse: scan row: %w", err)
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = dest[i]
		}
		result.Rows = append(result.Rows, row)
		result.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
