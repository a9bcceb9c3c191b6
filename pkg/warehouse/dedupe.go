package warehouse

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// MaxDedupeScanRows bounds how many existing primary keys ExistingKeySet will
// pull into memory before append+pk mode falls back to a warehouse-side
// anti-join. It is a package variable, so it can be set before loading.
var MaxDedupeScanRows uint64 = 500_000

// ExistingKeySet loads the surrogate keys already present in table for the
// given pk columns, used by append+pk mode to skip rows the warehouse
// already has. Returns ok=false once the table holds more rows than
// MaxDedupeScanRows, signaling the caller to push the dedupe down instead.
func ExistingKeySet(ctx context.Context, conn Connection, database, table string, pkColumns []string) (map[SurrogateKey]struct{}, bool, error) {
	var count uint64
	countRows, err := conn.Query(ctx, fmt.Sprintf("SELECT count() FROM %s.%s", database, table))
	if err != nil {
		return nil, false, fmt.Errorf("warehouse: count %s: %w", table, err)
	}
	if countRows.Next() {
		if err := countRows.Scan(&count); err != nil {
			countRows.Close()
			return nil, false, err
		}
	}
	countRows.Close()
	if count > MaxDedupeScanRows {
		return nil, false, nil
	}

	cols := make([]string, len(pkColumns))
	copy(cols, pkColumns)
	selectList := ""
	for i, c := range cols {
		if i > 0 {
			selectList += ", "
		}
		selectList += c
	}

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT %s FROM %s.%s", selectList, database, table))
	if err != nil {
		return nil, false, fmt.Errorf("warehouse: scan pks for %s: %w", table, err)
	}
	defer rows.Close()

	keys := map[SurrogateKey]struct{}{}
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		values := make([]any, len(dest))
		copy(values, dest)
		keys[NewNaturalKey(values...).ToSurrogate()] = struct{}{}
	}
	return keys, true, rows.Err()
}

// dedupeAndInsertPushdown is ExistingKeySet's warehouse-side counterpart for
// tables too large to scan into memory: it stages the payload, collapses
// in-batch duplicates with ClickHouse's "LIMIT 1 BY", and inserts only the
// rows whose key is absent from the target, all without pulling a single
// existing key into the process.
func dedupeAndInsertPushdown(ctx context.Context, conn Connection, database, table string, pkColumns []string, payload *tabular.Payload) (written, skipped int, err error) {
	stg := stagingTableName(table)
	if err = ensureStagingTable(ctx, conn, database, stg, table); err != nil {
		return 0, 0, fmt.Errorf("warehouse: ensure staging table: %w", err)
	}
	if err = conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", qualify(database, stg))); err != nil {
		return 0, 0, fmt.Errorf("warehouse: truncate staging %s: %w", stg, err)
	}

	staged, err := insertPayload(ctx, conn, database, stg, payload)
	if err != nil {
		return 0, 0, err
	}

	syncCtx := ContextWithSyncInsert(ctx)
	pkCSV := pkColumnCSV(pkColumns)
	pkTuple := pkColumnListExpr(pkColumns)
	dedupedSQL := fmt.Sprintf("SELECT * FROM %s LIMIT 1 BY %s", qualify(database, stg), pkCSV)

	countSQL := fmt.Sprintf("SELECT count() FROM (%s) WHERE %s NOT IN (SELECT %s FROM %s)",
		dedupedSQL, pkTuple, pkTuple, qualify(database, table))
	rows, err := conn.Query(syncCtx, countSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("warehouse: count new rows for %s: %w", table, err)
	}
	var newCount uint64
	if rows.Next() {
		if err = rows.Scan(&newCount); err != nil {
			rows.Close()
			return 0, 0, err
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, 0, err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s SELECT * FROM (%s) WHERE %s NOT IN (SELECT %s FROM %s)",
		qualify(database, table), dedupedSQL, pkTuple, pkTuple, qualify(database, table))
	if err = conn.Exec(syncCtx, insertSQL); err != nil {
		return 0, 0, fmt.Errorf("warehouse: insert deduped rows into %s: %w", table, err)
	}

	written = int(newCount)
	skipped = staged - written
	return written, skipped, nil
}

func pkColumnCSV(pkColumns []string) string {
	csv := ""
	for i, c := range pkColumns {
		if i > 0 {
			csv += ", "
		}
		csv += c
	}
	return csv
}

// FilterNewRows removes rows from payload whose primary-key tuple is already
// present in existing, preserving payload column order and the in-memory
// dedupe across the batch itself (duplicate rows within one payload also
// collapse to the first occurrence), satisfying invariant I2.
func FilterNewRows(payload *tabular.Payload, pkColumns []string, existing map[SurrogateKey]struct{}) (*tabular.Payload, error) {
	pkIdx := make([]int, len(pkColumns))
	for i, name := range pkColumns {
		col, ok := payload.Column(name)
		if !ok {
			return nil, fmt.Errorf("warehouse: pk column %q not present in payload", name)
		}
		for ci := range payload.Columns {
			if &payload.Columns[ci] == col {
				pkIdx[i] = ci
				break
			}
		}
	}

	seen := map[SurrogateKey]struct{}{}
	keep := make([]bool, payload.RowCount())
	for r := 0; r < payload.RowCount(); r++ {
		values := make([]any, len(pkIdx))
		for i, ci := range pkIdx {
			values[i] = payload.Columns[ci].Values[r]
		}
		key := NewNaturalKey(values...).ToSurrogate()
		if _, dup := existing[key]; dup {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep[r] = true
	}

	out := make([]tabular.Column, len(payload.Columns))
	for ci, c := range payload.Columns {
		values := make([]any, 0, len(c.Values))
		for r, v := range c.Values {
			if keep[r] {
				values = append(values, v)
			}
		}
		out[ci] = tabular.Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return &tabular.Payload{Columns: out}, nil
}
