package warehouse

import (
	"context"
	"fmt"
)

// lastUpdatedDateColumn is touched to the current time on every merged row
// of an increment load, when the target table declares it, rather than
// copied from staging.
const lastUpdatedDateColumn = "last_updated_date"

// loadIncrement implements increment mode: like upsert, but the columns
// named in IncrementColumns are added to whatever the target already holds
// for that key rather than overwritten, giving cumulative metrics (spend,
// impressions) correct running totals across repeated runs for the same
// key. Rows are keyed by entity id alone, never by a date column: an
// increment table holds one cumulative row per entity for its lifetime, not
// one row per entity per day.
func (s *Sink) loadIncrement(ctx context.Context, conn Connection, schema *TableSchema, req LoadRequest) (*LoadResult, error) {
	if len(req.PKColumns) == 0 {
		return nil, fmt.Errorf("warehouse: increment on %s requires pk_columns", req.Table)
	}
	if len(req.IncrementColumns) == 0 {
		return nil, fmt.Errorf("warehouse: increment on %s requires increment_columns", req.Table)
	}

	stg := stagingTableName(req.Table)
	if err := ensureStagingTable(ctx, conn, s.database, stg, req.Table); err != nil {
		return nil, fmt.Errorf("warehouse: ensure staging table: %w", err)
	}
	if err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", qualify(s.database, stg))); err != nil {
		return nil, fmt.Errorf("warehouse: truncate staging %s: %w", stg, err)
	}

	staged, err := insertPayload(ctx, conn, s.database, stg, req.Payload)
	if err != nil {
		return nil, err
	}

	syncCtx := ContextWithSyncInsert(ctx)

	incrementSet := make(map[string]bool, len(req.IncrementColumns))
	for _, c := range req.IncrementColumns {
		incrementSet[c] = true
	}

	colList := ""
	selectList := ""
	for i, name := range schema.ColumnOrder {
		if i > 0 {
			colList += ", "
			selectList += ", "
		}
		colList += name
		switch {
		case incrementSet[name]:
			selectList += fmt.Sprintf("coalesce(t.%s, 0) + s.%s AS %s", name, name, name)
		case name == lastUpdatedDateColumn:
			selectList += lastUpdatedDateExpr(schema.ColumnType[name].Base()) + " AS " + name
		default:
			selectList += "s." + name + " AS " + name
		}
	}

	// stg_<table>_merged holds this run's merged rows before they replace
	// the equivalent keys in the target, so the delete-then-insert swap
	// below never observes a half-written state.
	merged := stg + "_merged"
	if err := ensureStagingTable(syncCtx, conn, s.database, merged, req.Table); err != nil {
		return nil, err
	}
	if err := conn.Exec(syncCtx, fmt.Sprintf("TRUNCATE TABLE %s", qualify(s.database, merged))); err != nil {
		return nil, fmt.Errorf("warehouse: truncate merge staging %s: %w", merged, err)
	}

	mergeSQL := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s
		FROM %s s
		LEFT JOIN %s t ON %s = %s
	`, qualify(s.database, merged), colList, selectList,
		qualify(s.database, stg), qualify(s.database, req.Table),
		pkTupleExpr("s", req.PKColumns), pkTupleExpr("t", req.PKColumns))
	if err := conn.Exec(syncCtx, mergeSQL); err != nil {
		return nil, fmt.Errorf("warehouse: merge increment values: %w", err)
	}

	deleteSQL := fmt.Sprintf(`
		ALTER TABLE %s DELETE WHERE %s IN (SELECT %s FROM %s)
	`, qualify(s.database, req.Table), pkColumnListExpr(req.PKColumns), pkColumnListExpr(req.PKColumns), qualify(s.database, stg))
	if err := conn.Exec(syncCtx, deleteSQL); err != nil {
		return nil, fmt.Errorf("warehouse: delete stale rows before increment: %w", err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s`, qualify(s.database, req.Table), qualify(s.database, merged))
	if err := conn.Exec(syncCtx, insertSQL); err != nil {
		return nil, fmt.Errorf("warehouse: copy merged rows into %s: %w", req.Table, err)
	}

	return &LoadResult{OpID: req.OpID, RowsWritten: staged}, nil
}

// lastUpdatedDateExpr picks the ClickHouse "now" builtin matching the
// target column's type, so a plain Date column gets today() instead of a
// DateTime value it would otherwise have to truncate.
func lastUpdatedDateExpr(base ColumnKind) string {
	if base == KindDateTime {
		return "now()"
	}
	return "today()"
}
