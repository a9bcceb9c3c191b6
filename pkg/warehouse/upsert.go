package warehouse

import (
	"context"
	"fmt"
)

// stagingTableName derives a staging table name from its target, scoped per
// target table, reused across runs under the caller's table lock.
func stagingTableName(table string) string {
	return "stg_" + table
}

// ensureStagingTable creates a staging table named name, structurally
// identical to likeTable, the first time a target table is upserted or
// incremented.
func ensureStagingTable(ctx context.Context, conn Connection, database, name, likeTable string) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS %s", qualify(database, name), qualify(database, likeTable))
	return conn.Exec(ctx, ddl)
}

// loadUpsert implements upsert mode via a stage-then-merge pattern: stage
// the payload, delete any target rows whose primary key reappears in
// staging, then copy staging into the target so the staged version always
// wins.
func (s *Sink) loadUpsert(ctx context.Context, conn Connection, schema *TableSchema, req LoadRequest) (*LoadResult, error) {
	if len(req.PKColumns) == 0 {
		return nil, fmt.Errorf("warehouse: upsert on %s requires pk_columns", req.Table)
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

	deleteSQL := fmt.Sprintf(`
		ALTER TABLE %s DELETE WHERE %s IN (SELECT %s FROM %s)
	`, qualify(s.database, req.Table), pkColumnListExpr(req.PKColumns), pkColumnListExpr(req.PKColumns), qualify(s.database, stg))
	if err := conn.Exec(syncCtx, deleteSQL); err != nil {
		return nil, fmt.Errorf("warehouse: delete stale rows before upsert: %w", err)
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO %s SELECT * FROM %s
	`, qualify(s.database, req.Table), qualify(s.database, stg))
	if err := conn.Exec(syncCtx, insertSQL); err != nil {
		return nil, fmt.Errorf("warehouse: copy staging into %s: %w", req.Table, err)
	}

	return &LoadResult{OpID: req.OpID, RowsWritten: staged}, nil
}
