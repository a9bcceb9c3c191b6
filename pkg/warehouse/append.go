package warehouse

import "context"

// loadAppend implements append mode: rows are inserted as-is. If the caller
// supplied PKColumns, rows whose key already exists in the target (or is
// repeated within the same payload) are dropped first, satisfying invariant
// I2's "append with dedupe" case; with no PKColumns every row is inserted,
// including duplicates, matching plain fact-table ingestion.
func (s *Sink) loadAppend(ctx context.Context, conn Connection, schema *TableSchema, req LoadRequest) (*LoadResult, error) {
	payload := req.Payload

	if len(req.PKColumns) == 0 {
		written, err := insertPayload(ctx, conn, s.database, req.Table, payload)
		if err != nil {
			return nil, err
		}
		return &LoadResult{OpID: req.OpID, RowsWritten: written}, nil
	}

	existing, ok, err := ExistingKeySet(ctx, conn, s.database, req.Table, req.PKColumns)
	if err != nil {
		return nil, err
	}
	if ok {
		before := payload.RowCount()
		payload, err = FilterNewRows(payload, req.PKColumns, existing)
		if err != nil {
			return nil, err
		}
		skipped := before - payload.RowCount()
		written, err := insertPayload(ctx, conn, s.database, req.Table, payload)
		if err != nil {
			return nil, err
		}
		return &LoadResult{OpID: req.OpID, RowsWritten: written, RowsSkipped: skipped}, nil
	}

	s.log.Info("append dedupe pushed down to warehouse: table too large for in-memory scan", "table", req.Table)
	written, skipped, err := dedupeAndInsertPushdown(ctx, conn, s.database, req.Table, req.PKColumns, payload)
	if err != nil {
		return nil, err
	}
	return &LoadResult{OpID: req.OpID, RowsWritten: written, RowsSkipped: skipped}, nil
}
