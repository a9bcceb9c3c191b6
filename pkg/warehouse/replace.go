package warehouse

import (
	"context"
	"fmt"
)

// loadReplace implements replace mode: the target table's current contents
// are discarded and fully replaced by payload, matching a platform's
// point-in-time snapshot tables (e.g. campaign metadata refreshed in full
// on every run).
func (s *Sink) loadReplace(ctx context.Context, conn Connection, schema *TableSchema, req LoadRequest) (*LoadResult, error) {
	if err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", qualify(s.database, req.Table))); err != nil {
		return nil, fmt.Errorf("warehouse: truncate %s: %w", req.Table, err)
	}
	written, err := insertPayload(ctx, conn, s.database, req.Table, req.Payload)
	if err != nil {
		return nil, err
	}
	return &LoadResult{OpID: req.OpID, RowsWritten: written}, nil
}
