package warehouse

import (
	"context"
	"fmt"

	"github.com/adflow-io/adflow/pkg/tabular"
)

// insertPayload bulk-inserts payload into table via a plain
// PrepareBatch/Append/Send sequence.
func insertPayload(ctx context.Context, conn Connection, database, table string, payload *tabular.Payload) (int, error) {
	if payload.RowCount() == 0 {
		return 0, nil
	}

	colNames := payload.ColumnNames()
	colList := ""
	for i, c := range colNames {
		if i > 0 {
			colList += ", "
		}
		colList += c
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s)", qualify(database, table), colList)
	batch, err := conn.PrepareBatch(ContextWithSyncInsert(ctx), insertSQL)
	if err != nil {
		return 0, fmt.Errorf("warehouse: prepare batch for %s: %w", table, err)
	}
	defer batch.Close()

	n := payload.RowCount()
	for r := 0; r < n; r++ {
		row := make([]any, len(colNames))
		for ci, c := range payload.Columns {
			row[ci] = c.Values[r]
		}
		if err := batch.Append(row...); err != nil {
			return 0, fmt.Errorf("warehouse: append row %d to %s: %w", r, table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("warehouse: send batch to %s: %w", table, err)
	}
	return n, nil
}

func pkTupleExpr(alias string, pkColumns []string) string {
	expr := "("
	for i, c := range pkColumns {
		if i > 0 {
			expr += ", "
		}
		expr += alias + "." + c
	}
	return expr + ")"
}

func pkColumnListExpr(pkColumns []string) string {
	expr := "("
	for i, c := range pkColumns {
		if i > 0 {
			expr += ", "
		}
		expr += c
	}
	return expr + ")"
}
