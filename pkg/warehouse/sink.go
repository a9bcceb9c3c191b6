package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/adflow-io/adflow/pkg/metrics"
	"github.com/adflow-io/adflow/pkg/tabular"
)

// LoadMode selects how a payload is merged into its target table.
type LoadMode string

const (
	Append    LoadMode = "append"
	Replace   LoadMode = "replace"
	Upsert    LoadMode = "upsert"
	Increment LoadMode = "increment"
)

// LoadRequest describes one call to Sink.Load.
type LoadRequest struct {
	Table            string
	Mode             LoadMode
	Payload          *tabular.Payload
	PKColumns        []string
	IncrementColumns []string
	// OpID labels this load and is echoed back in LoadResult; a zero value
	// gets a fresh uuid. Load does not compare it with earlier loads, so a
	// repeated request is applied again.
	OpID uuid.UUID
}

// LoadResult reports what a Load call actually did.
type LoadResult struct {
	OpID         uuid.UUID
	RowsWritten  int
	RowsSkipped  int
	AlreadyDone  bool
}

// Sink is the warehouse's bulk-loading entry point: one per orchestrator
// run, shared by every platform pipeline so table-level writes serialize
// correctly even under concurrent platform execution.
type Sink struct {
	client   Client
	database string
	log      *slog.Logger

	tableLocks sync.Map // table name -> *sync.Mutex
}

// NewSink wraps a warehouse Client for bulk loading.
func NewSink(client Client, database string, log *slog.Logger) *Sink {
	return &Sink{client: client, database: database, log: log}
}

func (s *Sink) lockFor(table string) *sync.Mutex {
	v, _ := s.tableLocks.LoadOrStore(table, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Load merges req.Payload into req.Table under req.Mode, acquiring the
// table's lock so concurrent platform pipelines never race on the same
// target, per the shared-resource locking discipline.
func (s *Sink) Load(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	if req.Payload == nil || req.Payload.RowCount() == 0 {
		return &LoadResult{OpID: req.OpID}, nil
	}
	if req.OpID == uuid.Nil {
		req.OpID = uuid.New()
	}

	lock := s.lockFor(req.Table)
	lock.Lock()
	defer lock.Unlock()

	conn, err := s.client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("warehouse: acquire connection: %w", err)
	}
	defer conn.Close()

	schema, err := LoadSchema(ctx, conn, s.database, req.Table)
	if err != nil {
		return nil, err
	}
	if err := AlignPayload(req.Payload, schema); err != nil {
		return nil, err
	}

	if len(req.PKColumns) == 0 && (req.Mode == Upsert || req.Mode == Increment) {
		req.PKColumns = DetectPKColumns(schema, req.Mode)
	}

	var result *LoadResult
	switch req.Mode {
	case Append:
		result, err = s.loadAppend(ctx, conn, schema, req)
	case Replace:
		result, err = s.loadReplace(ctx, conn, schema, req)
	case Upsert:
		result, err = s.loadUpsert(ctx, conn, schema, req)
	case Increment:
		result, err = s.loadIncrement(ctx, conn, schema, req)
	default:
		return nil, fmt.Errorf("warehouse: unknown load mode %q", req.Mode)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.WarehouseLoadTotal.WithLabelValues(req.Table, string(req.Mode), status).Inc()
	if err == nil {
		metrics.WarehouseRowsLoaded.WithLabelValues(req.Table, string(req.Mode)).Add(float64(result.RowsWritten))
	}
	return result, err
}

// TableExists reports whether table is present in the configured database.
func (s *Sink) TableExists(ctx context.Context, table string) (bool, error) {
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `SELECT count() FROM system.tables WHERE database = ? AND name = ?`, s.database, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var count uint64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return false, err
		}
	}
	return count > 0, nil
}

// Query runs a read-only SQL statement and returns its rows as a generic
// result, for diagnostics and for a platform pipeline's driver-key lookups.
func (s *Sink) Query(ctx context.Context, sql string, args ...any) (*QueryResult, error) {
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return Query(ctx, conn, sql, args...)
}

// Close releases the underlying client.
func (s *Sink) Close() error {
	return s.client.Close()
}

func qualify(database, table string) string {
	return fmt.Sprintf("%s.%s", database, table)
}
