// Package metastore persists a summary of each orchestrator run to Postgres
// so repeated runs can be listed without re-parsing report files. It never
// holds payload rows, only the run/platform summary rows an execution
// report already carries.
package metastore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/adflow-io/adflow/pkg/orchestrator"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Config holds the connection parameters for the run-history store, parsed
// into a pgxpool.Config.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store records and lists orchestrator run summaries. A nil *Store is a
// valid no-op: callers that did not configure a DSN skip persistence
// entirely rather than threading an enabled flag through every call site.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
	log  *slog.Logger
}

// New opens a connection pool against cfg.DSN and pings it. Returns an
// error if the DSN is empty; callers that want the metastore to be
// optional should check their own config before calling New.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("metastore: dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("metastore: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		poolCfg.MaxConnLifetime = time.Hour
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	} else {
		poolCfg.MaxConnIdleTime = 30 * time.Minute
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("metastore: open pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metastore: ping: %w", err)
	}

	return &Store{pool: pool, dsn: cfg.DSN, log: log}, nil
}

// Close releases the connection pool. Safe to call on a nil *Store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate applies every pending run-history migration via goose against an
// embedded migration filesystem. Safe to call on a nil *Store.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil {
		return nil
	}
	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("metastore: open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("metastore: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("metastore: run migrations: %w", err)
	}
	s.log.Info("metastore migrations applied")
	return nil
}

// RunRecord identifies one persisted run, returned by ListRuns.
type RunRecord struct {
	ID             uuid.UUID
	StartedAt      time.Time
	EndedAt        time.Time
	TotalPlatforms int
	Completed      int
	Failed         int
	Skipped        int
	ExitCode       int
	TriggeredBy    string
}

// RecordRun persists report as a new run plus one row per platform outcome.
// triggeredBy distinguishes CLI invocations from any future scheduled
// trigger without widening the schema today.
func (s *Store) RecordRun(ctx context.Context, report orchestrator.Report, exitCode int, triggeredBy string) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, nil
	}

	runID := uuid.New()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	startedAt, endedAt := parseReportTimestamps(report)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, started_at, ended_at, total_platforms, completed, failed, skipped, exit_code, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, startedAt, endedAt, report.Summary.TotalPlatforms, report.Summary.Completed,
		report.Summary.Failed, report.Summary.Skipped, exitCode, triggeredBy,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("metastore: insert run: %w", err)
	}

	for _, p := range report.Platforms {
		_, err = tx.Exec(ctx, `
			INSERT INTO run_platforms (run_id, platform_name, status, duration_seconds, rows_processed, tables_processed, retry_count, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, p.PlatformName, p.Status, p.DurationSeconds, p.RowsProcessed, p.TablesProcessed, p.RetryCount, nullableText(p.ErrorMessage),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("metastore: insert run_platform %q: %w", p.PlatformName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("metastore: commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first, capped at limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, ended_at, total_platforms, completed, failed, skipped, exit_code, triggered_by
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("metastore: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var endedAt sql.NullTime
		var exitCode sql.NullInt32
		if err := rows.Scan(&r.ID, &r.StartedAt, &endedAt, &r.TotalPlatforms, &r.Completed, &r.Failed, &r.Skipped, &exitCode, &r.TriggeredBy); err != nil {
			return nil, fmt.Errorf("metastore: scan run: %w", err)
		}
		if endedAt.Valid {
			r.EndedAt = endedAt.Time
		}
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int32)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseReportTimestamps(report orchestrator.Report) (time.Time, time.Time) {
	const layout = "2006-01-02T15:04:05.000Z"
	started, _ := time.Parse(layout, report.Summary.StartedAt)
	ended, _ := time.Parse(layout, report.Summary.EndedAt)
	return started, ended
}

func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
