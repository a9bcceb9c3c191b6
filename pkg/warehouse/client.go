// Package warehouse implements the analytical warehouse sink: bulk-loading
// tabular payloads under append/replace/upsert/increment semantics, with
// type alignment, deduplication and idempotent retries.
package warehouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DefaultDatabase is used when no database is configured.
const DefaultDatabase = "default"

// ContextWithSyncInsert configures the context for synchronous, immediately
// visible inserts and mutations, required so a load's delta computation can
// read rows it just staged and an ALTER TABLE ... DELETE has finished before
// the replacement rows are copied in.
func ContextWithSyncInsert(ctx context.Context) context.Context {
	return clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync":                         2,
		"async_insert":                           0,
		"wait_for_async_insert":                  1,
		"async_insert_use_adaptive_busy_timeout": 0,
		"insert_deduplicate":                     0,
		"select_sequential_consistency":          1,
	}))
}

// Client hands out pooled connections to the warehouse.
type Client interface {
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection is a single leased session against the warehouse.
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Close() error
}

// ClientConfig describes how to reach the warehouse.
type ClientConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	Secure      bool
	MaxSessions int // bounds the connection pool; defaults to 8
}

type client struct {
	conn driver.Conn
	log  *slog.Logger
	sem  chan struct{}
}

type connection struct {
	conn    driver.Conn
	release func()
}

// NewClient dials the warehouse and verifies connectivity.
func NewClient(ctx context.Context, log *slog.Logger, cfg ClientConfig) (Client, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 8
	}

	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	}

	if cfg.Secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("warehouse: ping: %w", err)
	}

	log.Info("warehouse client initialized", "addr", cfg.Addr, "database", cfg.Database, "secure", cfg.Secure)

	return &client{
		conn: conn,
		log:  log,
		sem:  make(chan struct{}, cfg.MaxSessions),
	}, nil
}

// Conn leases a session, blocking until one is available or ctx is done.
// The underlying driver.Conn is itself pool-backed, so the semaphore here
// bounds concurrent callers rather than physical sockets.
func (c *client) Conn(ctx context.Context) (Connection, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	released := false
	release := func() {
		if !released {
			released = true
			<-c.sem
		}
	}
	return &connection{conn: c.conn, release: release}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *connection) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

func (c *connection) Close() error {
	c.release()
	return nil
}
