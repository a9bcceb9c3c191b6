// Package whtesting spins up a disposable ClickHouse container for
// integration tests of the warehouse sink.
package whtesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/adflow-io/adflow/pkg/warehouse"
)

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	Port           string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Port == "" {
		cfg.Port = "9000"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "clickhouse/clickhouse-server:24.8"
	}
	return nil
}

type DB struct {
	log       *slog.Logger
	cfg       *DBConfig
	addr      string
	container *tcch.ClickHouseContainer
}

func (db *DB) Addr() string { return db.addr }

func (db *DB) MigrationConfig(database string) warehouse.MigrationConfig {
	return warehouse.MigrationConfig{
		Addr:     db.addr,
		Database: database,
		Username: db.cfg.Username,
		Password: db.cfg.Password,
	}
}

func (db *DB) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.container.Terminate(ctx); err != nil {
		db.log.Error("failed to terminate clickhouse container", "error", err)
	}
}

// NewDB starts a ClickHouse container for the duration of the test process.
func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	container, err := tcch.Run(ctx,
		cfg.ContainerImage,
		tcch.WithDatabase(cfg.Database),
		tcch.WithUsername(cfg.Username),
		tcch.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("whtesting: start clickhouse container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	mappedPort, err := container.MappedPort(ctx, nat.Port(fmt.Sprintf("%s/tcp", cfg.Port)))
	if err != nil {
		return nil, err
	}

	return &DB{
		log:       log,
		cfg:       cfg,
		addr:      fmt.Sprintf("%s:%s", host, mappedPort.Port()),
		container: container,
	}, nil
}

// NewSink builds a warehouse.Sink against a freshly created, migrated
// database on db, torn down automatically at the end of the test.
func NewSink(t *testing.T, log *slog.Logger, db *DB) *warehouse.Sink {
	adminClient, err := warehouse.NewClient(t.Context(), log, warehouse.ClientConfig{
		Addr: db.addr, Database: db.cfg.Database, Username: db.cfg.Username, Password: db.cfg.Password,
	})
	require.NoError(t, err)

	databaseName := "test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	adminConn, err := adminClient.Conn(t.Context())
	require.NoError(t, err)
	require.NoError(t, adminConn.Exec(t.Context(), fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", databaseName)))
	adminConn.Close()

	require.NoError(t, warehouse.RunMigrations(t.Context(), log, db.MigrationConfig(databaseName)))

	client, err := warehouse.NewClient(t.Context(), log, warehouse.ClientConfig{
		Addr: db.addr, Database: databaseName, Username: db.cfg.Username, Password: db.cfg.Password,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conn, err := adminClient.Conn(ctx)
		if err == nil {
			_ = conn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", databaseName))
			conn.Close()
		}
		client.Close()
		adminClient.Close()
	})

	return warehouse.NewSink(client, databaseName, log)
}
