package warehouse

import (
	"context"
	"crypto/tls"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrationConfig describes how to reach the warehouse for schema
// bootstrap, separate from ClientConfig since migrations run over
// database/sql rather than the native driver.
type MigrationConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

type slogGooseLogger struct{ log *slog.Logger }

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations applies every pending fixture migration, used by tests and
// by a first-run CLI invocation to bootstrap the dim/fact/staging schema.
func RunMigrations(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	db, err := newSQLDB(cfg)
	if err != nil {
		return fmt.Errorf("warehouse: migration connection: %w", err)
	}
	defer db.Close()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("warehouse: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("warehouse: run migrations: %w", err)
	}
	log.Info("warehouse migrations applied")
	return nil
}

// MigrationStatus reports the applied/pending state of every migration.
func MigrationStatus(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	db, err := newSQLDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, migrationsDir)
}

func newSQLDB(cfg MigrationConfig) (*sql.DB, error) {
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}
	return clickhouse.OpenDB(options), nil
}
