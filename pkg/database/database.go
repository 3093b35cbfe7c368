package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/alimgiray/hookmetrics/pkg/config"
	"github.com/alimgiray/hookmetrics/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrationsFS embed.FS

// driverNames maps configured drivers to registered database/sql driver names
var driverNames = map[string]string{
	"postgres": "pgx",
	"sqlite3":  "sqlite3",
}

// Open opens the configured database, applies pool settings and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driverName, ok := driverNames[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.Driver == "postgres" {
		db.SetConnMaxLifetime(time.Hour)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite3" {
		if err := optimizeSQLite(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.WithField("driver", cfg.Driver).Info("Database connected")
	return db, nil
}

// optimizeSQLite configures SQLite for concurrent webhook writes
func optimizeSQLite(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate applies the embedded goose migrations for the given driver
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(logger.GetLogger())
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("migrate dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations/"+driver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	logger.WithField("version", version).Info("Database migrations applied")
	return nil
}
