// Package postgres implements the Cursor Store and Sink against
// PostgreSQL via pgx's database/sql driver, with schema migrations driven
// by goose.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/lib/pq"              // registers the "postgres" database/sql driver; Migrate does not open it
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds Postgres connection settings.
type Config struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DB wraps the connection pool used by both the Cursor Store and Sink.
type DB struct {
	*sqlx.DB
}

// NewDB opens a pgx-backed connection pool and verifies connectivity.
func NewDB(cfg Config) (*DB, error) {
	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns == 0 {
		maxConns = 25
	}
	minConns := cfg.MinConns
	if minConns == 0 {
		minConns = 5
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(minConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlx.NewDb(sqlDB, "pgx")}, nil
}

// Migrate runs every pending migration under migrations/ over the same
// pgx-backed *sql.DB the pool uses, with goose's "postgres" dialect.
func (db *DB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Health pings the pool.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
