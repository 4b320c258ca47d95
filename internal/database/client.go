// Package database owns the Postgres connection pool and schema migrations
// shared by internal/store and internal/config's Active Config persistence.
// It deliberately has no ORM/codegen dependency: every query in this
// repository is hand-written SQL over database/sql, using jackc/pgx/v5 only
// as the driver.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/deckpipe/deckpipe/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps a *sql.DB configured for this repository's Postgres usage.
type Client struct {
	db *sql.DB
}

// DB returns the underlying connection pool for packages that run their own
// hand-written queries (internal/store, internal/config).
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Health pings the database, returning a non-nil error if it's unreachable.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// NewClient opens a connection pool per cfg, verifies connectivity, and
// applies pending migrations before returning.
func NewClient(ctx context.Context, cfg config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("pgx", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("database: opening connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: migrating: %w", err)
	}

	slog.Info("database connected", "host", cfg.Host, "database", cfg.Database)
	return &Client{db: db}, nil
}

// runMigrations applies every pending embedded SQL migration. It uses a
// separate *sql.DB-derived migrate instance but never closes the shared
// *sql.DB itself — migrate.Close() would close the driver's underlying
// connection, which here is the pool this Client hands out to callers.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("constructing migrator: %w", err)
	}
	// Intentionally not calling m.Close(): it would close the *sql.DB driver
	// underneath it, which is the same pool this Client continues to serve
	// queries from. Only the source (an in-memory FS, nothing to release)
	// needs no explicit close.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
