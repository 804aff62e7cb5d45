// Package database provides PostgreSQL connection pooling and migration utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only by golang-migrate
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps a pgx connection pool. The breadcrumb/edge tables are accessed
// through hand-written SQL rather than a generated client, so Client exposes
// the pool directly instead of typed per-table accessors.
type Client struct {
	pool *pgxpool.Pool
}

// Pool returns the underlying connection pool for queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases all connections held by the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// NewClientFromPool wraps an existing pool (useful for testing against testcontainers).
func NewClientFromPool(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// NewClient opens a pgx pool against cfg, registers pgvector's wire codec on
// every connection, and applies pending migrations before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := cfg.DSN()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	// Register pgvector's wire codec so `embedding` columns scan into/out of
	// pgvector.Vector values, same as glyphoxa's postgres store does.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(dsn, cfg.Database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{pool: pool}, nil
}

// runMigrations applies embedded SQL migrations through golang-migrate. This
// opens its own short-lived database/sql.DB over the pgx stdlib driver,
// independent of the pgxpool.Pool the application uses at runtime — the two
// libraries speak different connection-management protocols and golang-migrate
// only understands the former.
func runMigrations(dsn, database string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found — binary may be built incorrectly")
	}

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

// hasEmbeddedMigrations checks if the embedded FS contains any .sql migration files.
func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
