package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kwatanabe/amazon-order-scraper/internal/config"
)

type DB struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against the configured Postgres URL.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLife
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// EnsureSchema creates the order_items table when missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS order_items (
			product_id    TEXT NOT NULL DEFAULT '',
			name          TEXT NOT NULL,
			url           TEXT NOT NULL DEFAULT '',
			quantity      INTEGER NOT NULL DEFAULT 1,
			total_price   INTEGER NOT NULL DEFAULT 0,
			category      TEXT NOT NULL DEFAULT '',
			subcategory   TEXT NOT NULL DEFAULT '',
			seller        TEXT NOT NULL DEFAULT '',
			purchase_date DATE NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (product_id, name, purchase_date)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
