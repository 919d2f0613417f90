package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kwatanabe/amazon-order-scraper/internal/models"
)

const upsertItemSQL = `
	INSERT INTO order_items (
		product_id, name, url, quantity, total_price,
		category, subcategory, seller, purchase_date, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	ON CONFLICT (product_id, name, purchase_date) DO UPDATE SET
		url = EXCLUDED.url,
		quantity = EXCLUDED.quantity,
		total_price = EXCLUDED.total_price,
		category = EXCLUDED.category,
		subcategory = EXCLUDED.subcategory,
		seller = EXCLUDED.seller,
		updated_at = now()`

// SaveItems upserts the harvested items in one transaction. Re-running
// a harvest must not duplicate rows, hence the conflict target on the
// natural key.
func (db *DB) SaveItems(ctx context.Context, items []models.LineItem) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(upsertItemSQL,
			item.ProductID, item.Name, item.URL, item.Quantity, item.TotalPrice,
			item.Category, item.Subcategory, item.Seller, item.PurchaseDate.Time,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to upsert item: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// Sink adapts DB to the storage.Sink interface.
type Sink struct {
	db  *DB
	ctx context.Context
}

func NewSink(ctx context.Context, db *DB) *Sink {
	return &Sink{db: db, ctx: ctx}
}

func (s *Sink) Write(items []models.LineItem) error {
	return s.db.SaveItems(s.ctx, items)
}

func (s *Sink) Close() error {
	s.db.Close()
	return nil
}
