package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		asin TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		manufacturer TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS product_departments (
		asin TEXT NOT NULL REFERENCES products(asin) ON DELETE CASCADE,
		position INT NOT NULL,
		name TEXT NOT NULL,
		node BIGINT NOT NULL,
		PRIMARY KEY (asin, position)
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		id UUID PRIMARY KEY,
		fetch_id UUID NOT NULL,
		asin TEXT NOT NULL,
		position INT NOT NULL,
		condition TEXT NOT NULL,
		condition_description TEXT,
		price_cents BIGINT NOT NULL,
		ships_from TEXT NOT NULL,
		sold_by TEXT NOT NULL,
		seller_page TEXT,
		fetched_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_asin ON offers(asin)`,
}

// EnsureSchema creates the tables this service writes to if they do not
// exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
