package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the orders table used by the order store service
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	for _, stmt := range []string{createOrdersTable, createOrdersIndexes} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// The record itself is kept as JSONB so the store never has to know more
// about a record than its id, kind and creation time.
const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id VARCHAR(64) PRIMARY KEY,
    kind VARCHAR(32) NOT NULL CHECK (kind IN ('commodity', 'biological-request')),
    status VARCHAR(32) NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const createOrdersIndexes = `
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_kind ON orders(kind);`
