package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medrex/supply/pkg/database"
	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

// Instrumenter wraps a database call with tracing and metrics
type Instrumenter interface {
	DatabaseMiddleware(operation, table string) func(context.Context, func(context.Context) error) error
}

// Repository persists records in the orders table
type Repository struct {
	db     *database.DB
	logger *logger.Logger
	instr  Instrumenter
}

// NewRepository creates a new order repository. instr may be nil.
func NewRepository(db *database.DB, log *logger.Logger, instr Instrumenter) *Repository {
	if log == nil {
		log = logger.Discard()
	}
	return &Repository{db: db, logger: log, instr: instr}
}

// Insert stores a new record
func (r *Repository) Insert(ctx context.Context, rec types.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	createdAt, err := time.Parse(types.CreatedAtLayout, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("invalid createdAt %q: %w", rec.CreatedAt, err)
	}

	query := `
		INSERT INTO orders (id, kind, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	start := time.Now()
	return r.run(ctx, "insert", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, query, rec.ID, string(rec.Kind), rec.Status, payload, createdAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		rows, _ := res.RowsAffected()
		r.logger.DatabaseOperation(ctx, "insert", "orders", time.Since(start).Milliseconds(), rows, true, map[string]interface{}{"order_id": rec.ID})
		return nil
	})
}

// Get loads one record by id
func (r *Repository) Get(ctx context.Context, id string) (*types.Record, error) {
	query := `SELECT payload FROM orders WHERE id = $1`

	var rec types.Record
	err := r.run(ctx, "select", func(ctx context.Context) error {
		var payload []byte
		if err := r.db.QueryRowContext(ctx, query, id).Scan(&payload); err != nil {
			return err
		}
		return json.Unmarshal(payload, &rec)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFoundError(types.ErrCodeOrderNotFound, "order not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &rec, nil
}

// List returns the newest records first, at most limit of them
func (r *Repository) List(ctx context.Context, limit int) ([]types.Record, error) {
	query := `SELECT payload FROM orders ORDER BY created_at DESC LIMIT $1`

	records := make([]types.Record, 0)
	err := r.run(ctx, "select", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			var rec types.Record
			if err := json.Unmarshal(payload, &rec); err != nil {
				r.logger.WithError(err).Warn("Skipping unreadable order row")
				continue
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return records, nil
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Health(ctx)
}

func (r *Repository) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	if r.instr == nil {
		return fn(ctx)
	}
	return r.instr.DatabaseMiddleware(operation, "orders")(ctx, fn)
}
