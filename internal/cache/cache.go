package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

// Keys used on the medium
const (
	KeyLastOrderID = "medrex.lastOrderId"
	KeyLocalOrders = "medrex.localOrders"
)

// DefaultListLimit bounds List when no limit is given
const DefaultListLimit = 200

// Cache is the local durable store for records created while the remote
// order store is unreachable. It is append-only.
//
// Durability is best effort: a failed write is logged and the record is
// kept in memory for the rest of the process, and Append still succeeds.
// A corrupted medium reads as an empty collection. A medium that cannot be
// read at all is never written over; new records wait in memory instead.
type Cache struct {
	medium Medium
	logger *logger.Logger

	mu      sync.Mutex
	pending []types.Record
}

// New creates a cache over the given medium
func New(medium Medium, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{
		medium: medium,
		logger: log,
	}
}

// Append adds a record to the persisted collection
func (c *Cache) Append(ctx context.Context, record types.Record) error {
	if strings.TrimSpace(record.ID) == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "record id is required", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records, readable := c.loadLocked(ctx)
	if !readable {
		// writing now would replace the stored collection with a partial one
		c.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"component": "local_cache",
			"record_id": record.ID,
		}).Warn("Local cache unreadable, keeping record in memory")
		c.pending = append(c.pending, record)
		return nil
	}
	records = append(records, record)

	if err := c.storeLocked(ctx, records); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"component": "local_cache",
			"record_id": record.ID,
		}).Warn("Failed to persist record, keeping it in memory")
		c.pending = append(c.pending, record)
		return nil
	}

	c.pending = nil
	return nil
}

// Find returns the first record whose id matches
func (c *Cache) Find(ctx context.Context, id string) (*types.Record, error) {
	c.mu.Lock()
	records, _ := c.loadLocked(ctx)
	c.mu.Unlock()

	for i := range records {
		if records[i].ID == id {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, types.NewNotFoundError(types.ErrCodeOrderNotFound, "order not found in local cache: "+id)
}

// List returns records newest first, truncated to limit
func (c *Cache) List(ctx context.Context, limit int) ([]types.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	c.mu.Lock()
	records, _ := c.loadLocked(ctx)
	c.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Pending reports how many records are held in memory only because their
// write to the medium failed
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// LastSubmitted returns the last submitted identifier, or "" when none
func (c *Cache) LastSubmitted(ctx context.Context) string {
	id, err := c.medium.Get(ctx, KeyLastOrderID)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			c.logger.WithContext(ctx).WithError(err).Warn("Failed to read last submitted id")
		}
		return ""
	}
	return id
}

// SetLastSubmitted remembers id for pre-filling later lookups
func (c *Cache) SetLastSubmitted(ctx context.Context, id string) {
	if err := c.medium.Set(ctx, KeyLastOrderID, id); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to persist last submitted id")
	}
}

// loadLocked reads the persisted collection plus any records whose write
// failed. readable is false when the medium could not be read at all.
// Must be called with c.mu held.
func (c *Cache) loadLocked(ctx context.Context) (records []types.Record, readable bool) {
	records, readable = c.readPersisted(ctx)
	if len(c.pending) == 0 {
		return records, readable
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.ID] = struct{}{}
	}
	for _, r := range c.pending {
		if _, ok := seen[r.ID]; !ok {
			records = append(records, r)
		}
	}
	return records, readable
}

// readPersisted decodes the stored collection. A missing key or a
// corrupted value reads as empty and readable; a failed Get reads as empty
// but not readable.
func (c *Cache) readPersisted(ctx context.Context) ([]types.Record, bool) {
	raw, err := c.medium.Get(ctx, KeyLocalOrders)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return []types.Record{}, true
		}
		c.logger.WithContext(ctx).WithError(err).Warn("Local cache unreadable, treating as empty")
		return []types.Record{}, false
	}

	var records []types.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Local cache corrupted, treating as empty")
		return []types.Record{}, true
	}
	if records == nil {
		records = []types.Record{}
	}
	return records, true
}

func (c *Cache) storeLocked(ctx context.Context, records []types.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return types.NewStorageUnavailableError("failed to serialize local orders", err)
	}
	if err := c.medium.Set(ctx, KeyLocalOrders, string(data)); err != nil {
		return types.NewStorageUnavailableError("failed to write local orders", err)
	}
	return nil
}
