package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

// DefaultListLimit bounds GET /orders
const DefaultListLimit = 200

// Records is the persistence used by the store service
type Records interface {
	Insert(ctx context.Context, rec types.Record) error
	Get(ctx context.Context, id string) (*types.Record, error)
	List(ctx context.Context, limit int) ([]types.Record, error)
	Ping(ctx context.Context) error
}

// Service is the remote order store: the system of record that the
// supply service talks to while online
type Service struct {
	records   Records
	logger    *logger.Logger
	now       func() time.Time
	newID     func() string
	listLimit int
}

// NewService creates a new store service
func NewService(records Records, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		records:   records,
		logger:    log,
		now:       time.Now,
		newID:     func() string { return "R-" + uuid.New().String() },
		listLimit: DefaultListLimit,
	}
}

// Create assigns a server id to draft and stores it. The total of a
// commodity order is recomputed rather than trusted.
func (s *Service) Create(ctx context.Context, draft types.Draft) (*types.Record, error) {
	switch draft.Kind {
	case types.KindCommodity:
		if len(draft.Items) == 0 {
			return nil, types.NewValidationError(types.ErrCodeEmptyCart, "cart is empty", nil)
		}
	case types.KindBiologicalRequest:
	default:
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown record kind %q", draft.Kind), nil)
	}

	rec := draft.ToRecord(s.newID(), s.now())
	if err := s.records.Insert(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"order_id": rec.ID,
		"kind":     rec.Kind,
	}).Info("Order stored")
	return &rec, nil
}

// Get returns one record
func (s *Service) Get(ctx context.Context, id string) (*types.Record, error) {
	return s.records.Get(ctx, id)
}

// List returns the newest records
func (s *Service) List(ctx context.Context) ([]types.Record, error) {
	return s.records.List(ctx, s.listLimit)
}

// Healthy reports whether the backing database answers
func (s *Service) Healthy(ctx context.Context) error {
	return s.records.Ping(ctx)
}
