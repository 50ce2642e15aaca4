package orders

import (
	"context"
	"time"

	"github.com/medrex/supply/internal/reachability"
	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

// RemoteStore is the remote order-management service
type RemoteStore interface {
	CreateOrder(ctx context.Context, draft types.Draft) (string, *types.Record, error)
	GetOrder(ctx context.Context, id string) (*types.Record, error)
	ListOrders(ctx context.Context) ([]types.Record, error)
}

// LocalStore is the local durable cache
type LocalStore interface {
	Append(ctx context.Context, record types.Record) error
	Find(ctx context.Context, id string) (*types.Record, error)
	List(ctx context.Context, limit int) ([]types.Record, error)
	LastSubmitted(ctx context.Context) string
	SetLastSubmitted(ctx context.Context, id string)
}

// IDGenerator mints identifiers for locally created records
type IDGenerator interface {
	Generate(prefix string) string
}

// Metrics receives counters for the dual-store paths
type Metrics interface {
	RecordSubmission(outcome, origin string)
	RecordRetrieval(source string, found bool)
	RecordListing(source string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(string, string) {}
func (noopMetrics) RecordRetrieval(string, bool) {}
func (noopMetrics) RecordListing(string) {}

// Service submits and retrieves orders and blood requests against the
// remote order store, falling back to the local cache when the remote is
// unreachable. A record is created in exactly one of the two stores and
// never moved between them.
type Service struct {
	remote    RemoteStore
	local     LocalStore
	monitor   *reachability.Monitor
	ids       IDGenerator
	logger    *logger.Logger
	metrics   Metrics
	now       func() time.Time
	listLimit int
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.logger = log }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for createdAt
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithListLimit bounds cache listings
func WithListLimit(limit int) Option {
	return func(s *Service) { s.listLimit = limit }
}

// NewService wires the core. remote may be nil, in which case every
// operation is served by the local cache.
func NewService(remote RemoteStore, local LocalStore, monitor *reachability.Monitor, ids IDGenerator, opts ...Option) *Service {
	s := &Service{
		remote:    remote,
		local:     local,
		monitor:   monitor,
		ids:       ids,
		metrics:   noopMetrics{},
		now:       time.Now,
		listLimit: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	return s
}

// CurrentMode reports the remote store mode for banner rendering
func (s *Service) CurrentMode() reachability.Mode {
	return s.monitor.Mode()
}

// Banner returns the offline banner text, empty while online
func (s *Service) Banner() string {
	return s.monitor.Banner()
}

// LastSubmitted returns the identifier of the last submission from this
// installation, whichever store holds it
func (s *Service) LastSubmitted(ctx context.Context) string {
	return s.local.LastSubmitted(ctx)
}

func (s *Service) useRemote() bool {
	return s.remote != nil && s.monitor.Online()
}
