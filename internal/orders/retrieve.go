package orders

import (
	"context"
	"strings"

	"github.com/medrex/supply/internal/reachability"
	"github.com/medrex/supply/pkg/types"
)

// Notices shown above a listing served from the local cache
const (
	NoticeAdminUnavailable = "Showing cached data because the admin API is unavailable."
	NoticeOffline          = "Showing cached data because the order service is offline."
)

// RetrieveResult is the outcome of Retrieve
type RetrieveResult struct {
	Record *types.Record `json:"order,omitempty"`
	Source types.Origin  `json:"source,omitempty"`
	// Found is false only for an empty identifier, which is a no-op
	Found bool `json:"found"`
}

// Listing is one administrative enumeration, taken from exactly one store
type Listing struct {
	Records []types.Record `json:"orders"`
	Source  types.Origin   `json:"source"`
	Notice  string         `json:"notice,omitempty"`
}

// Retrieve looks a record up by identifier. When online the remote store
// is asked first; a remote miss or failure falls back to the local cache.
// An identifier that is blank after trimming is a no-op.
func (s *Service) Retrieve(ctx context.Context, id string) (RetrieveResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return RetrieveResult{}, nil
	}

	if s.useRemote() {
		rec, err := s.remote.GetOrder(ctx, id)
		switch {
		case err == nil:
			s.metrics.RecordRetrieval(string(types.OriginRemote), true)
			return RetrieveResult{Record: rec, Source: types.OriginRemote, Found: true}, nil
		case types.IsType(err, types.ErrorTypeNotFound):
			// records created during an earlier offline session live only
			// in the local cache
		case reachability.ShouldDemote(err):
			s.monitor.ObserveFailure(err)
			s.logger.Fallback(ctx, "retrieve", id, err)
		default:
			return RetrieveResult{}, err
		}
	}

	rec, err := s.local.Find(ctx, id)
	if err != nil {
		s.metrics.RecordRetrieval(string(types.OriginLocal), false)
		if types.IsType(err, types.ErrorTypeNotFound) {
			return RetrieveResult{}, types.NewNotFoundError(types.ErrCodeOrderNotFound, "order not found: "+id)
		}
		return RetrieveResult{}, err
	}

	s.metrics.RecordRetrieval(string(types.OriginLocal), true)
	return RetrieveResult{Record: rec, Source: types.OriginLocal, Found: true}, nil
}

// ListAll enumerates records for administrators. The listing comes from
// the remote store when online, otherwise from the local cache with a
// notice saying why. Results from the two stores are never mixed.
func (s *Service) ListAll(ctx context.Context) (Listing, error) {
	notice := NoticeOffline

	if s.useRemote() {
		records, err := s.remote.ListOrders(ctx)
		switch {
		case err == nil:
			s.metrics.RecordListing(string(types.OriginRemote))
			return Listing{Records: records, Source: types.OriginRemote}, nil
		case types.IsType(err, types.ErrorTypeAccessRestricted):
			return Listing{}, err
		case reachability.ShouldDemote(err):
			s.monitor.ObserveFailure(err)
			s.logger.Fallback(ctx, "list", "", err)
			notice = NoticeAdminUnavailable
		default:
			return Listing{}, err
		}
	}

	records, err := s.local.List(ctx, s.listLimit)
	if err != nil {
		return Listing{}, err
	}
	s.metrics.RecordListing(string(types.OriginLocal))
	return Listing{Records: records, Source: types.OriginLocal, Notice: notice}, nil
}
