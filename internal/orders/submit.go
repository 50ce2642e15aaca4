package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/medrex/supply/internal/idgen"
	"github.com/medrex/supply/pkg/types"
)

// Outcome tags which path a submission took
type Outcome string

const (
	// OutcomeRemote: the remote store accepted the record
	OutcomeRemote Outcome = "remote"
	// OutcomeLocalFallback: the remote call failed and the record was
	// created in the local cache instead
	OutcomeLocalFallback Outcome = "local_fallback"
	// OutcomeLocalOnly: the monitor was already offline
	OutcomeLocalOnly Outcome = "local_only"
	// OutcomeBothFailed: neither store could take the record
	OutcomeBothFailed Outcome = "both_failed"
)

// SubmitResult is the tagged result of Submit
type SubmitResult struct {
	ID      string       `json:"id"`
	Origin  types.Origin `json:"origin"`
	Outcome Outcome      `json:"outcome"`
	// Record is the stored record when known. The remote store may return
	// only an id, in which case this is nil for remote submissions.
	Record *types.Record `json:"order,omitempty"`
	// RemoteErr is the remote failure that caused a fallback, if any. It is
	// for logging only and never shown to the end user.
	RemoteErr error `json:"-"`
}

// Submit stores a commodity order or blood request and returns its
// identifier. When online it tries the remote store first; any remote
// failure demotes the monitor and the record is created locally instead.
func (s *Service) Submit(ctx context.Context, draft types.Draft) (SubmitResult, error) {
	if err := checkDraft(draft); err != nil {
		return SubmitResult{}, err
	}
	draft = draft.Normalize()

	var remoteErr error
	if s.useRemote() {
		id, rec, err := s.remote.CreateOrder(ctx, draft)
		if err == nil {
			s.local.SetLastSubmitted(ctx, id)
			s.metrics.RecordSubmission(string(OutcomeRemote), string(types.OriginRemote))
			s.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"order_id": id,
				"kind":     draft.Kind,
			}).Info("Order submitted to remote store")
			return SubmitResult{ID: id, Origin: types.OriginRemote, Outcome: OutcomeRemote, Record: rec}, nil
		}

		remoteErr = err
		// a rejected create demotes as well, unlike a rejected lookup;
		// only a canceled caller leaves the mode alone
		if !s.monitor.ObserveFailure(err) && !errors.Is(err, context.Canceled) {
			s.monitor.Demote("order submission failed: " + err.Error())
		}
	}

	rec, localErr := s.createLocal(ctx, draft)
	if localErr != nil {
		s.metrics.RecordSubmission(string(OutcomeBothFailed), string(types.OriginLocal))
		s.logger.WithContext(ctx).WithError(localErr).Error("Local fallback failed")
		if remoteErr != nil {
			return SubmitResult{Outcome: OutcomeBothFailed, RemoteErr: remoteErr}, &types.OrderError{
				Type:    types.ErrorTypeStorageUnavailable,
				Code:    types.ErrCodeSubmissionFailed,
				Message: remoteErr.Error(),
				Details: map[string]interface{}{"local_error": localErr.Error()},
				Cause:   remoteErr,
			}
		}
		return SubmitResult{Outcome: OutcomeBothFailed}, fmt.Errorf("failed to store order locally: %w", localErr)
	}

	s.local.SetLastSubmitted(ctx, rec.ID)

	outcome := OutcomeLocalOnly
	if remoteErr != nil {
		outcome = OutcomeLocalFallback
		s.logger.Fallback(ctx, "submit", rec.ID, remoteErr)
	}
	s.metrics.RecordSubmission(string(outcome), string(types.OriginLocal))

	return SubmitResult{
		ID:        rec.ID,
		Origin:    types.OriginLocal,
		Outcome:   outcome,
		Record:    rec,
		RemoteErr: remoteErr,
	}, nil
}

func (s *Service) createLocal(ctx context.Context, draft types.Draft) (*types.Record, error) {
	prefix := idgen.PrefixCommodity
	if draft.Kind == types.KindBiologicalRequest {
		prefix = idgen.PrefixBlood
	}

	rec := draft.ToRecord(s.ids.Generate(prefix), s.now())
	if err := s.local.Append(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// checkDraft mirrors the only rules the core enforces itself: a known kind
// and a non-empty cart for commodity orders. Field-level validation belongs
// to the caller.
func checkDraft(draft types.Draft) error {
	switch draft.Kind {
	case types.KindCommodity:
		if len(draft.Items) == 0 {
			return types.NewValidationError(types.ErrCodeEmptyCart, "cart is empty", nil)
		}
	case types.KindBiologicalRequest:
	default:
		return types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown record kind %q", draft.Kind), nil)
	}
	return nil
}
