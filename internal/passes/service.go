package passes

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// MatchTolerance is how far apart the start and end of a predicted window and
// a stored overpass may be for them to describe the same physical pass.
const MatchTolerance = 10 * time.Minute

// OverpassLister lists stored overpasses overlapping a time range.
type OverpassLister interface {
	ListOverpasses(ctx context.Context, satelliteID, groundStationID string, start, end time.Time) ([]*model.Overpass, error)
}

// Service combines predictions with previously stored overpasses.
type Service struct {
	predictor *Predictor
	store     OverpassLister
}

// NewService returns a Service. A nil store yields predictions only.
func NewService(predictor *Predictor, store OverpassLister) *Service {
	return &Service{predictor: predictor, store: store}
}

// ListWithStored predicts windows for req and replaces every prediction that
// matches a stored overpass with the stored record, so callers see the
// linked flight plan. Stored overpasses without a matching prediction are
// included as well.
func (s *Service) ListWithStored(ctx context.Context, req Request) ([]Window, error) {
	predicted, err := s.predictor.ComputeOverpasses(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return predicted, nil
	}
	stored, err := s.store.ListOverpasses(ctx, req.SatelliteID, req.GroundStationID, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("list stored overpasses: %w", err)
	}
	merged := Merge(predicted, stored, MatchTolerance)
	if req.MaxResults > 0 && len(merged) > req.MaxResults {
		merged = merged[:req.MaxResults]
	}
	return merged, nil
}

// Merge folds stored overpasses into predicted windows. The result is
// ordered by start time.
func Merge(predicted []Window, stored []*model.Overpass, tolerance time.Duration) []Window {
	used := make([]bool, len(stored))
	out := make([]Window, 0, len(predicted)+len(stored))

	for _, w := range predicted {
		match := -1
		for i, o := range stored {
			if used[i] || o == nil {
				continue
			}
			if Matches(w.StartTime, w.EndTime, o, tolerance) {
				match = i
				break
			}
		}
		if match < 0 {
			out = append(out, w)
			continue
		}
		used[match] = true
		out = append(out, FromOverpass(stored[match]))
	}
	for i, o := range stored {
		if !used[i] && o != nil {
			out = append(out, FromOverpass(o))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Matches reports whether o describes the window [start, end] within
// tolerance at both ends.
func Matches(start, end time.Time, o *model.Overpass, tolerance time.Duration) bool {
	return absDuration(o.StartTime.Sub(start)) <= tolerance && absDuration(o.EndTime.Sub(end)) <= tolerance
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
