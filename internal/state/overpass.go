package state

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// FindOrCreateOverpass returns the stored overpass matching o's window
// within tolerance, creating it when none exists. The lookup and insert run
// under one lock so concurrent calls never store duplicates.
func (s *Store) FindOrCreateOverpass(_ context.Context, o *model.Overpass, tolerance time.Duration) (*model.Overpass, bool, error) {
	if o == nil {
		return nil, false, fmt.Errorf("overpass is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findLocked(o.SatelliteID, o.GroundStationID, o.StartTime, o.EndTime, tolerance); existing != nil {
		return existing.Clone(), false, nil
	}
	cp := o.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.FlightPlanID = nil
	cp.CreatedAt = s.clock.Now()
	s.overpasses[cp.ID] = cp
	return cp.Clone(), true, nil
}

func (s *Store) findLocked(satelliteID, groundStationID string, start, end time.Time, tolerance time.Duration) *model.Overpass {
	var (
		best     *model.Overpass
		bestDiff time.Duration
	)
	for _, o := range s.overpasses {
		if o.SatelliteID != satelliteID || o.GroundStationID != groundStationID {
			continue
		}
		ds, de := absDuration(o.StartTime.Sub(start)), absDuration(o.EndTime.Sub(end))
		if ds > tolerance || de > tolerance {
			continue
		}
		if best == nil || ds+de < bestDiff || (ds+de == bestDiff && o.ID < best.ID) {
			best, bestDiff = o, ds+de
		}
	}
	return best
}

// ListOverpasses returns overpasses of the satellite and station that overlap
// [start, end], earliest first.
func (s *Store) ListOverpasses(_ context.Context, satelliteID, groundStationID string, start, end time.Time) ([]*model.Overpass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Overpass, 0)
	for _, o := range s.overpasses {
		if o.SatelliteID != satelliteID || o.GroundStationID != groundStationID {
			continue
		}
		if o.EndTime.Before(start) || o.StartTime.After(end) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// AssignOverpass links the overpass to the plan and applies fn to the plan in
// the same critical section. Nothing changes when either step fails.
func (s *Store) AssignOverpass(_ context.Context, overpassID, planID string, fn func(*model.FlightPlan) error) (*model.FlightPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overpasses[overpassID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOverpassNotFound, overpassID)
	}
	p, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, planID)
	}
	if o.FlightPlanID != nil && *o.FlightPlanID != planID {
		return nil, fmt.Errorf("%w: overpass %q is held by flight plan %q", ErrOverpassAlreadyLinked, overpassID, *o.FlightPlanID)
	}
	if existing, ok := s.overpassByPlan[planID]; ok && existing != overpassID {
		return nil, fmt.Errorf("%w: flight plan %q already holds overpass %q", ErrOverpassAlreadyLinked, planID, existing)
	}

	cp := p.Clone()
	if fn != nil {
		if err := fn(cp); err != nil {
			return nil, err
		}
		cp.ID = planID
		cp.UpdatedAt = s.clock.Now()
	}
	o.FlightPlanID = model.StringPtr(planID)
	s.overpassByPlan[planID] = overpassID
	s.plans[planID] = cp
	return cp.Clone(), nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ReleaseOverpass drops the link between the flight plan and its overpass so
// the pass can be booked again. It reports whether a link existed.
func (s *Store) ReleaseOverpass(_ context.Context, planID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.overpassByPlan[planID]
	if !ok {
		return false
	}
	delete(s.overpassByPlan, planID)
	if o, ok := s.overpasses[id]; ok {
		o.FlightPlanID = nil
	}
	return true
}
