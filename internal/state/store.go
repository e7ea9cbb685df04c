// Package state is the in-memory persistence layer for flight plans and
// overpasses. It implements the queries the flight plan service and the
// scheduler depend on and enforces one flight plan per overpass.
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"github.com/signalsfoundry/flightplan-orchestrator/timectrl"
)

var (
	// ErrFlightPlanNotFound indicates a requested flight plan was not found.
	ErrFlightPlanNotFound = errors.New("flight plan not found")
	// ErrFlightPlanExists indicates a flight plan id is already taken.
	ErrFlightPlanExists = errors.New("flight plan already exists")
	// ErrOverpassNotFound indicates a requested overpass was not found.
	ErrOverpassNotFound = errors.New("overpass not found")
	// ErrOverpassAlreadyLinked indicates the overpass or the flight plan is
	// already part of another link.
	ErrOverpassAlreadyLinked = errors.New("overpass already linked to a flight plan")
)

// Store holds flight plans and overpasses. Values are copied on the way in
// and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	plans      map[string]*model.FlightPlan
	overpasses map[string]*model.Overpass
	// overpassByPlan indexes the unique flight plan link.
	overpassByPlan map[string]string

	clock timectrl.Clock
}

// Option customises Store construction.
type Option func(*Store)

// WithClock sets the clock used for created/updated timestamps.
func WithClock(c timectrl.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		plans:          make(map[string]*model.FlightPlan),
		overpasses:     make(map[string]*model.Overpass),
		overpassByPlan: make(map[string]string),
		clock:          timectrl.System(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePlan stores a new flight plan, assigning an id when empty, and
// returns the stored copy.
func (s *Store) CreatePlan(_ context.Context, p *model.FlightPlan) (*model.FlightPlan, error) {
	if p == nil {
		return nil, fmt.Errorf("flight plan is nil")
	}
	cp := p.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := s.clock.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[cp.ID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrFlightPlanExists, cp.ID)
	}
	s.plans[cp.ID] = cp
	return cp.Clone(), nil
}

// GetPlan returns a copy of the flight plan.
func (s *Store) GetPlan(_ context.Context, id string) (*model.FlightPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, id)
	}
	return p.Clone(), nil
}

// UpdatePlan applies fn to the stored plan under the write lock. The change
// is discarded when fn returns an error.
func (s *Store) UpdatePlan(_ context.Context, id string, fn func(*model.FlightPlan) error) (*model.FlightPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, id)
	}
	cp := p.Clone()
	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.ID = id
	cp.UpdatedAt = s.clock.Now()
	s.plans[id] = cp
	return cp.Clone(), nil
}

// ReplacePlan applies fn to the stored plan id and inserts next, assigning
// it an id when empty, under one write lock. Neither change is kept when fn
// fails or next cannot be inserted.
func (s *Store) ReplacePlan(_ context.Context, id string, fn func(*model.FlightPlan) error, next *model.FlightPlan) (*model.FlightPlan, *model.FlightPlan, error) {
	if next == nil {
		return nil, nil, fmt.Errorf("flight plan is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, id)
	}
	old := p.Clone()
	if err := fn(old); err != nil {
		return nil, nil, err
	}
	created := next.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if _, exists := s.plans[created.ID]; exists || created.ID == id {
		return nil, nil, fmt.Errorf("%w: %q", ErrFlightPlanExists, created.ID)
	}

	now := s.clock.Now()
	old.ID = id
	old.UpdatedAt = now
	created.CreatedAt = now
	created.UpdatedAt = now
	s.plans[id] = old
	s.plans[created.ID] = created
	return old.Clone(), created.Clone(), nil
}

// ListPlans returns every flight plan ordered by creation time.
func (s *Store) ListPlans(_ context.Context) []*model.FlightPlan {
	return s.selectPlans(func(*model.FlightPlan) bool { return true })
}

// PlansDueBefore lists plans assigned to an overpass whose scheduled time is
// at or before t, earliest first.
func (s *Store) PlansDueBefore(_ context.Context, t time.Time) []*model.FlightPlan {
	plans := s.selectPlans(func(p *model.FlightPlan) bool {
		return p.Status == model.StatusAssignedToOverpass && p.ScheduledAt != nil && !p.ScheduledAt.After(t)
	})
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].ScheduledAt.Before(*plans[j].ScheduledAt)
	})
	return plans
}

// ActivePlansForSatellite lists Approved and AssignedToOverpass plans of the
// satellite.
func (s *Store) ActivePlansForSatellite(_ context.Context, satelliteID string) []*model.FlightPlan {
	return s.selectPlans(func(p *model.FlightPlan) bool {
		return p.SatelliteID == satelliteID && p.Status.Active()
	})
}

func (s *Store) selectPlans(keep func(*model.FlightPlan) bool) []*model.FlightPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.FlightPlan, 0, len(s.plans))
	for _, p := range s.plans {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
