package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

var (
	// ErrSatelliteExists indicates a satellite with the same ID is stored.
	ErrSatelliteExists = errors.New("satellite already exists")
	// ErrSatelliteNotFound indicates the requested satellite is unknown.
	ErrSatelliteNotFound = errors.New("satellite not found")
	// ErrGroundStationExists indicates a ground station with the same ID is stored.
	ErrGroundStationExists = errors.New("ground station already exists")
	// ErrGroundStationNotFound indicates the requested ground station is unknown.
	ErrGroundStationNotFound = errors.New("ground station not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventSatelliteTLEUpdated EventType = iota
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type      EventType
	Satellite model.Satellite
}

// KnowledgeBase is an in-memory, thread-safe store for satellites and
// ground stations. Getters return copies.
type KnowledgeBase struct {
	mu sync.RWMutex

	satellites     map[string]*model.Satellite
	groundStations map[string]*model.GroundStation

	subs map[int]func(Event)
	next int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		satellites:     make(map[string]*model.Satellite),
		groundStations: make(map[string]*model.GroundStation),
		subs:           make(map[int]func(Event)),
	}
}

// AddSatellite stores a new satellite.
func (kb *KnowledgeBase) AddSatellite(s *model.Satellite) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("satellite ID is required")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.satellites[s.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSatelliteExists, s.ID)
	}
	cp := *s
	kb.satellites[s.ID] = &cp
	return nil
}

// GetSatellite returns a copy of the satellite with the given ID.
func (kb *KnowledgeBase) GetSatellite(id string) (*model.Satellite, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	s, ok := kb.satellites[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	cp := *s
	return &cp, nil
}

// ListSatellites returns a snapshot of all satellites ordered by ID.
func (kb *KnowledgeBase) ListSatellites() []*model.Satellite {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.Satellite, 0, len(kb.satellites))
	for _, s := range kb.satellites {
		cp := *s
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// UpdateSatelliteTLE replaces the element set of a satellite and notifies
// subscribers.
func (kb *KnowledgeBase) UpdateSatelliteTLE(id, line1, line2 string, at time.Time) error {
	kb.mu.Lock()
	s, ok := kb.satellites[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	s.TLELine1 = line1
	s.TLELine2 = line2
	s.TLEUpdatedAt = at
	s.UpdatedAt = at
	event := Event{
		Type:      EventSatelliteTLEUpdated,
		Satellite: *s,
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// AddGroundStation stores a new ground station.
func (kb *KnowledgeBase) AddGroundStation(gs *model.GroundStation) error {
	if gs == nil || gs.ID == "" {
		return fmt.Errorf("ground station ID is required")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.groundStations[gs.ID]; exists {
		return fmt.Errorf("%w: %q", ErrGroundStationExists, gs.ID)
	}
	cp := *gs
	kb.groundStations[gs.ID] = &cp
	return nil
}

// GetGroundStation returns a copy of the ground station with the given ID.
func (kb *KnowledgeBase) GetGroundStation(id string) (*model.GroundStation, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	gs, ok := kb.groundStations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGroundStationNotFound, id)
	}
	cp := *gs
	return &cp, nil
}

// ListGroundStations returns a snapshot of all ground stations ordered by ID.
func (kb *KnowledgeBase) ListGroundStations() []*model.GroundStation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.GroundStation, 0, len(kb.groundStations))
	for _, gs := range kb.groundStations {
		cp := *gs
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
