package tle

import (
	"context"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"github.com/signalsfoundry/flightplan-orchestrator/timectrl"
)

// Defaults for Refresher.
const (
	DefaultInterval = 6 * time.Hour
	DefaultPause    = 2 * time.Second
)

// Refresh results, also used as metric labels.
const (
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
)

// Catalog is the satellite store the refresher updates. *kb.KnowledgeBase
// satisfies it.
type Catalog interface {
	GetSatellite(id string) (*model.Satellite, error)
	ListSatellites() []*model.Satellite
	UpdateSatelliteTLE(id, line1, line2 string, at time.Time) error
}

// Refresher periodically replaces the element sets of active satellites.
// A failed fetch keeps the cached elements.
type Refresher struct {
	catalog  Catalog
	source   Source
	interval time.Duration
	pause    time.Duration
	clock    timectrl.Clock
	log      logging.Logger
	metrics  *observability.OrchestratorCollector
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithInterval sets the time between refresh rounds.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithPause sets the delay between satellites within a round.
func WithPause(d time.Duration) Option {
	return func(r *Refresher) {
		if d >= 0 {
			r.pause = d
		}
	}
}

// WithClock sets the time recorded as the update time.
func WithClock(c timectrl.Clock) Option {
	return func(r *Refresher) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the refresher logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Refresher) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics counts refresh results.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(r *Refresher) { r.metrics = c }
}

// NewRefresher returns a Refresher.
func NewRefresher(catalog Catalog, source Source, opts ...Option) *Refresher {
	r := &Refresher{
		catalog:  catalog,
		source:   source,
		interval: DefaultInterval,
		pause:    DefaultPause,
		clock:    timectrl.System(),
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh fetches and stores the elements of one satellite and reports the
// result.
func (r *Refresher) Refresh(ctx context.Context, satelliteID string) (string, error) {
	sat, err := r.catalog.GetSatellite(satelliteID)
	if err != nil {
		return ResultFailed, err
	}
	set, err := r.source.Fetch(ctx, sat.NoradID)
	if err != nil {
		r.metrics.RecordTLERefresh(ResultFailed)
		return ResultFailed, err
	}
	if set.Line1 == sat.TLELine1 && set.Line2 == sat.TLELine2 {
		r.metrics.RecordTLERefresh(ResultUnchanged)
		return ResultUnchanged, nil
	}
	if err := r.catalog.UpdateSatelliteTLE(sat.ID, set.Line1, set.Line2, r.clock.Now()); err != nil {
		r.metrics.RecordTLERefresh(ResultFailed)
		return ResultFailed, err
	}
	r.metrics.RecordTLERefresh(ResultUpdated)
	return ResultUpdated, nil
}

// RefreshAll refreshes every active satellite, pausing between requests,
// and returns the count per result.
func (r *Refresher) RefreshAll(ctx context.Context) map[string]int {
	counts := map[string]int{}
	first := true
	for _, sat := range r.catalog.ListSatellites() {
		if sat.Status != model.SatelliteActive {
			continue
		}
		if !first && !r.sleep(ctx, r.pause) {
			break
		}
		first = false

		log := r.log.With(logging.SatelliteID(sat.ID), logging.String("name", sat.Name))
		result, err := r.Refresh(ctx, sat.ID)
		counts[result]++
		if err != nil {
			log.Warn(ctx, "failed to fetch new elements; using cached data", logging.Err(err))
			continue
		}
		log.Info(ctx, "element refresh finished", logging.String("result", result))
	}
	return counts
}

// Run refreshes immediately and then once per interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) error {
	r.log.Info(ctx, "element refresher started", logging.Duration("interval", r.interval))
	for {
		counts := r.RefreshAll(ctx)
		r.log.Info(ctx, "element refresh round complete",
			logging.Int("updated", counts[ResultUpdated]),
			logging.Int("unchanged", counts[ResultUnchanged]),
			logging.Int("failed", counts[ResultFailed]),
		)
		if !r.sleep(ctx, r.interval) {
			return nil
		}
	}
}

func (r *Refresher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
