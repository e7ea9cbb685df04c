// Package imaging finds the instant at which a satellite's nadir-pointed
// camera is closest to looking straight down at a ground target.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/core"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/compute"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNoOrbitalElements means the satellite cannot be propagated.
	ErrNoOrbitalElements = errors.New("imaging computation impossible: satellite has no orbital elements")
	// ErrInvalidSearch indicates a malformed search window.
	ErrInvalidSearch = errors.New("invalid imaging search")
)

// Config sets the step of each search phase and the number of coarse
// candidates carried into refinement.
type Config struct {
	CoarseStep time.Duration
	RefineStep time.Duration
	FinalStep  time.Duration
	Candidates int
}

// DefaultConfig returns 120 s, 2 s and 0.1 s steps with five candidates.
func DefaultConfig() Config {
	return Config{
		CoarseStep: 120 * time.Second,
		RefineStep: 2 * time.Second,
		FinalStep:  100 * time.Millisecond,
		Candidates: 5,
	}
}

// Sample is one evaluated instant.
type Sample struct {
	Time        time.Time
	OffNadirDeg float64
	Visible     bool
}

// Opportunity is the best imaging instant found.
type Opportunity struct {
	ImagingTime         time.Time `json:"imagingTime"`
	OffNadirDeg         float64   `json:"offNadirDegrees"`
	GroundDistanceKm    float64   `json:"groundDistanceKm"`
	SlantRangeKm        float64   `json:"slantRangeKm"`
	SatelliteLatitude   float64   `json:"satelliteLatitude"`
	SatelliteLongitude  float64   `json:"satelliteLongitude"`
	SatelliteAltitudeKm float64   `json:"satelliteAltitudeKm"`
}

// Result is the outcome of a search. Best is nil when the target was never
// visible. Coarse holds every coarse-phase sample in time order.
type Result struct {
	Best   *Opportunity
	Coarse []Sample
}

// Optimizer runs the three-phase off-nadir minimisation.
type Optimizer struct {
	cfg     Config
	pool    *compute.Pool
	metrics *observability.OrchestratorCollector
	log     logging.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithConfig overrides the search steps. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Optimizer) {
		if cfg.CoarseStep > 0 {
			o.cfg.CoarseStep = cfg.CoarseStep
		}
		if cfg.RefineStep > 0 {
			o.cfg.RefineStep = cfg.RefineStep
		}
		if cfg.FinalStep > 0 {
			o.cfg.FinalStep = cfg.FinalStep
		}
		if cfg.Candidates > 0 {
			o.cfg.Candidates = cfg.Candidates
		}
	}
}

// WithPool runs searches on the given compute pool.
func WithPool(p *compute.Pool) Option {
	return func(o *Optimizer) { o.pool = p }
}

// WithMetrics records search durations.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(o *Optimizer) { o.metrics = c }
}

// WithLogger sets the optimizer logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.log = l
		}
	}
}

// NewOptimizer returns an optimizer with DefaultConfig unless overridden.
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{cfg: DefaultConfig(), log: logging.Noop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FindBestOpportunity returns the lowest off-nadir instant within
// [start, start+maxDuration], or nil when the target is never visible. No
// off-nadir limit is applied; see Advise.
func (o *Optimizer) FindBestOpportunity(ctx context.Context, sat *model.Satellite, target model.Geodetic, start time.Time, maxDuration time.Duration) (*Opportunity, error) {
	res, err := o.Search(ctx, sat, target, start, maxDuration)
	if err != nil {
		return nil, err
	}
	return res.Best, nil
}

// Search runs the optimizer and also returns the coarse-phase trace.
func (o *Optimizer) Search(ctx context.Context, sat *model.Satellite, target model.Geodetic, start time.Time, maxDuration time.Duration) (res *Result, err error) {
	satID := ""
	if sat != nil {
		satID = sat.ID
	}
	ctx, span := observability.StartSpan(ctx, "imaging.Search", "satellite", satID,
		attribute.Float64("target_latitude", target.Latitude),
		attribute.Float64("target_longitude", target.Longitude),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !sat.HasTLE() {
		return nil, fmt.Errorf("%w: %q", ErrNoOrbitalElements, satID)
	}
	if maxDuration <= 0 {
		return nil, fmt.Errorf("%w: search duration must be positive", ErrInvalidSearch)
	}
	prop, err := core.NewPropagator(sat.TLELine1, sat.TLELine2)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrNoOrbitalElements, satID, err)
	}

	began := time.Now()
	res, err = compute.Run(ctx, o.pool, func(ctx context.Context) (*Result, error) {
		s := &search{
			cfg:      o.cfg,
			prop:     prop,
			target:   core.GeodeticToECEF(target),
			observer: core.NewObserver(target),
			geo:      target,
			start:    start.UTC(),
			end:      start.UTC().Add(maxDuration),
		}
		return s.run(ctx)
	})
	o.metrics.ObserveImagingSearch(time.Since(began))
	if err != nil {
		return nil, err
	}

	if res.Best != nil {
		span.SetAttributes(attribute.Float64("off_nadir_deg", res.Best.OffNadirDeg))
		o.log.Debug(ctx, "imaging opportunity found",
			logging.SatelliteID(satID),
			logging.Time("imaging_time", res.Best.ImagingTime),
			logging.Float64("off_nadir_deg", res.Best.OffNadirDeg),
		)
	}
	return res, nil
}

type search struct {
	cfg      Config
	prop     *core.Propagator
	target   core.Vec3
	observer core.Observer
	geo      model.Geodetic
	start    time.Time
	end      time.Time
}

func (s *search) run(ctx context.Context) (*Result, error) {
	res := &Result{}
	var candidates []Sample

	for t := s.start; !t.After(s.end); t = t.Add(s.cfg.CoarseStep) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample, err := s.sample(t)
		if err != nil {
			return nil, err
		}
		res.Coarse = append(res.Coarse, sample)
		if sample.Visible {
			candidates = keepBest(candidates, sample, s.cfg.Candidates)
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	var best *Sample
	for _, c := range candidates {
		refined, err := s.minimise(ctx, c, s.cfg.CoarseStep, s.cfg.RefineStep)
		if err != nil {
			return nil, err
		}
		final, err := s.minimise(ctx, refined, s.cfg.RefineStep, s.cfg.FinalStep)
		if err != nil {
			return nil, err
		}
		if best == nil || final.OffNadirDeg < best.OffNadirDeg {
			f := final
			best = &f
		}
	}

	opp, err := s.opportunity(best.Time)
	if err != nil {
		return nil, err
	}
	res.Best = opp
	return res, nil
}

// minimise scans ±span around centre at step and returns the lowest visible
// sample. centre itself is always a candidate.
func (s *search) minimise(ctx context.Context, centre Sample, span, step time.Duration) (Sample, error) {
	best := centre
	from := centre.Time.Add(-span)
	if from.Before(s.start) {
		from = s.start
	}
	to := centre.Time.Add(span)
	if to.After(s.end) {
		to = s.end
	}
	for t := from; !t.After(to); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}
		sample, err := s.sample(t)
		if err != nil {
			return Sample{}, err
		}
		if sample.Visible && sample.OffNadirDeg < best.OffNadirDeg {
			best = sample
		}
	}
	return best, nil
}

func (s *search) sample(t time.Time) (Sample, error) {
	state, err := s.prop.At(t)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Time:        t,
		OffNadirDeg: core.OffNadirDegrees(state.ECEF, s.target),
		Visible:     s.observer.Look(state.ECEF).ElevationDeg > 0,
	}, nil
}

func (s *search) opportunity(t time.Time) (*Opportunity, error) {
	state, err := s.prop.At(t)
	if err != nil {
		return nil, err
	}
	sub := core.ECEFToGeodetic(state.ECEF)
	return &Opportunity{
		ImagingTime:         t,
		OffNadirDeg:         core.OffNadirDegrees(state.ECEF, s.target),
		GroundDistanceKm:    core.GroundDistanceKm(sub, s.geo),
		SlantRangeKm:        state.ECEF.DistanceTo(s.target),
		SatelliteLatitude:   sub.Latitude,
		SatelliteLongitude:  sub.Longitude,
		SatelliteAltitudeKm: sub.Altitude / 1000.0,
	}, nil
}

// keepBest adds sample to the set, replacing the current worst once the set
// holds limit entries. The set stays sorted by off-nadir angle.
func keepBest(set []Sample, sample Sample, limit int) []Sample {
	if len(set) < limit {
		set = append(set, sample)
	} else if sample.OffNadirDeg < set[len(set)-1].OffNadirDeg {
		set[len(set)-1] = sample
	} else {
		return set
	}
	sort.SliceStable(set, func(i, j int) bool { return set[i].OffNadirDeg < set[j].OffNadirDeg })
	return set
}
