// Package passes predicts visibility windows between a satellite and a ground
// station by stepping an SGP4 propagation at fixed intervals.
package passes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/core"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/compute"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/kb"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"go.opentelemetry.io/otel/attribute"
)

// Step is the sampling interval of the predictor.
const Step = time.Minute

var (
	// ErrSatelliteNotFound and ErrGroundStationNotFound are input errors.
	ErrSatelliteNotFound     = kb.ErrSatelliteNotFound
	ErrGroundStationNotFound = kb.ErrGroundStationNotFound
	// ErrNoOrbitalElements means the satellite exists but cannot be
	// propagated.
	ErrNoOrbitalElements = errors.New("overpass computation impossible: satellite has no orbital elements")
	// ErrInvalidRequest indicates a malformed time range or threshold.
	ErrInvalidRequest = errors.New("invalid overpass request")
)

// Request selects the satellite, station, range and filters of a prediction.
type Request struct {
	SatelliteID     string
	GroundStationID string
	Start           time.Time
	End             time.Time
	MinElevationDeg float64
	// MaxResults stops the search after that many accepted windows. Zero
	// means unlimited.
	MaxResults int
	// MinDurationSeconds discards shorter windows. Zero disables the filter.
	MinDurationSeconds float64
}

// Window is a fully bounded visibility interval. It carries the element set
// it was computed from.
type Window struct {
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	MaxElevationTime time.Time `json:"maxElevationTime"`
	MaxElevationDeg  float64   `json:"maxElevation"`
	DurationSeconds  float64   `json:"durationSeconds"`
	StartAzimuthDeg  float64   `json:"startAzimuth"`
	EndAzimuthDeg    float64   `json:"endAzimuth"`
	TLELine1         string    `json:"tleLine1,omitempty"`
	TLELine2         string    `json:"tleLine2,omitempty"`
	TLEUpdatedAt     time.Time `json:"tleUpdatedAt"`

	// Set when the window corresponds to a stored overpass.
	OverpassID   string  `json:"overpassId,omitempty"`
	FlightPlanID *string `json:"flightPlanId,omitempty"`
}

// Overpass converts the window into a storable overpass record.
func (w Window) Overpass(satelliteID, groundStationID string) *model.Overpass {
	return &model.Overpass{
		SatelliteID:      satelliteID,
		GroundStationID:  groundStationID,
		StartTime:        w.StartTime,
		EndTime:          w.EndTime,
		MaxElevationTime: w.MaxElevationTime,
		MaxElevationDeg:  w.MaxElevationDeg,
		DurationSeconds:  w.DurationSeconds,
		StartAzimuthDeg:  w.StartAzimuthDeg,
		EndAzimuthDeg:    w.EndAzimuthDeg,
		TLELine1:         w.TLELine1,
		TLELine2:         w.TLELine2,
		TLEUpdatedAt:     w.TLEUpdatedAt,
	}
}

// FromOverpass converts a stored overpass back into a window.
func FromOverpass(o *model.Overpass) Window {
	return Window{
		StartTime:        o.StartTime,
		EndTime:          o.EndTime,
		MaxElevationTime: o.MaxElevationTime,
		MaxElevationDeg:  o.MaxElevationDeg,
		DurationSeconds:  o.DurationSeconds,
		StartAzimuthDeg:  o.StartAzimuthDeg,
		EndAzimuthDeg:    o.EndAzimuthDeg,
		TLELine1:         o.TLELine1,
		TLELine2:         o.TLELine2,
		TLEUpdatedAt:     o.TLEUpdatedAt,
		OverpassID:       o.ID,
		FlightPlanID:     o.FlightPlanID,
	}
}

// Catalog resolves satellites and ground stations. *kb.KnowledgeBase
// satisfies it.
type Catalog interface {
	GetSatellite(id string) (*model.Satellite, error)
	GetGroundStation(id string) (*model.GroundStation, error)
}

// Predictor computes overpasses for catalog entities.
type Predictor struct {
	catalog Catalog
	pool    *compute.Pool
	metrics *observability.OrchestratorCollector
	log     logging.Logger
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithPool runs predictions on the given compute pool.
func WithPool(p *compute.Pool) Option {
	return func(pr *Predictor) { pr.pool = p }
}

// WithMetrics records prediction durations.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(pr *Predictor) { pr.metrics = c }
}

// WithLogger sets the predictor logger.
func WithLogger(l logging.Logger) Option {
	return func(pr *Predictor) {
		if l != nil {
			pr.log = l
		}
	}
}

// NewPredictor returns a predictor over catalog.
func NewPredictor(catalog Catalog, opts ...Option) *Predictor {
	p := &Predictor{catalog: catalog, log: logging.Noop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ComputeOverpasses resolves the request's entities and predicts their
// windows on the predictor's compute pool.
func (p *Predictor) ComputeOverpasses(ctx context.Context, req Request) (windows []Window, err error) {
	ctx, span := observability.StartSpan(ctx, "passes.ComputeOverpasses", "satellite", req.SatelliteID,
		attribute.String("ground_station_id", req.GroundStationID),
	)
	defer func() { observability.EndSpan(span, err) }()

	sat, err := p.catalog.GetSatellite(req.SatelliteID)
	if err != nil {
		return nil, err
	}
	gs, err := p.catalog.GetGroundStation(req.GroundStationID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	windows, err = compute.Run(ctx, p.pool, func(ctx context.Context) ([]Window, error) {
		return Predict(ctx, sat, gs, req)
	})
	p.metrics.ObserveOverpassComputation(time.Since(start))
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("window_count", len(windows)))
	p.log.Debug(ctx, "computed overpasses",
		logging.SatelliteID(req.SatelliteID),
		logging.GroundStationID(req.GroundStationID),
		logging.Int("window_count", len(windows)),
	)
	return windows, nil
}

// Predict steps through [req.Start, req.End] at Step granularity. An
// elevation strictly above the threshold opens a window and one at or below
// closes it. Windows still open at req.End are not returned.
func Predict(ctx context.Context, sat *model.Satellite, gs *model.GroundStation, req Request) ([]Window, error) {
	if sat == nil {
		return nil, fmt.Errorf("%w: %q", ErrSatelliteNotFound, req.SatelliteID)
	}
	if gs == nil {
		return nil, fmt.Errorf("%w: %q", ErrGroundStationNotFound, req.GroundStationID)
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	}
	if req.MinElevationDeg < -90 || req.MinElevationDeg > 90 {
		return nil, fmt.Errorf("%w: minimum elevation %.2f out of range", ErrInvalidRequest, req.MinElevationDeg)
	}
	if !sat.HasTLE() {
		return nil, fmt.Errorf("%w: %q", ErrNoOrbitalElements, sat.ID)
	}

	prop, err := core.NewPropagator(sat.TLELine1, sat.TLELine2)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrNoOrbitalElements, sat.ID, err)
	}
	observer := core.NewObserver(gs.Location)

	var (
		out    []Window
		open   bool
		window Window
	)
	for t := req.Start.UTC(); !t.After(req.End); t = t.Add(Step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state, err := prop.At(t)
		if err != nil {
			return nil, err
		}
		look := observer.Look(state.ECEF)

		switch {
		case look.ElevationDeg > req.MinElevationDeg && !open:
			open = true
			window = Window{
				StartTime:        t,
				StartAzimuthDeg:  look.AzimuthDeg,
				MaxElevationTime: t,
				MaxElevationDeg:  look.ElevationDeg,
				TLELine1:         sat.TLELine1,
				TLELine2:         sat.TLELine2,
				TLEUpdatedAt:     sat.TLEUpdatedAt,
			}
		case look.ElevationDeg > req.MinElevationDeg:
			if look.ElevationDeg > window.MaxElevationDeg {
				window.MaxElevationDeg = look.ElevationDeg
				window.MaxElevationTime = t
			}
		case open:
			open = false
			window.EndTime = t
			window.EndAzimuthDeg = look.AzimuthDeg
			window.DurationSeconds = t.Sub(window.StartTime).Seconds()
			if req.MinDurationSeconds > 0 && window.DurationSeconds < req.MinDurationSeconds {
				continue
			}
			out = append(out, window)
			if req.MaxResults > 0 && len(out) >= req.MaxResults {
				return out, nil
			}
		}
	}
	return out, nil
}
