package flightplan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/state"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"go.opentelemetry.io/otel/attribute"
)

// AssignRequest selects the overpass for a plan. GroundStationID falls back
// to the plan's station. MaxElevationDeg and DurationSeconds, when set,
// refine the choice between candidate windows.
type AssignRequest struct {
	GroundStationID string
	Start           time.Time
	End             time.Time
	MinElevationDeg float64
	MaxElevationDeg *float64
	DurationSeconds *float64
}

// AssignOverpass binds an Approved plan to the predicted pass that best
// matches the requested window. The conflict check and the assignment run
// under the satellite's lock.
func (s *Service) AssignOverpass(ctx context.Context, id string, req AssignRequest) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "flightplan.AssignOverpass", "flight_plan", id,
		attribute.String("ground_station_id", req.GroundStationID),
	)
	defer func() { observability.EndSpan(span, err) }()

	now := s.clock.Now()
	switch {
	case req.Start.Before(now):
		return rejected(msgStartInPast), nil
	case req.End.Before(now):
		return rejected(msgEndInPast), nil
	case !req.Start.Before(req.End):
		return rejected(msgStartAfterEnd), nil
	}

	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return Result{}, err
	}
	unlock := s.locks.Lock(plan.SatelliteID)
	defer unlock()

	// Re-read under the lock; a racing call may have assigned it.
	if plan, err = s.store.GetPlan(ctx, id); err != nil {
		return Result{}, err
	}
	if !newLifecycle(plan).can(EventAssign) {
		return rejected(assignRejection(plan.Status)), nil
	}
	stationID := req.GroundStationID
	if stationID == "" && plan.GroundStationID != nil {
		stationID = *plan.GroundStationID
	}
	if stationID == "" {
		return rejected(msgNoGroundStation), nil
	}

	windows, err := s.predictor.ComputeOverpasses(ctx, passes.Request{
		SatelliteID:     plan.SatelliteID,
		GroundStationID: stationID,
		Start:           req.Start.Add(-s.cfg.AssignmentPadding),
		End:             req.End.Add(s.cfg.AssignmentPadding),
		MinElevationDeg: req.MinElevationDeg,
	})
	if err != nil {
		return Result{}, err
	}
	if len(windows) == 0 {
		return rejected(msgNoOverpass), nil
	}
	best, ok := selectCandidate(windows, req, s.cfg.CandidateTolerance)
	if !ok {
		return rejected(noCandidateMessage(s.cfg.CandidateTolerance)), nil
	}

	if other := s.findConflict(ctx, plan, best.MaxElevationTime); other != nil {
		s.log.Warn(ctx, "overpass assignment conflict",
			logging.FlightPlanID(plan.ID),
			logging.String("conflicting_flight_plan_id", other.ID),
			logging.Time("max_elevation_time", best.MaxElevationTime),
		)
		return rejected(conflictMessage(other)), nil
	}

	op, created, err := s.store.FindOrCreateOverpass(ctx, best.Overpass(plan.SatelliteID, stationID), s.cfg.OverpassMatch)
	if err != nil {
		return Result{}, fmt.Errorf("find or create overpass: %w", err)
	}

	var from model.FlightPlanStatus
	updated, err := s.store.AssignOverpass(ctx, op.ID, plan.ID, func(p *model.FlightPlan) error {
		from = p.Status
		return newLifecycle(p).fire(ctx, EventAssign, assignment{
			OverpassID:      op.ID,
			GroundStationID: stationID,
			ScheduledAt:     best.MaxElevationTime,
		})
	})
	if err != nil {
		var te *TransitionError
		switch {
		case errors.Is(err, state.ErrOverpassAlreadyLinked):
			return rejected(s.heldMessage(ctx, op)), nil
		case errors.As(err, &te):
			return rejected(assignRejection(te.From)), nil
		}
		return Result{}, err
	}
	s.afterTransition(ctx, from, updated)

	op.FlightPlanID = model.StringPtr(updated.ID)
	msg := msgOverpassReused
	if created {
		msg = msgOverpassCreated
	}
	return Result{Success: true, Message: msg, Plan: updated, Overpass: op}, nil
}

// findConflict returns another active plan of the satellite scheduled within
// the conflict tolerance of at.
func (s *Service) findConflict(ctx context.Context, plan *model.FlightPlan, at time.Time) *model.FlightPlan {
	for _, other := range s.store.ActivePlansForSatellite(ctx, plan.SatelliteID) {
		if other.ID == plan.ID || other.ScheduledAt == nil {
			continue
		}
		d := other.ScheduledAt.Sub(at)
		if d < 0 {
			d = -d
		}
		if d <= s.cfg.ConflictTolerance {
			return other
		}
	}
	return nil
}

func (s *Service) heldMessage(ctx context.Context, op *model.Overpass) string {
	if op.FlightPlanID != nil {
		if holder, err := s.store.GetPlan(ctx, *op.FlightPlanID); err == nil {
			return conflictMessage(holder)
		}
		return fmt.Sprintf(msgOverpassHeldFormat, *op.FlightPlanID)
	}
	return fmt.Sprintf(msgOverpassHeldFormat, op.ID)
}

// selectCandidate picks the window closest to the request among those whose
// start and end are both within tolerance. Lower scores win; the first
// window wins ties.
func selectCandidate(windows []passes.Window, req AssignRequest, tolerance time.Duration) (passes.Window, bool) {
	var (
		best      passes.Window
		bestScore = math.Inf(1)
		found     bool
	)
	limit := tolerance.Minutes()
	for _, w := range windows {
		startDiff := math.Abs(w.StartTime.Sub(req.Start).Minutes())
		endDiff := math.Abs(w.EndTime.Sub(req.End).Minutes())
		if startDiff > limit || endDiff > limit {
			continue
		}
		score := candidateScore(w, req, startDiff, endDiff)
		if score < bestScore {
			best, bestScore, found = w, score, true
		}
	}
	return best, found
}

func candidateScore(w passes.Window, req AssignRequest, startDiff, endDiff float64) float64 {
	var elevationDiff, durationDiff float64
	if req.MaxElevationDeg != nil {
		elevationDiff = math.Abs(w.MaxElevationDeg - *req.MaxElevationDeg)
	}
	if req.DurationSeconds != nil {
		durationDiff = math.Abs(w.DurationSeconds - *req.DurationSeconds)
	}
	return startDiff*2 + endDiff*2 + elevationDiff*0.5 + durationDiff/60*0.5
}
