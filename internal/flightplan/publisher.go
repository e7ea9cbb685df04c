package flightplan

import (
	"context"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// StatusEvent describes one flight plan status change.
type StatusEvent struct {
	FlightPlanID    string                 `json:"flightPlanId"`
	Name            string                 `json:"name"`
	SatelliteID     string                 `json:"satelliteId"`
	GroundStationID string                 `json:"groundStationId,omitempty"`
	From            model.FlightPlanStatus `json:"from,omitempty"`
	To              model.FlightPlanStatus `json:"to"`
	Reason          string                 `json:"reason,omitempty"`
	At              time.Time              `json:"at"`
}

// StatusPublisher receives status changes after they are stored. Publishing
// is best effort; errors are logged and never undo a transition.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent) error
}

func newStatusEvent(from model.FlightPlanStatus, p *model.FlightPlan, at time.Time) StatusEvent {
	ev := StatusEvent{
		FlightPlanID: p.ID,
		Name:         p.Name,
		SatelliteID:  p.SatelliteID,
		From:         from,
		To:           p.Status,
		At:           at,
	}
	if p.GroundStationID != nil {
		ev.GroundStationID = *p.GroundStationID
	}
	if p.FailureReason != nil {
		ev.Reason = *p.FailureReason
	}
	return ev
}
