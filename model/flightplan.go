package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlightPlanStatus is the lifecycle state of a flight plan.
type FlightPlanStatus string

const (
	StatusDraft              FlightPlanStatus = "DRAFT"
	StatusRejected           FlightPlanStatus = "REJECTED"
	StatusApproved           FlightPlanStatus = "APPROVED"
	StatusAssignedToOverpass FlightPlanStatus = "ASSIGNED_TO_OVERPASS"
	StatusTransmitted        FlightPlanStatus = "TRANSMITTED"
	StatusFailed             FlightPlanStatus = "FAILED"
	StatusSuperseded         FlightPlanStatus = "SUPERSEDED"
)

var knownStatuses = map[FlightPlanStatus]bool{
	StatusDraft:              true,
	StatusRejected:           true,
	StatusApproved:           true,
	StatusAssignedToOverpass: true,
	StatusTransmitted:        true,
	StatusFailed:             true,
	StatusSuperseded:         true,
}

// ParseFlightPlanStatus converts a wire value into a status.
func ParseFlightPlanStatus(s string) (FlightPlanStatus, error) {
	st := FlightPlanStatus(s)
	if !knownStatuses[st] {
		return "", fmt.Errorf("unknown flight plan status %q", s)
	}
	return st, nil
}

// Active reports whether the plan still competes for an overpass.
func (s FlightPlanStatus) Active() bool {
	return s == StatusApproved || s == StatusAssignedToOverpass
}

// Terminal reports whether no further transitions are possible.
func (s FlightPlanStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusTransmitted, StatusFailed, StatusSuperseded:
		return true
	}
	return false
}

// FlightPlan is a named, versioned command sequence bound to a satellite and,
// eventually, a ground station and overpass. Command content is immutable
// once created; edits produce a new version linked through PreviousPlanID.
type FlightPlan struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Commands        json.RawMessage  `json:"commands"`
	ScheduledAt     *time.Time       `json:"scheduledAt,omitempty"`
	GroundStationID *string          `json:"groundStationId,omitempty"`
	SatelliteID     string           `json:"satelliteId"`
	OverpassID      *string          `json:"overpassId,omitempty"`
	Status          FlightPlanStatus `json:"status"`
	PreviousPlanID  *string          `json:"previousPlanId,omitempty"`
	CreatedBy       string           `json:"createdBy"`
	ApprovedBy      *string          `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time       `json:"approvedAt,omitempty"`
	FailureReason   *string          `json:"failureReason,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p *FlightPlan) Clone() *FlightPlan {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Commands != nil {
		cp.Commands = append(json.RawMessage(nil), p.Commands...)
	}
	cp.ScheduledAt = cloneTime(p.ScheduledAt)
	cp.ApprovedAt = cloneTime(p.ApprovedAt)
	cp.GroundStationID = cloneString(p.GroundStationID)
	cp.OverpassID = cloneString(p.OverpassID)
	cp.PreviousPlanID = cloneString(p.PreviousPlanID)
	cp.ApprovedBy = cloneString(p.ApprovedBy)
	cp.FailureReason = cloneString(p.FailureReason)
	return &cp
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
