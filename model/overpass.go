package model

import "time"

// Overpass is a stored visibility window between a satellite and a ground
// station. Stored overpasses are append-only; they are looked up by
// approximate window match rather than recomputed.
type Overpass struct {
	ID               string    `json:"id"`
	SatelliteID      string    `json:"satelliteId"`
	GroundStationID  string    `json:"groundStationId"`
	FlightPlanID     *string   `json:"flightPlanId,omitempty"`
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
	CreatedAt        time.Time `json:"createdAt"`
}

// Clone returns a copy of the overpass.
func (o *Overpass) Clone() *Overpass {
	if o == nil {
		return nil
	}
	cp := *o
	cp.FlightPlanID = cloneString(o.FlightPlanID)
	return &cp
}
