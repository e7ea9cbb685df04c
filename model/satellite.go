package model

import (
	"strings"
	"time"
)

// SatelliteStatus is the lifecycle state reported by the orbital catalog.
type SatelliteStatus string

const (
	SatelliteActive    SatelliteStatus = "ACTIVE"
	SatelliteInactive  SatelliteStatus = "INACTIVE"
	SatelliteDeorbited SatelliteStatus = "DEORBITED"
	SatelliteUnknown   SatelliteStatus = "UNKNOWN"
	SatelliteDecayed   SatelliteStatus = "DECAYED"
	SatelliteLaunched  SatelliteStatus = "LAUNCHED"
)

// Satellite is a tracked spacecraft and its current two-line element set.
// Satellites are updated by the TLE refresher and never deleted once a
// flight plan references them.
type Satellite struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	NoradID      int             `json:"noradId"`
	Status       SatelliteStatus `json:"status"`
	TLELine1     string          `json:"tleLine1,omitempty"`
	TLELine2     string          `json:"tleLine2,omitempty"`
	TLEUpdatedAt time.Time       `json:"tleUpdatedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// HasTLE reports whether both element lines are present.
func (s *Satellite) HasTLE() bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.TLELine1) != "" && strings.TrimSpace(s.TLELine2) != ""
}
