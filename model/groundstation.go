package model

import "time"

// Geodetic is a WGS-84 position. Altitude is metres above the ellipsoid.
type Geodetic struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// GroundStation is an antenna site that holds a persistent connection to the
// orchestrator while it is online.
type GroundStation struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Location Geodetic `json:"location"`
	// CredentialHash is a bcrypt hash of the station's shared secret.
	CredentialHash string    `json:"-"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
