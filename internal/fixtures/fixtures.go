// Package fixtures provides a small known-good catalog for tests across the
// orchestrator packages.
package fixtures

import (
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/kb"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// ISS element set with an epoch of 2021-10-02 14:11 UTC.
const (
	ISSLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	ISSLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

// Fixture identifiers.
const (
	SatelliteID        = "sat-iss"
	BareSatelliteID    = "sat-no-tle"
	LondonStationID    = "gs-london"
	CambridgeStationID = "gs-cambridge"
	StationSecret      = "s3cret"
)

// Epoch is the ISS element epoch.
var Epoch = time.Date(2021, 10, 2, 14, 11, 0, 0, time.UTC)

// ISS returns a satellite carrying the ISS element set.
func ISS() *model.Satellite {
	return &model.Satellite{
		ID:           SatelliteID,
		Name:         "ISS (ZARYA)",
		NoradID:      25544,
		Status:       model.SatelliteActive,
		TLELine1:     ISSLine1,
		TLELine2:     ISSLine2,
		TLEUpdatedAt: Epoch,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
}

// London returns a ground station near Greenwich.
func London() *model.GroundStation {
	return &model.GroundStation{
		ID:       LondonStationID,
		Name:     "London",
		Location: model.Geodetic{Latitude: 51.5, Longitude: 0, Altitude: 20},
		Active:   true,
	}
}

// Cambridge returns a second station close enough to London to share passes.
func Cambridge() *model.GroundStation {
	return &model.GroundStation{
		ID:       CambridgeStationID,
		Name:     "Cambridge",
		Location: model.Geodetic{Latitude: 52.2, Longitude: 0.1, Altitude: 10},
		Active:   true,
	}
}

// NewCatalog returns a knowledge base holding the ISS, a satellite without
// elements and both stations.
func NewCatalog() *kb.KnowledgeBase {
	store := kb.NewKnowledgeBase()
	_ = store.AddSatellite(ISS())
	_ = store.AddSatellite(&model.Satellite{ID: BareSatelliteID, Name: "NO-ELEMENTS", Status: model.SatelliteUnknown})
	_ = store.AddGroundStation(London())
	_ = store.AddGroundStation(Cambridge())
	return store
}
