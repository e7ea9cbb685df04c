package main

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/config"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/fixtures"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/httpapi"
	"github.com/signalsfoundry/flightplan-orchestrator/kb"
)

func TestSeedCatalog(t *testing.T) {
	opts := config.New()
	opts.Stations = []config.StationSeed{
		{ID: "gs-aarhus", Name: "Aarhus", Latitude: 56.1629, Longitude: 10.2039, Secret: "hunter2"},
		{ID: "gs-spare", Name: "Spare", Inactive: true},
	}
	opts.Satellites = []config.SatelliteSeed{
		{ID: "sat-iss", Name: "ISS", NoradID: 25544, TLELine1: fixtures.ISSLine1, TLELine2: fixtures.ISSLine2},
		{ID: "sat-disco", Name: "DISCO-1", NoradID: 56222},
	}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	catalog := kb.NewKnowledgeBase()
	if err := seedCatalog(catalog, opts, now); err != nil {
		t.Fatalf("seedCatalog: %v", err)
	}

	auth := httpapi.NewStationAuthenticator(catalog)
	gs, err := auth.Authenticate(context.Background(), "gs-aarhus:hunter2")
	if err != nil || gs.ID != "gs-aarhus" {
		t.Fatalf("seeded station does not authenticate: %v, %v", gs, err)
	}
	if _, err := auth.Authenticate(context.Background(), "gs-spare:"); err == nil {
		t.Fatalf("inactive station authenticated")
	}

	iss, err := catalog.GetSatellite("sat-iss")
	if err != nil {
		t.Fatalf("GetSatellite: %v", err)
	}
	if !iss.HasTLE() {
		t.Fatalf("elements not seeded: %+v", iss)
	}
	if d := iss.TLEUpdatedAt.Sub(fixtures.Epoch); d < -time.Second || d > time.Second {
		t.Fatalf("element time = %s, want the epoch %s", iss.TLEUpdatedAt, fixtures.Epoch)
	}
	disco, _ := catalog.GetSatellite("sat-disco")
	if disco.HasTLE() || disco.NoradID != 56222 {
		t.Fatalf("bare satellite = %+v", disco)
	}
}

func TestSeedCatalogRejectsBadElements(t *testing.T) {
	opts := config.New()
	opts.Satellites = []config.SatelliteSeed{{ID: "sat-bad", TLELine1: "1 bogus", TLELine2: "2 bogus"}}
	if err := seedCatalog(kb.NewKnowledgeBase(), opts, time.Now()); err == nil {
		t.Fatalf("expected malformed elements to be rejected")
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "http.addr", "grpc.addr", "scheduler.interval", "mqtt.broker", "s3.bucket-name", "tle.url", "log.level"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("flag %q is not registered", name)
		}
	}
}
