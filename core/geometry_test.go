package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

func TestGeodeticRoundTrip(t *testing.T) {
	cases := []model.Geodetic{
		{Latitude: 0, Longitude: 0, Altitude: 0},
		{Latitude: 55.6761, Longitude: 12.5683, Altitude: 30},
		{Latitude: -33.8688, Longitude: 151.2093, Altitude: 58},
		{Latitude: 78.2232, Longitude: 15.6267, Altitude: 400000},
	}
	for _, want := range cases {
		got := ECEFToGeodetic(GeodeticToECEF(want))
		if math.Abs(got.Latitude-want.Latitude) > 1e-6 || math.Abs(got.Longitude-want.Longitude) > 1e-6 {
			t.Fatalf("round trip lat/lon = (%f, %f), want (%f, %f)", got.Latitude, got.Longitude, want.Latitude, want.Longitude)
		}
		if math.Abs(got.Altitude-want.Altitude) > 1e-3 {
			t.Fatalf("round trip altitude = %f, want %f", got.Altitude, want.Altitude)
		}
	}
}

func TestObserverLook_Zenith(t *testing.T) {
	site := model.Geodetic{Latitude: 10, Longitude: 20}
	obs := NewObserver(site)
	overhead := GeodeticToECEF(model.Geodetic{Latitude: 10, Longitude: 20, Altitude: 500000})

	look := obs.Look(overhead)
	if look.ElevationDeg < 89.9 {
		t.Fatalf("elevation = %f, want ~90", look.ElevationDeg)
	}
	if math.Abs(look.RangeKm-500) > 0.5 {
		t.Fatalf("range = %f km, want ~500", look.RangeKm)
	}
}

func TestObserverLook_Azimuth(t *testing.T) {
	obs := NewObserver(model.Geodetic{Latitude: 0, Longitude: 0})

	north := obs.Look(GeodeticToECEF(model.Geodetic{Latitude: 5, Longitude: 0, Altitude: 500000}))
	if north.AzimuthDeg > 1 && north.AzimuthDeg < 359 {
		t.Fatalf("northern target azimuth = %f, want ~0", north.AzimuthDeg)
	}
	east := obs.Look(GeodeticToECEF(model.Geodetic{Latitude: 0, Longitude: 5, Altitude: 500000}))
	if math.Abs(east.AzimuthDeg-90) > 1 {
		t.Fatalf("eastern target azimuth = %f, want ~90", east.AzimuthDeg)
	}
	below := obs.Look(GeodeticToECEF(model.Geodetic{Latitude: 0, Longitude: 180, Altitude: 500000}))
	if below.ElevationDeg >= 0 {
		t.Fatalf("antipodal target elevation = %f, want negative", below.ElevationDeg)
	}
}

func TestOffNadirDegrees(t *testing.T) {
	sat := Vec3{X: EarthRadiusKm + 500}

	if got := OffNadirDegrees(sat, Vec3{X: EarthRadiusKm}); math.Abs(got) > 1e-9 {
		t.Fatalf("nadir target off-nadir = %f, want 0", got)
	}

	// Target 500 km across-track at the same radius as the sub-point tilts
	// the line of sight by 45 degrees.
	target := Vec3{X: EarthRadiusKm, Y: 500}
	if got := OffNadirDegrees(sat, target); math.Abs(got-45) > 1e-9 {
		t.Fatalf("off-nadir = %f, want 45", got)
	}

	if got := OffNadirDegrees(Vec3{}, target); got != 0 {
		t.Fatalf("degenerate off-nadir = %f, want 0", got)
	}
}

func TestGroundDistanceKm(t *testing.T) {
	a := model.Geodetic{Latitude: 0, Longitude: 0}
	b := model.Geodetic{Latitude: 0, Longitude: 90}
	want := EarthRadiusKm * math.Pi / 2
	if got := GroundDistanceKm(a, b); math.Abs(got-want) > 1e-6 {
		t.Fatalf("GroundDistanceKm = %f, want %f", got, want)
	}
	if got := GroundDistanceKm(a, a); got != 0 {
		t.Fatalf("GroundDistanceKm same point = %f, want 0", got)
	}
}
