package core

import (
	"math"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// EarthRadiusKm is the mean Earth radius used for ground-track distances
// (kilometres).
const EarthRadiusKm = 6371.0

// WGS-84 ellipsoid parameters.
const (
	wgs84AKm = 6378.137
	wgs84F   = 1.0 / 298.257223563
	wgs84E2  = wgs84F * (2 - wgs84F)
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v multiplied by k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// IsNaN reports whether any component is NaN.
func (v Vec3) IsNaN() bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z)
}

// GeodeticToECEF converts a WGS-84 position (degrees, metres) into ECEF
// kilometres.
func GeodeticToECEF(g model.Geodetic) Vec3 {
	lat := g.Latitude * deg2rad
	lon := g.Longitude * deg2rad
	altKm := g.Altitude / 1000.0

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vec3{
		X: (n + altKm) * cosLat * math.Cos(lon),
		Y: (n + altKm) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + altKm) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF kilometres into a WGS-84 position using
// Bowring's iteration. Altitude is returned in metres.
func ECEFToGeodetic(v Vec3) model.Geodetic {
	lon := math.Atan2(v.Y, v.X)
	p := math.Hypot(v.X, v.Y)
	lat := math.Atan2(v.Z, p*(1-wgs84E2))

	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(v.Z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var altKm float64
	if math.Abs(cosLat) > 1e-10 {
		altKm = p/cosLat - n
	} else {
		altKm = math.Abs(v.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return model.Geodetic{
		Latitude:  lat * rad2deg,
		Longitude: lon * rad2deg,
		Altitude:  altKm * 1000.0,
	}
}

// LookAngles holds azimuth, elevation and range from an observer to a
// target.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = north, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// Observer caches the ECEF position and rotation terms of a ground site so
// it can be reused across many look-angle evaluations.
type Observer struct {
	Position       Vec3
	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewObserver prepares an observer at the given geodetic location.
func NewObserver(g model.Geodetic) Observer {
	lat := g.Latitude * deg2rad
	lon := g.Longitude * deg2rad
	return Observer{
		Position: GeodeticToECEF(g),
		sinLat:   math.Sin(lat),
		cosLat:   math.Cos(lat),
		sinLon:   math.Sin(lon),
		cosLon:   math.Cos(lon),
	}
}

// Look computes the topocentric look angles to a target in ECEF kilometres
// using the south-east-zenith rotation.
func (o Observer) Look(target Vec3) LookAngles {
	r := target.Sub(o.Position)

	south := o.sinLat*o.cosLon*r.X + o.sinLat*o.sinLon*r.Y - o.cosLat*r.Z
	east := -o.sinLon*r.X + o.cosLon*r.Y
	zenith := o.cosLat*o.cosLon*r.X + o.cosLat*o.sinLon*r.Y + o.sinLat*r.Z

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * rad2deg,
		ElevationDeg: math.Asin(clampUnit(zenith/rng)) * rad2deg,
		RangeKm:      rng,
	}
}

// OffNadirDegrees returns the angle between the satellite's nadir direction
// and the line from the satellite to the target. Both positions are ECEF
// kilometres.
func OffNadirDegrees(sat, target Vec3) float64 {
	toTarget := target.Sub(sat)
	denom := sat.Norm() * toTarget.Norm()
	if denom == 0 {
		return 0
	}
	// The radial vector points away from nadir, so the angle to the target is
	// measured from its supplement.
	angle := math.Pi - math.Acos(clampUnit(sat.Dot(toTarget)/denom))
	return angle * rad2deg
}

// CentralAngle returns the great-circle angle in radians between two
// geodetic points (haversine).
func CentralAngle(a, b model.Geodetic) float64 {
	lat1, lat2 := a.Latitude*deg2rad, b.Latitude*deg2rad
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * deg2rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * math.Asin(math.Sqrt(clampUnit(h)))
}

// GroundDistanceKm returns the ground-track distance between two points on
// the mean Earth sphere.
func GroundDistanceKm(a, b model.Geodetic) float64 {
	return EarthRadiusKm * CentralAngle(a, b)
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
