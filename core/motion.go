package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

var (
	// ErrInvalidTLE indicates the element lines could not be parsed.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrPropagationFailed indicates SGP4 produced no usable state.
	ErrPropagationFailed = errors.New("SGP4 propagation failed")
)

// State is a propagated satellite state. Positions are kilometres, velocity
// is kilometres per second.
type State struct {
	Time     time.Time
	ECI      Vec3
	Velocity Vec3
	ECEF     Vec3
}

// Propagator produces satellite states from a two-line element set using
// SGP4.
type Propagator struct {
	sat   satellite.Satellite
	epoch time.Time
}

// NewPropagator validates the element lines and initialises SGP4 with the
// WGS-72 constants the elements are fitted against.
func NewPropagator(line1, line2 string) (*Propagator, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	epoch, err := ParseTLE(line1, line2)
	if err != nil {
		return nil, err
	}
	return &Propagator{
		sat:   satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		epoch: epoch,
	}, nil
}

// Epoch returns the element set epoch.
func (p *Propagator) Epoch() time.Time { return p.epoch }

// At propagates the satellite to t. go-satellite resolves whole seconds, so
// the fractional remainder is advanced along the velocity vector.
func (p *Propagator) At(t time.Time) (State, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	frac := t.Sub(whole).Seconds()

	year, month, day := whole.Date()
	hour, minute, sec := whole.Clock()

	pos, vel := satellite.Propagate(p.sat, year, int(month), day, hour, minute, sec)
	eci := Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	velocity := Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
	if eci.IsNaN() || velocity.IsNaN() || eci.Norm() == 0 {
		return State{}, fmt.Errorf("%w at %s", ErrPropagationFailed, t.Format(time.RFC3339))
	}
	if frac > 0 {
		eci = eci.Add(velocity.Scale(frac))
	}

	jd := satellite.JDay(year, int(month), day, hour, minute, sec) + frac/86400.0
	gmst := satellite.ThetaG_JD(jd)
	ecef := satellite.ECIToECEF(satellite.Vector3{X: eci.X, Y: eci.Y, Z: eci.Z}, gmst)

	return State{
		Time:     t,
		ECI:      eci,
		Velocity: velocity,
		ECEF:     Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z},
	}, nil
}

// ParseTLE checks the fixed-column fields go-satellite reads and returns the
// element epoch. go-satellite aborts the process on malformed numbers, so
// every field it parses is checked here first.
func ParseTLE(line1, line2 string) (time.Time, error) {
	if len(line1) < 69 || len(line2) < 69 {
		return time.Time{}, fmt.Errorf("%w: lines must be at least 69 characters", ErrInvalidTLE)
	}
	if line1[0] != '1' || line2[0] != '2' {
		return time.Time{}, fmt.Errorf("%w: unexpected line numbers", ErrInvalidTLE)
	}

	ints := []string{strings.TrimSpace(line1[2:7]), line1[18:20]}
	for _, f := range ints {
		if _, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("%w: field %q: %v", ErrInvalidTLE, f, err)
		}
	}

	floats := []string{
		line1[20:32],
		strings.Replace(line1[33:43], " ", "", 2),
		strings.Replace(line1[44:45]+"."+line1[45:50]+"e"+line1[50:52], " ", "", 2),
		strings.Replace(line1[53:54]+"."+line1[54:59]+"e"+line1[59:61], " ", "", 2),
		strings.Replace(line2[8:16], " ", "", 2),
		strings.Replace(line2[17:25], " ", "", 2),
		"." + line2[26:33],
		strings.Replace(line2[34:42], " ", "", 2),
		strings.Replace(line2[43:51], " ", "", 2),
		strings.Replace(line2[52:63], " ", "", 2),
	}
	for _, f := range floats {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			return time.Time{}, fmt.Errorf("%w: field %q: %v", ErrInvalidTLE, f, err)
		}
	}

	return tleEpoch(line1), nil
}

// TLEEpoch returns the epoch encoded in line 1, or the zero time when the
// line is malformed.
func TLEEpoch(line1 string) time.Time {
	line1 = strings.TrimSpace(line1)
	if len(line1) < 32 {
		return time.Time{}
	}
	if _, err := strconv.ParseInt(line1[18:20], 10, 64); err != nil {
		return time.Time{}
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64); err != nil {
		return time.Time{}
	}
	return tleEpoch(line1)
}

func tleEpoch(line1 string) time.Time {
	yy, _ := strconv.Atoi(line1[18:20])
	days, _ := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)

	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}
	whole, frac := math.Modf(days)
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 0, int(whole)-1).Add(time.Duration(frac * float64(24*time.Hour)))
}
