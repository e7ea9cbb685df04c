package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/flightplan"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/scheduler"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/tle"
	"github.com/spf13/pflag"
)

// SchedulerOptions configures the transmission loop.
type SchedulerOptions struct {
	Interval  time.Duration `json:"interval" mapstructure:"interval"`
	Lookahead time.Duration `json:"lookahead" mapstructure:"lookahead"`
	Imminent  time.Duration `json:"imminent" mapstructure:"imminent"`
}

// NewSchedulerOptions returns SchedulerOptions with the standard cadence.
func NewSchedulerOptions() *SchedulerOptions {
	return &SchedulerOptions{
		Interval:  scheduler.DefaultInterval,
		Lookahead: scheduler.DefaultLookahead,
		Imminent:  scheduler.DefaultImminent,
	}
}

// Validate checks that every duration is positive and the imminent window
// fits inside the lookahead.
func (o *SchedulerOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := []error{}
	if o.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if o.Lookahead <= 0 {
		errs = append(errs, errors.New("scheduler.lookahead must be positive"))
	}
	if o.Imminent <= 0 || o.Imminent > o.Lookahead {
		errs = append(errs, fmt.Errorf("scheduler.imminent must be in (0, %s]", o.Lookahead))
	}
	return errs
}

// AddFlags registers the scheduler flags on fs.
func (o *SchedulerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.Interval, "scheduler.interval", o.Interval, "Time between transmission cycles.")
	fs.DurationVar(&o.Lookahead, "scheduler.lookahead", o.Lookahead, "How far ahead a scheduled plan counts as due.")
	fs.DurationVar(&o.Imminent, "scheduler.imminent", o.Imminent, "Window before the scheduled time in which a disconnected station fails the plan.")
}

// Config converts the options to a scheduler configuration.
func (o *SchedulerOptions) Config() scheduler.Config {
	return scheduler.Config{Interval: o.Interval, Lookahead: o.Lookahead, Imminent: o.Imminent}
}

// GatewayOptions configures ground-station sessions.
type GatewayOptions struct {
	WriteTimeout     time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	HandshakeTimeout time.Duration `json:"handshake-timeout" mapstructure:"handshake-timeout"`
}

// NewGatewayOptions returns GatewayOptions with default timeouts.
func NewGatewayOptions() *GatewayOptions {
	return &GatewayOptions{
		WriteTimeout:     gateway.DefaultWriteTimeout,
		HandshakeTimeout: gateway.DefaultHandshakeTimeout,
	}
}

// Validate checks that both timeouts are positive.
func (o *GatewayOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := []error{}
	if o.WriteTimeout <= 0 {
		errs = append(errs, errors.New("gateway.write-timeout must be positive"))
	}
	if o.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("gateway.handshake-timeout must be positive"))
	}
	return errs
}

// AddFlags registers the gateway flags on fs.
func (o *GatewayOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.WriteTimeout, "gateway.write-timeout", o.WriteTimeout, "Deadline for writing one transmission to a station.")
	fs.DurationVar(&o.HandshakeTimeout, "gateway.handshake-timeout", o.HandshakeTimeout, "Time a station has to send its hello frame.")
}

// TLEOptions configures the orbital element refresher.
type TLEOptions struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	URL      string        `json:"url" mapstructure:"url"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Pause    time.Duration `json:"pause" mapstructure:"pause"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewTLEOptions returns TLEOptions pointing at Celestrak.
func NewTLEOptions() *TLEOptions {
	return &TLEOptions{
		Enabled:  true,
		URL:      tle.DefaultCelestrakURL,
		Interval: tle.DefaultInterval,
		Pause:    tle.DefaultPause,
		Timeout:  30 * time.Second,
	}
}

// Validate checks the refresher settings when it is enabled.
func (o *TLEOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	errs := []error{}
	if o.URL == "" {
		errs = append(errs, errors.New("tle.url is required when the refresher is enabled"))
	}
	if o.Interval <= 0 {
		errs = append(errs, errors.New("tle.interval must be positive"))
	}
	if o.Pause < 0 {
		errs = append(errs, errors.New("tle.pause must not be negative"))
	}
	return errs
}

// AddFlags registers the TLE flags on fs.
func (o *TLEOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "tle.enabled", o.Enabled, "Periodically refresh orbital elements.")
	fs.StringVar(&o.URL, "tle.url", o.URL, "Base URL of the GP element endpoint.")
	fs.DurationVar(&o.Interval, "tle.interval", o.Interval, "Time between element refresh rounds.")
	fs.DurationVar(&o.Pause, "tle.pause", o.Pause, "Pause between satellites within a round.")
	fs.DurationVar(&o.Timeout, "tle.timeout", o.Timeout, "HTTP timeout for one element fetch.")
}

// PlanningOptions tunes overpass assignment and capture resolution.
type PlanningOptions struct {
	AssignmentPadding  time.Duration `json:"assignment-padding" mapstructure:"assignment-padding"`
	CandidateTolerance time.Duration `json:"candidate-tolerance" mapstructure:"candidate-tolerance"`
	ConflictTolerance  time.Duration `json:"conflict-tolerance" mapstructure:"conflict-tolerance"`
	ImagingSearch      time.Duration `json:"imaging-search" mapstructure:"imaging-search"`
	MaxOffNadirDeg     float64       `json:"max-off-nadir" mapstructure:"max-off-nadir"`
	Workers            int           `json:"workers" mapstructure:"workers"`
}

// NewPlanningOptions returns PlanningOptions with the production tolerances.
func NewPlanningOptions() *PlanningOptions {
	d := flightplan.DefaultConfig()
	return &PlanningOptions{
		AssignmentPadding:  d.AssignmentPadding,
		CandidateTolerance: d.CandidateTolerance,
		ConflictTolerance:  d.ConflictTolerance,
		ImagingSearch:      d.ImagingSearch,
		MaxOffNadirDeg:     d.MaxOffNadirDeg,
	}
}

// Validate checks tolerances and the off-nadir limit.
func (o *PlanningOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := []error{}
	if o.AssignmentPadding < 0 || o.CandidateTolerance <= 0 || o.ConflictTolerance <= 0 {
		errs = append(errs, errors.New("planning tolerances must be positive"))
	}
	if o.ImagingSearch <= 0 {
		errs = append(errs, errors.New("planning.imaging-search must be positive"))
	}
	if o.MaxOffNadirDeg <= 0 || o.MaxOffNadirDeg >= 90 {
		errs = append(errs, fmt.Errorf("planning.max-off-nadir %.1f out of range (0, 90)", o.MaxOffNadirDeg))
	}
	if o.Workers < 0 {
		errs = append(errs, errors.New("planning.workers must not be negative"))
	}
	return errs
}

// AddFlags registers the planning flags on fs.
func (o *PlanningOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.AssignmentPadding, "planning.assignment-padding", o.AssignmentPadding, "Padding around a requested window before prediction.")
	fs.DurationVar(&o.CandidateTolerance, "planning.candidate-tolerance", o.CandidateTolerance, "Maximum distance between requested and predicted window edges.")
	fs.DurationVar(&o.ConflictTolerance, "planning.conflict-tolerance", o.ConflictTolerance, "Distance from another plan's scheduled time that counts as a conflict.")
	fs.DurationVar(&o.ImagingSearch, "planning.imaging-search", o.ImagingSearch, "How far past the scheduled time captures are searched.")
	fs.Float64Var(&o.MaxOffNadirDeg, "planning.max-off-nadir", o.MaxOffNadirDeg, "Largest acceptable capture off-nadir angle in degrees.")
	fs.IntVar(&o.Workers, "planning.workers", o.Workers, "Concurrent predictor and optimizer runs; 0 uses GOMAXPROCS.")
}

// Config converts the options to a flight plan service configuration.
func (o *PlanningOptions) Config() flightplan.Config {
	cfg := flightplan.DefaultConfig()
	cfg.AssignmentPadding = o.AssignmentPadding
	cfg.CandidateTolerance = o.CandidateTolerance
	cfg.ConflictTolerance = o.ConflictTolerance
	cfg.ImagingSearch = o.ImagingSearch
	cfg.MaxOffNadirDeg = o.MaxOffNadirDeg
	return cfg
}
