package flightplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/command"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/imaging"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

var (
	// ErrInvalidPlan indicates stored commands that no longer validate.
	ErrInvalidPlan = errors.New("cannot compile invalid flight plan")
	// ErrNoImagingOpportunity indicates a capture target is never acceptably
	// visible in the search window.
	ErrNoImagingOpportunity = errors.New("no imaging opportunity")
)

// CompileToScript validates the plan, resolves capture times from the
// scheduled transmission time and renders the script. The stored plan is
// not modified.
func (s *Service) CompileToScript(ctx context.Context, id string) ([]string, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	sat, err := s.catalog.GetSatellite(plan.SatelliteID)
	if err != nil {
		return nil, err
	}
	return s.compile(ctx, plan, sat)
}

func (s *Service) compile(ctx context.Context, plan *model.FlightPlan, sat *model.Satellite) ([]string, error) {
	seq, err := command.Decode(plan.Commands)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	if seq.NeedsResolution() {
		if plan.ScheduledAt == nil {
			return nil, fmt.Errorf("%w: flight plan %q has no scheduled time", command.ErrNotReadyToCompile, plan.ID)
		}
		from := *plan.ScheduledAt
		seq, err = seq.ResolveExecutionTimes(func(_ int, target model.Geodetic) (time.Time, error) {
			return s.captureTime(ctx, sat, target, from)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to calculate execution times: %w", err)
		}
	}
	return seq.Compile()
}

func (s *Service) captureTime(ctx context.Context, sat *model.Satellite, target model.Geodetic, from time.Time) (time.Time, error) {
	opp, err := s.imaging.FindBestOpportunity(ctx, sat, target, from, s.cfg.ImagingSearch)
	if err != nil {
		return time.Time{}, err
	}
	advice := imaging.Advise(opp, s.cfg.MaxOffNadirDeg)
	if !advice.Acceptable {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoImagingOpportunity, advice.Message)
	}
	return opp.ImagingTime, nil
}

// ImagingRequest asks for the best imaging instant of a target.
type ImagingRequest struct {
	SatelliteID string
	Target      model.Geodetic
	// From defaults to now.
	From *time.Time
	// MaxSearchDuration defaults to the configured imaging search.
	MaxSearchDuration time.Duration
	// MaxOffNadirDeg defaults to the configured limit.
	MaxOffNadirDeg float64
}

// ImagingResponse is the best opportunity found with its advisories.
type ImagingResponse struct {
	Opportunity   *imaging.Opportunity `json:"opportunity,omitempty"`
	Acceptable    bool                 `json:"acceptable"`
	Message       string               `json:"message,omitempty"`
	TLEAgeWarning string               `json:"tleAgeWarning,omitempty"`
}

// GetImagingOpportunity searches for the best imaging instant without
// enforcing the off-nadir limit; the limit only shapes the advisory.
func (s *Service) GetImagingOpportunity(ctx context.Context, req ImagingRequest) (*ImagingResponse, error) {
	sat, err := s.catalog.GetSatellite(req.SatelliteID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	from := now
	if req.From != nil {
		from = *req.From
	}
	search := req.MaxSearchDuration
	if search <= 0 {
		search = s.cfg.ImagingSearch
	}
	limit := req.MaxOffNadirDeg
	if limit <= 0 {
		limit = s.cfg.MaxOffNadirDeg
	}

	opp, err := s.imaging.FindBestOpportunity(ctx, sat, req.Target, from, search)
	if err != nil {
		return nil, err
	}
	advice := imaging.Advise(opp, limit)
	return &ImagingResponse{
		Opportunity:   opp,
		Acceptable:    advice.Acceptable,
		Message:       advice.Message,
		TLEAgeWarning: imaging.TLEAgeWarning(sat, now),
	}, nil
}
