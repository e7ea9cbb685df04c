// Package flightplan owns the flight plan lifecycle: authoring, approval,
// overpass assignment with conflict detection, compilation and the status
// updates reported by the transmission scheduler.
package flightplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/command"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/imaging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"github.com/signalsfoundry/flightplan-orchestrator/timectrl"
)

// ErrInvalidRequest indicates a programmer error in the arguments of a
// service call.
var ErrInvalidRequest = errors.New("invalid flight plan request")

// Store persists flight plans and overpasses. *state.Store satisfies it.
type Store interface {
	CreatePlan(ctx context.Context, p *model.FlightPlan) (*model.FlightPlan, error)
	GetPlan(ctx context.Context, id string) (*model.FlightPlan, error)
	UpdatePlan(ctx context.Context, id string, fn func(*model.FlightPlan) error) (*model.FlightPlan, error)
	ReplacePlan(ctx context.Context, id string, fn func(*model.FlightPlan) error, next *model.FlightPlan) (*model.FlightPlan, *model.FlightPlan, error)
	ListPlans(ctx context.Context) []*model.FlightPlan
	PlansDueBefore(ctx context.Context, t time.Time) []*model.FlightPlan
	ActivePlansForSatellite(ctx context.Context, satelliteID string) []*model.FlightPlan
	FindOrCreateOverpass(ctx context.Context, o *model.Overpass, tolerance time.Duration) (*model.Overpass, bool, error)
	AssignOverpass(ctx context.Context, overpassID, planID string, fn func(*model.FlightPlan) error) (*model.FlightPlan, error)
	ReleaseOverpass(ctx context.Context, planID string) bool
}

// Catalog resolves satellites and ground stations.
type Catalog interface {
	GetSatellite(id string) (*model.Satellite, error)
	GetGroundStation(id string) (*model.GroundStation, error)
}

// OverpassPredictor computes visibility windows. *passes.Predictor
// satisfies it.
type OverpassPredictor interface {
	ComputeOverpasses(ctx context.Context, req passes.Request) ([]passes.Window, error)
}

// ImagingFinder locates the best imaging instant for a target.
// *imaging.Optimizer satisfies it.
type ImagingFinder interface {
	FindBestOpportunity(ctx context.Context, sat *model.Satellite, target model.Geodetic, start time.Time, maxDuration time.Duration) (*imaging.Opportunity, error)
}

// Config holds the tolerances of assignment and compilation.
type Config struct {
	// AssignmentPadding widens the requested window on both sides before
	// prediction to absorb element drift.
	AssignmentPadding time.Duration
	// CandidateTolerance bounds how far a predicted window's start and end
	// may be from the requested ones.
	CandidateTolerance time.Duration
	// ConflictTolerance is the distance from the candidate's max-elevation
	// time within which another active plan's scheduled time conflicts.
	ConflictTolerance time.Duration
	// OverpassMatch is the window tolerance used to reuse stored overpasses.
	OverpassMatch time.Duration
	// ImagingSearch is how far past the scheduled time captures are searched.
	ImagingSearch time.Duration
	// MaxOffNadirDeg is the largest acceptable capture angle.
	MaxOffNadirDeg float64
}

// DefaultConfig returns the production tolerances.
func DefaultConfig() Config {
	return Config{
		AssignmentPadding:  2 * time.Hour,
		CandidateTolerance: 15 * time.Minute,
		ConflictTolerance:  15 * time.Minute,
		OverpassMatch:      passes.MatchTolerance,
		ImagingSearch:      24 * time.Hour,
		MaxOffNadirDeg:     imaging.DefaultMaxOffNadirDeg,
	}
}

// Result is the outcome of a business operation. Success=false carries the
// human-readable reason; it is not an error.
type Result struct {
	Success  bool
	Message  string
	Plan     *model.FlightPlan
	Overpass *model.Overpass
}

func rejected(msg string) Result { return Result{Message: msg} }

// CreateRequest is the content of a new flight plan.
type CreateRequest struct {
	Name            string
	SatelliteID     string
	GroundStationID string
	CreatedBy       string
	Commands        json.RawMessage
}

// UpdateRequest is the content of a new version. An empty SatelliteID keeps
// the satellite of the superseded plan.
type UpdateRequest struct {
	Name            string
	SatelliteID     string
	GroundStationID string
	Commands        json.RawMessage
}

// Service implements the flight plan operations.
type Service struct {
	store     Store
	catalog   Catalog
	predictor OverpassPredictor
	imaging   ImagingFinder
	publisher StatusPublisher
	clock     timectrl.Clock
	log       logging.Logger
	metrics   *observability.OrchestratorCollector
	locks     *keyedMutex
	cfg       Config
}

// Option configures a Service.
type Option func(*Service)

// WithConfig overrides the default tolerances. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		def := DefaultConfig()
		if cfg.AssignmentPadding <= 0 {
			cfg.AssignmentPadding = def.AssignmentPadding
		}
		if cfg.CandidateTolerance <= 0 {
			cfg.CandidateTolerance = def.CandidateTolerance
		}
		if cfg.ConflictTolerance <= 0 {
			cfg.ConflictTolerance = def.ConflictTolerance
		}
		if cfg.OverpassMatch <= 0 {
			cfg.OverpassMatch = def.OverpassMatch
		}
		if cfg.ImagingSearch <= 0 {
			cfg.ImagingSearch = def.ImagingSearch
		}
		if cfg.MaxOffNadirDeg <= 0 {
			cfg.MaxOffNadirDeg = def.MaxOffNadirDeg
		}
		s.cfg = cfg
	}
}

// WithClock sets the time source.
func WithClock(c timectrl.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records lifecycle transitions.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithPublisher emits status changes to p.
func WithPublisher(p StatusPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService wires a Service.
func NewService(store Store, catalog Catalog, predictor OverpassPredictor, finder ImagingFinder, opts ...Option) *Service {
	s := &Service{
		store:     store,
		catalog:   catalog,
		predictor: predictor,
		imaging:   finder,
		clock:     timectrl.System(),
		log:       logging.Noop(),
		locks:     newKeyedMutex(),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the flight plan.
func (s *Service) Get(ctx context.Context, id string) (*model.FlightPlan, error) {
	return s.store.GetPlan(ctx, id)
}

// List returns every flight plan.
func (s *Service) List(ctx context.Context) []*model.FlightPlan {
	return s.store.ListPlans(ctx)
}

// Create validates and stores a new Draft plan. Unknown satellites or
// stations are errors; invalid content is a rejected Result.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Result, error) {
	if strings.TrimSpace(req.CreatedBy) == "" {
		return Result{}, fmt.Errorf("%w: creator id is required", ErrInvalidRequest)
	}
	commands, reason, err := s.checkContent(req.Name, req.SatelliteID, req.GroundStationID, req.Commands)
	if err != nil {
		return Result{}, err
	}
	if reason != "" {
		return rejected(reason), nil
	}

	plan := &model.FlightPlan{
		Name:        strings.TrimSpace(req.Name),
		Commands:    commands,
		SatelliteID: req.SatelliteID,
		Status:      model.StatusDraft,
		CreatedBy:   req.CreatedBy,
	}
	if req.GroundStationID != "" {
		plan.GroundStationID = model.StringPtr(req.GroundStationID)
	}
	stored, err := s.store.CreatePlan(ctx, plan)
	if err != nil {
		return Result{}, fmt.Errorf("store flight plan: %w", err)
	}
	s.afterTransition(ctx, "", stored)
	return Result{Success: true, Message: "Flight plan created successfully", Plan: stored}, nil
}

// CreateNewVersion supersedes the plan and stores the new content as a
// fresh Draft pointing back at it. The new version holds no overpass.
func (s *Service) CreateNewVersion(ctx context.Context, id string, req UpdateRequest) (Result, error) {
	existing, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !newLifecycle(existing).can(EventSupersede) {
		return rejected(versionRejection(existing.Status)), nil
	}

	satelliteID := req.SatelliteID
	if satelliteID == "" {
		satelliteID = existing.SatelliteID
	}
	commands, reason, err := s.checkContent(req.Name, satelliteID, req.GroundStationID, req.Commands)
	if err != nil {
		return Result{}, err
	}
	if reason != "" {
		return rejected(reason), nil
	}

	unlock := s.locks.Lock(existing.SatelliteID)
	defer unlock()

	next := &model.FlightPlan{
		Name:           strings.TrimSpace(req.Name),
		Commands:       commands,
		SatelliteID:    satelliteID,
		Status:         model.StatusDraft,
		PreviousPlanID: model.StringPtr(id),
		CreatedBy:      existing.CreatedBy,
	}
	if req.GroundStationID != "" {
		next.GroundStationID = model.StringPtr(req.GroundStationID)
	}

	var from model.FlightPlanStatus
	superseded, stored, err := s.store.ReplacePlan(ctx, id, func(p *model.FlightPlan) error {
		from = p.Status
		return newLifecycle(p).fire(ctx, EventSupersede)
	}, next)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			return rejected(versionRejection(te.From)), nil
		}
		return Result{}, fmt.Errorf("store flight plan version: %w", err)
	}
	s.afterTransition(ctx, from, superseded)
	s.afterTransition(ctx, "", stored)
	return Result{Success: true, Message: msgVersionCreated, Plan: stored}, nil
}

// ApproveOrReject moves a Draft plan to Approved or Rejected. Approval
// re-validates the stored commands.
func (s *Service) ApproveOrReject(ctx context.Context, id string, approve bool, approverID string) (Result, error) {
	if strings.TrimSpace(approverID) == "" {
		return Result{}, fmt.Errorf("%w: approver id is required", ErrInvalidRequest)
	}
	event, success := EventReject, msgRejected
	if approve {
		event, success = EventApprove, msgApproved
	}

	plan, err := s.transition(ctx, id, event, approval{By: approverID, At: s.clock.Now()})
	if err != nil {
		var (
			te *TransitionError
			ge *guardError
		)
		switch {
		case errors.As(err, &te):
			return rejected(approvalRejection(te.From)), nil
		case errors.As(err, &ge):
			return rejected("Cannot approve invalid flight plan: " + ge.Error()), nil
		}
		return Result{}, err
	}
	return Result{Success: true, Message: success, Plan: plan}, nil
}

// PlansReadyForTransmission lists assigned plans scheduled no later than
// now plus lookahead, earliest first.
func (s *Service) PlansReadyForTransmission(ctx context.Context, lookahead time.Duration) []*model.FlightPlan {
	return s.store.PlansDueBefore(ctx, s.clock.Now().Add(lookahead))
}

// MarkTransmitted records a successful transmission.
func (s *Service) MarkTransmitted(ctx context.Context, id string) (*model.FlightPlan, error) {
	return s.transition(ctx, id, EventTransmit)
}

// MarkFailed records a failed transmission with its reason and frees the
// plan's overpass.
func (s *Service) MarkFailed(ctx context.Context, id, reason string) (*model.FlightPlan, error) {
	return s.transition(ctx, id, EventFail, reason)
}

// transition fires event against the stored plan inside one store update.
func (s *Service) transition(ctx context.Context, id, event string, args ...interface{}) (*model.FlightPlan, error) {
	var from model.FlightPlanStatus
	updated, err := s.store.UpdatePlan(ctx, id, func(p *model.FlightPlan) error {
		from = p.Status
		return newLifecycle(p).fire(ctx, event, args...)
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, from, updated)
	return updated, nil
}

func (s *Service) afterTransition(ctx context.Context, from model.FlightPlanStatus, p *model.FlightPlan) {
	if p.Status == model.StatusSuperseded || p.Status == model.StatusFailed {
		s.store.ReleaseOverpass(ctx, p.ID)
	}
	s.metrics.RecordTransition(string(p.Status))

	fields := []logging.Field{
		logging.FlightPlanID(p.ID),
		logging.SatelliteID(p.SatelliteID),
		logging.String("to", string(p.Status)),
	}
	if from != "" {
		fields = append(fields, logging.String("from", string(from)))
	}
	if p.FailureReason != nil {
		fields = append(fields, logging.String("reason", *p.FailureReason))
	}
	logging.FromContext(ctx, s.log).Info(ctx, "flight plan status changed", fields...)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStatus(ctx, newStatusEvent(from, p, s.clock.Now())); err != nil {
		s.log.Warn(ctx, "publish flight plan status failed",
			logging.FlightPlanID(p.ID),
			logging.Err(err),
		)
	}
}

// checkContent validates authored content and returns the canonical command
// encoding. A non-empty reason is a business rejection.
func (s *Service) checkContent(name, satelliteID, groundStationID string, raw json.RawMessage) (json.RawMessage, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "Name is required.", nil
	}
	if satelliteID == "" {
		return nil, "", fmt.Errorf("%w: satellite id is required", ErrInvalidRequest)
	}
	if _, err := s.catalog.GetSatellite(satelliteID); err != nil {
		return nil, "", err
	}
	if groundStationID != "" {
		if _, err := s.catalog.GetGroundStation(groundStationID); err != nil {
			return nil, "", err
		}
	}

	seq, err := command.Decode(raw)
	if err != nil {
		return nil, fmt.Sprintf("command validation failed: %v", err), nil
	}
	if err := seq.Validate(); err != nil {
		return nil, err.Error(), nil
	}
	encoded, err := command.Encode(seq)
	if err != nil {
		return nil, "", fmt.Errorf("encode commands: %w", err)
	}
	return encoded, "", nil
}
