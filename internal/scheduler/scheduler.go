// Package scheduler delivers assigned flight plans to their ground stations
// shortly before their scheduled time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/archive"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"github.com/signalsfoundry/flightplan-orchestrator/timectrl"
)

// Defaults for Config.
const (
	DefaultInterval  = 30 * time.Second
	DefaultLookahead = 5 * time.Minute
	DefaultImminent  = time.Minute
)

// Plan outcomes reported per cycle and as metric labels.
const (
	OutcomeTransmitted = "transmitted"
	OutcomeFailed      = "failed"
	OutcomeDeferred    = "deferred"
	OutcomeSkipped     = "skipped"
	OutcomeError       = "error"
)

// Plans is the flight plan surface the scheduler drives.
type Plans interface {
	PlansReadyForTransmission(ctx context.Context, lookahead time.Duration) []*model.FlightPlan
	CompileToScript(ctx context.Context, id string) ([]string, error)
	MarkTransmitted(ctx context.Context, id string) (*model.FlightPlan, error)
	MarkFailed(ctx context.Context, id, reason string) (*model.FlightPlan, error)
}

// Catalog resolves satellites.
type Catalog interface {
	GetSatellite(id string) (*model.Satellite, error)
}

// Gateway delivers transmissions. *gateway.Registry satisfies it.
type Gateway interface {
	IsConnected(stationID string) bool
	Send(ctx context.Context, tx gateway.Transmission) (string, error)
}

// Archive keeps a copy of every delivered script. *archive.Store satisfies it.
type Archive interface {
	Put(ctx context.Context, rec archive.Record) (string, error)
}

// Config sets the polling cadence.
type Config struct {
	// Interval between cycles.
	Interval time.Duration
	// Lookahead is how far past now a plan counts as due.
	Lookahead time.Duration
	// Imminent is how close to its scheduled time a plan for a
	// disconnected station is failed instead of retried.
	Imminent time.Duration
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Lookahead: DefaultLookahead, Imminent: DefaultImminent}
}

// Report counts the outcomes of one cycle.
type Report struct {
	Due         int
	Transmitted int
	Failed      int
	Deferred    int
	Skipped     int
	Errors      int
}

func (r *Report) add(outcome string) {
	switch outcome {
	case OutcomeTransmitted:
		r.Transmitted++
	case OutcomeFailed:
		r.Failed++
	case OutcomeDeferred:
		r.Deferred++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// Scheduler polls for due plans and transmits them.
type Scheduler struct {
	plans   Plans
	catalog Catalog
	gateway Gateway
	archive Archive
	cfg     Config
	clock   timectrl.Clock
	log     logging.Logger
	metrics *observability.OrchestratorCollector
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig overrides the cadence; zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		if cfg.Interval > 0 {
			s.cfg.Interval = cfg.Interval
		}
		if cfg.Lookahead > 0 {
			s.cfg.Lookahead = cfg.Lookahead
		}
		if cfg.Imminent > 0 {
			s.cfg.Imminent = cfg.Imminent
		}
	}
}

// WithClock sets the time source used for the imminence check.
func WithClock(c timectrl.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records cycle durations and plan outcomes.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(s *Scheduler) { s.metrics = c }
}

// WithArchive stores every delivered script.
func WithArchive(a Archive) Option {
	return func(s *Scheduler) { s.archive = a }
}

// New returns a Scheduler.
func New(plans Plans, catalog Catalog, gw Gateway, opts ...Option) *Scheduler {
	s := &Scheduler{
		plans:   plans,
		catalog: catalog,
		gateway: gw,
		cfg:     DefaultConfig(),
		clock:   timectrl.System(),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info(ctx, "transmission scheduler started",
		logging.Duration("interval", s.cfg.Interval),
		logging.Duration("lookahead", s.cfg.Lookahead),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			break
		}
		s.RunCycle(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	s.log.Info(context.Background(), "transmission scheduler stopped")
	return nil
}

// RunCycle processes every plan currently due. One plan's failure never
// stops the rest of the batch; cancellation does.
func (s *Scheduler) RunCycle(ctx context.Context) Report {
	start := time.Now()
	defer func() { s.metrics.ObserveSchedulerCycle(time.Since(start)) }()

	due := s.plans.PlansReadyForTransmission(ctx, s.cfg.Lookahead)
	report := Report{Due: len(due)}
	if len(due) > 0 {
		s.log.Debug(ctx, "flight plans due for transmission", logging.Int("count", len(due)))
	}
	for _, plan := range due {
		if ctx.Err() != nil {
			break
		}
		outcome := s.process(ctx, plan)
		s.metrics.RecordPlanOutcome(outcome)
		report.add(outcome)
	}
	return report
}

func (s *Scheduler) process(ctx context.Context, plan *model.FlightPlan) string {
	log := s.log.With(logging.FlightPlanID(plan.ID))
	if plan.GroundStationID == nil || *plan.GroundStationID == "" {
		log.Warn(ctx, "flight plan has no ground station; skipping")
		return OutcomeSkipped
	}
	stationID := *plan.GroundStationID
	log = log.With(logging.GroundStationID(stationID))

	if !s.gateway.IsConnected(stationID) {
		remaining := time.Duration(0)
		if plan.ScheduledAt != nil {
			remaining = plan.ScheduledAt.Sub(s.clock.Now())
		}
		if remaining >= s.cfg.Imminent {
			log.Info(ctx, "ground station not connected; retrying next cycle", logging.Duration("remaining", remaining))
			return OutcomeDeferred
		}
		return s.fail(ctx, log, plan, fmt.Sprintf("Ground Station %s is not connected.", stationID))
	}

	script, requestID, reason := s.transmit(ctx, plan, stationID)
	if reason != "" {
		return s.fail(ctx, log, plan, reason)
	}
	if _, err := s.plans.MarkTransmitted(ctx, plan.ID); err != nil {
		log.Error(ctx, "failed to record transmission", logging.Err(err), logging.String("request_id", requestID))
		return OutcomeError
	}
	log.Info(ctx, "flight plan transmitted", logging.String("request_id", requestID))
	s.archiveScript(ctx, log, plan, stationID, requestID, script)
	return OutcomeTransmitted
}

// transmit resolves, compiles and sends the plan. A non-empty reason is the
// failure to store on the plan.
func (s *Scheduler) transmit(ctx context.Context, plan *model.FlightPlan, stationID string) (script []string, requestID, reason string) {
	var err error
	ctx, span := observability.StartSpan(ctx, "scheduler.transmit", "flight_plan", plan.ID)
	defer func() { observability.EndSpan(span, err) }()

	sat, err := s.catalog.GetSatellite(plan.SatelliteID)
	if err != nil {
		return nil, "", fmt.Sprintf("Satellite with ID %s not found.", plan.SatelliteID)
	}
	script, err = s.plans.CompileToScript(ctx, plan.ID)
	if err != nil {
		return nil, "", "An exception occurred during transmission: " + err.Error()
	}
	at := s.clock.Now()
	if plan.ScheduledAt != nil {
		at = *plan.ScheduledAt
	}
	requestID, err = s.gateway.Send(ctx, gateway.Transmission{
		GroundStationID: stationID,
		SatelliteID:     sat.ID,
		SatelliteName:   sat.Name,
		FlightPlanID:    plan.ID,
		ExecutionTime:   at,
		Script:          script,
	})
	if err != nil {
		return nil, "", "An exception occurred during transmission: " + err.Error()
	}
	return script, requestID, ""
}

func (s *Scheduler) fail(ctx context.Context, log logging.Logger, plan *model.FlightPlan, reason string) string {
	if _, err := s.plans.MarkFailed(ctx, plan.ID, reason); err != nil {
		log.Error(ctx, "failed to record transmission failure", logging.Err(err), logging.String("reason", reason))
		return OutcomeError
	}
	log.Warn(ctx, "flight plan transmission failed", logging.String("reason", reason))
	return OutcomeFailed
}

func (s *Scheduler) archiveScript(ctx context.Context, log logging.Logger, plan *model.FlightPlan, stationID, requestID string, script []string) {
	if s.archive == nil {
		return
	}
	rec := archive.Record{
		RequestID:       requestID,
		FlightPlanID:    plan.ID,
		SatelliteID:     plan.SatelliteID,
		GroundStationID: stationID,
		TransmittedAt:   s.clock.Now(),
		Script:          script,
	}
	if plan.ScheduledAt != nil {
		rec.ExecutionTime = *plan.ScheduledAt
	}
	if _, err := s.archive.Put(ctx, rec); err != nil {
		log.Warn(ctx, "archive transmitted script failed", logging.Err(err))
	}
}
