package flightplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/command"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// Lifecycle events.
const (
	EventApprove   = "approve"
	EventReject    = "reject"
	EventAssign    = "assign_overpass"
	EventTransmit  = "transmit"
	EventFail      = "fail"
	EventSupersede = "supersede"
)

// ErrIllegalTransition indicates an event that the plan's current status
// does not allow.
var ErrIllegalTransition = errors.New("illegal flight plan transition")

// TransitionError describes a rejected lifecycle event.
type TransitionError struct {
	Event string
	From  model.FlightPlanStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s from %s", ErrIllegalTransition, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// guardError carries the reason a guard refused a legal event.
type guardError struct {
	err error
}

func (e *guardError) Error() string { return e.err.Error() }

func (e *guardError) Unwrap() error { return e.err }

func str(st model.FlightPlanStatus) string { return string(st) }

var events = fsm.Events{
	{Name: EventApprove, Src: []string{str(model.StatusDraft)}, Dst: str(model.StatusApproved)},
	{Name: EventReject, Src: []string{str(model.StatusDraft)}, Dst: str(model.StatusRejected)},
	{Name: EventAssign, Src: []string{str(model.StatusApproved)}, Dst: str(model.StatusAssignedToOverpass)},
	{Name: EventTransmit, Src: []string{str(model.StatusAssignedToOverpass)}, Dst: str(model.StatusTransmitted)},
	{Name: EventFail, Src: []string{str(model.StatusApproved), str(model.StatusAssignedToOverpass)}, Dst: str(model.StatusFailed)},
	{
		Name: EventSupersede,
		Src:  []string{str(model.StatusDraft), str(model.StatusApproved), str(model.StatusAssignedToOverpass)},
		Dst:  str(model.StatusSuperseded),
	},
}

// approval is the argument of EventApprove and EventReject.
type approval struct {
	By string
	At time.Time
}

// assignment is the argument of EventAssign.
type assignment struct {
	OverpassID      string
	GroundStationID string
	ScheduledAt     time.Time
}

// lifecycle drives one plan through the state machine. Callbacks mutate the
// plan it was built for.
type lifecycle struct {
	plan    *model.FlightPlan
	machine *fsm.FSM
}

func newLifecycle(plan *model.FlightPlan) *lifecycle {
	l := &lifecycle{plan: plan}

	callbacks := fsm.Callbacks{
		"enter_state": wrapEvent(l.enterState),
	}
	callbacks[before(EventApprove)] = wrapEvent(l.guardCommandsValid)
	callbacks[before(EventAssign)] = wrapEvent(l.guardAssignment)
	callbacks[enter(model.StatusApproved)] = wrapEvent(l.enterApproved)
	callbacks[enter(model.StatusRejected)] = wrapEvent(l.enterRejected)
	callbacks[enter(model.StatusAssignedToOverpass)] = wrapEvent(l.enterAssigned)
	callbacks[enter(model.StatusFailed)] = wrapEvent(l.enterFailed)
	callbacks[enter(model.StatusTransmitted)] = wrapEvent(l.enterTransmitted)

	l.machine = fsm.NewFSM(str(plan.Status), events, callbacks)
	return l
}

func before(event string) string { return "before_" + event }

func enter(st model.FlightPlanStatus) string { return "enter_" + string(st) }

// can reports whether event is legal from the plan's current status.
func (l *lifecycle) can(event string) bool { return l.machine.Can(event) }

// fire runs event with args. Guard rejections are returned as *guardError,
// illegal events as *TransitionError.
func (l *lifecycle) fire(ctx context.Context, event string, args ...interface{}) error {
	from := l.plan.Status
	err := l.machine.Event(ctx, event, args...)
	if err == nil {
		return nil
	}
	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return &TransitionError{Event: event, From: from}
	}
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		return canceled.Err
	}
	return err
}

func wrapEvent(fn func(ctx context.Context, e *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		if err := fn(ctx, e); err != nil {
			e.Err = err
		}
	}
}

// guardCommandsValid re-validates the stored command sequence before
// approval.
func (l *lifecycle) guardCommandsValid(_ context.Context, e *fsm.Event) error {
	seq, err := command.Decode(l.plan.Commands)
	if err == nil {
		err = seq.Validate()
	}
	if err != nil {
		e.Cancel(&guardError{err: err})
	}
	return nil
}

func (l *lifecycle) guardAssignment(_ context.Context, e *fsm.Event) error {
	if len(e.Args) == 0 {
		e.Cancel(&guardError{err: errors.New("assignment details are required")})
		return nil
	}
	a, ok := e.Args[0].(assignment)
	if !ok || a.OverpassID == "" || a.GroundStationID == "" {
		e.Cancel(&guardError{err: errors.New("assignment requires an overpass and a ground station")})
	}
	return nil
}

func (l *lifecycle) enterState(_ context.Context, e *fsm.Event) error {
	l.plan.Status = model.FlightPlanStatus(e.Dst)
	return nil
}

func (l *lifecycle) enterApproved(_ context.Context, e *fsm.Event) error {
	a := approvalArg(e)
	l.plan.ApprovedBy = model.StringPtr(a.By)
	l.plan.ApprovedAt = model.TimePtr(a.At)
	return nil
}

func (l *lifecycle) enterRejected(ctx context.Context, e *fsm.Event) error {
	return l.enterApproved(ctx, e)
}

func (l *lifecycle) enterAssigned(_ context.Context, e *fsm.Event) error {
	a := e.Args[0].(assignment)
	l.plan.OverpassID = model.StringPtr(a.OverpassID)
	l.plan.GroundStationID = model.StringPtr(a.GroundStationID)
	l.plan.ScheduledAt = model.TimePtr(a.ScheduledAt)
	return nil
}

func (l *lifecycle) enterFailed(_ context.Context, e *fsm.Event) error {
	reason := "unknown error"
	if len(e.Args) > 0 {
		switch v := e.Args[0].(type) {
		case string:
			reason = v
		case error:
			reason = v.Error()
		}
	}
	l.plan.FailureReason = model.StringPtr(reason)
	return nil
}

func (l *lifecycle) enterTransmitted(context.Context, *fsm.Event) error {
	l.plan.FailureReason = nil
	return nil
}

func approvalArg(e *fsm.Event) approval {
	if len(e.Args) > 0 {
		if a, ok := e.Args[0].(approval); ok {
			return a
		}
	}
	return approval{}
}
