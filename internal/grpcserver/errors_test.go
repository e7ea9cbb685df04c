package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/command"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/flightplan"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/state"
	"github.com/signalsfoundry/flightplan-orchestrator/kb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "satellite not found", err: fmt.Errorf("%w: %q", kb.ErrSatelliteNotFound, "sat-x"), code: codes.NotFound},
		{name: "plan not found", err: state.ErrFlightPlanNotFound, code: codes.NotFound},
		{name: "invalid argument", err: fmt.Errorf("%w: id is required", ErrInvalidArgument), code: codes.InvalidArgument},
		{name: "unknown command type", err: command.ErrUnknownCommandType, code: codes.InvalidArgument},
		{name: "no orbital elements", err: passes.ErrNoOrbitalElements, code: codes.FailedPrecondition},
		{name: "not ready to compile", err: fmt.Errorf("wrap: %w", command.ErrNotReadyToCompile), code: codes.FailedPrecondition},
		{name: "illegal transition", err: &flightplan.TransitionError{Event: flightplan.EventApprove}, code: codes.FailedPrecondition},
		{name: "overpass held", err: state.ErrOverpassAlreadyLinked, code: codes.AlreadyExists},
		{name: "station offline", err: &gateway.NotConnectedError{GroundStationID: "gs-1"}, code: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
